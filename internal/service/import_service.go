package service

import (
	"bytes"
	"context"
	"io"

	"github.com/Annany2002/sqlitecult/internal/csvimport"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/metrics"
)

// ImportResult is the outcome of a committed CSV import.
type ImportResult struct {
	Report       domain.ImportReport `json:"report"`
	Mode         csvimport.Mode      `json:"mode"`
	Rows         int                 `json:"rows_imported"`
	AddedColumns []string            `json:"added_columns,omitempty"`
}

// ImportService moves CSV data in and out of tenant tables.
type ImportService struct {
	Databases *DatabaseService
	Queries   *QueryService
}

// NewImportService returns an import service. DDL issued for added columns
// is audited through queries.
func NewImportService(databases *DatabaseService, queries *QueryService) *ImportService {
	return &ImportService{Databases: databases, Queries: queries}
}

// Export writes table of name as CSV to w. Read access is required.
func (s *ImportService) Export(ctx context.Context, user *domain.User, name, table string, w io.Writer) error {
	h, err := s.Databases.Open(ctx, user, name, domain.Read)
	if err != nil {
		return err
	}
	return s.Databases.Gateway.ExportCSV(ctx, h.FileName, table, w)
}

func (s *ImportService) reconcile(ctx context.Context, h *Handle, table string, content []byte) (domain.ImportReport, error) {
	headers, err := csvimport.ReadHeaders(bytes.NewReader(content))
	if err != nil {
		return domain.ImportReport{}, err
	}
	cols, err := s.Databases.Gateway.TableInfo(ctx, h.FileName, table)
	if err != nil {
		return domain.ImportReport{}, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return csvimport.Reconcile(headers, names), nil
}

// Preview compares the CSV headers with the table without writing anything.
func (s *ImportService) Preview(ctx context.Context, user *domain.User, name, table string, content []byte) (*domain.ImportReport, error) {
	h, err := s.Databases.Open(ctx, user, name, domain.Write)
	if err != nil {
		return nil, err
	}
	report, err := s.reconcile(ctx, h, table, content)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// Import loads content into table according to mode. In add_columns mode
// the missing columns are added first, using defs where one names the
// header. Rows are inserted in a single transaction.
func (s *ImportService) Import(ctx context.Context, user *domain.User, name, table string, content []byte, mode csvimport.Mode, defs []domain.ColumnDef) (*ImportResult, error) {
	h, err := s.Databases.Open(ctx, user, name, domain.Write)
	if err != nil {
		return nil, err
	}
	report, err := s.reconcile(ctx, h, table, content)
	if err != nil {
		return nil, err
	}
	plan, err := csvimport.BuildPlan(report, mode, defs)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Report: report, Mode: mode}
	if len(plan.AddColumns) > 0 {
		statements, err := s.Databases.Gateway.AddColumns(ctx, h.FileName, table, plan.AddColumns)
		if err != nil {
			return nil, err
		}
		s.Queries.LogStatements(ctx, user, h.DisplayName, statements...)
		for _, c := range plan.AddColumns {
			result.AddedColumns = append(result.AddedColumns, c.Name)
		}
	}

	result.Rows, err = s.Databases.Gateway.ImportCSV(ctx, h.FileName, table, bytes.NewReader(content), plan.Columns)
	if err != nil {
		return nil, err
	}
	metrics.AddImportedRows(result.Rows)
	customLog.Printf("Service: %s imported %d rows into '%s.%s' (mode %s)", user.Username, result.Rows, name, table, mode)
	return result, nil
}
