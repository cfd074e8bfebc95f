// Package csvimport reconciles CSV headers with a table's columns before any
// row is written.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
)

var (
	ErrDuplicateHeader = fmt.Errorf("%w: duplicate CSV header", core.ErrInvalidInput)
	ErrNoHeader        = fmt.Errorf("%w: CSV content has no header row", core.ErrInvalidInput)
	ErrEmptyHeader     = fmt.Errorf("%w: CSV header contains an empty column name", core.ErrInvalidInput)
)

// Mode selects how headers missing from the table are handled on import.
type Mode string

const (
	// ModeAll imports every header and fails when one is not a table column.
	ModeAll Mode = "all"
	// ModeMatching imports only the headers that are table columns.
	ModeMatching Mode = "matching"
	// ModeAddColumns adds the missing headers as columns, then imports all.
	ModeAddColumns Mode = "add_columns"
)

// ParseMode maps a request value onto a Mode. Empty means ModeAll.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAll:
		return ModeAll, nil
	case ModeMatching:
		return ModeMatching, nil
	case ModeAddColumns:
		return ModeAddColumns, nil
	}
	return "", core.InvalidInputf("unknown import mode %q", s)
}

// NewReader returns a csv.Reader configured the same way for preview and
// import. Short rows are allowed; their missing trailing fields become NULL.
func NewReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	return reader
}

// NormalizeHeaders trims every header, strips a leading byte order mark and
// rejects empty or duplicate names. Duplicates compare case-insensitively
// because SQLite column names do.
func NormalizeHeaders(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, ErrNoHeader
	}
	headers := make([]string, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("%w (position %d)", ErrEmptyHeader, i+1)
		}
		key := strings.ToLower(h)
		if seen[key] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateHeader, h)
		}
		seen[key] = true
		headers[i] = h
	}
	return headers, nil
}

// ReadHeaders reads and normalizes the first record of r.
func ReadHeaders(r io.Reader) ([]string, error) {
	record, err := NewReader(r).Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}
		return nil, core.InvalidInputf("malformed CSV: %v", err)
	}
	return NormalizeHeaders(record)
}

// Reconcile compares CSV headers with table columns. Matching and Missing
// keep file order, Unfilled keeps table order.
func Reconcile(headers, tableColumns []string) domain.ImportReport {
	inTable := make(map[string]string, len(tableColumns))
	for _, c := range tableColumns {
		inTable[strings.ToLower(c)] = c
	}
	inFile := make(map[string]bool, len(headers))

	report := domain.ImportReport{
		FileColumns:  headers,
		TableColumns: tableColumns,
		Matching:     make([]string, 0),
		Missing:      make([]string, 0),
		Unfilled:     make([]string, 0),
	}
	for _, h := range headers {
		key := strings.ToLower(h)
		inFile[key] = true
		if name, ok := inTable[key]; ok {
			report.Matching = append(report.Matching, name)
		} else {
			report.Missing = append(report.Missing, h)
		}
	}
	for _, c := range tableColumns {
		if !inFile[strings.ToLower(c)] {
			report.Unfilled = append(report.Unfilled, c)
		}
	}
	return report
}

// Plan is what an import will do once the report has been applied to a mode.
type Plan struct {
	// Columns lists the headers to import; nil means every header.
	Columns []string
	// AddColumns must be added to the table before the rows are inserted.
	AddColumns []domain.ColumnDef
}

// BuildPlan applies mode to report. In ModeAddColumns, defs supplies the
// column definitions for missing headers; a missing header without one is
// added as TEXT.
func BuildPlan(report domain.ImportReport, mode Mode, defs []domain.ColumnDef) (*Plan, error) {
	switch mode {
	case ModeAll:
		if len(report.Missing) > 0 {
			return nil, core.InvalidInputf("CSV columns not in table: %s", strings.Join(report.Missing, ", "))
		}
		return &Plan{}, nil

	case ModeMatching:
		if len(report.Matching) == 0 {
			return nil, core.InvalidInputf("no CSV column matches the table")
		}
		return &Plan{Columns: report.Matching}, nil

	case ModeAddColumns:
		byName := make(map[string]domain.ColumnDef, len(defs))
		for _, d := range defs {
			byName[strings.ToLower(d.Name)] = d
		}
		plan := &Plan{AddColumns: make([]domain.ColumnDef, 0, len(report.Missing))}
		for _, h := range report.Missing {
			def, ok := byName[strings.ToLower(h)]
			if !ok {
				def = domain.ColumnDef{Name: h, Type: "TEXT"}
			}
			def.Name = h
			plan.AddColumns = append(plan.AddColumns, def)
		}
		return plan, nil
	}
	return nil, core.InvalidInputf("unknown import mode %q", mode)
}
