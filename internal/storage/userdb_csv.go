package storage

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/csvimport"
	"github.com/Annany2002/sqlitecult/internal/domain"
)

// importValueWidth bounds each field value quoted in an ImportError.
const importValueWidth = 40

// ImportError reports the CSV row whose insert failed. The whole import has
// been rolled back when it is returned.
type ImportError struct {
	Row           int               `json:"row"`
	Values        map[string]string `json:"values"`
	ExpectedTypes map[string]string `json:"expected_types,omitempty"`
	Err           error             `json:"-"`
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// Unwrap exposes both the cause and the invalid input classification.
func (e *ImportError) Unwrap() []error {
	return []error{core.ErrInvalidInput, e.Err}
}

// formatCSVValue renders a scanned value so that importing it again stores
// the same value.
func formatCSVValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		if val {
			return "1"
		}
		return "0"
	case time.Time:
		return val.Format(sqlite3.SQLiteTimestampFormats[0])
	default:
		return fmt.Sprint(val)
	}
}

// ExportCSV writes a header row in table definition order followed by every
// row of table. NULL is written as an empty field.
func (g *Gateway) ExportCSV(ctx context.Context, fileName, table string, w io.Writer) error {
	return g.withDB(ctx, fileName, func(db *sql.DB) error {
		cols, err := getColumnInfo(ctx, db, table)
		if err != nil {
			return err
		}
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}

		rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM "%s" ORDER BY rowid`, quoteList(names), table))
		if err != nil {
			return mapEngineError("export", err)
		}
		defer rows.Close()

		writer := csv.NewWriter(w)
		if err := writer.Write(names); err != nil {
			return fmt.Errorf("failed writing CSV header: %w", err)
		}
		values := make([]any, len(names))
		scanArgs := make([]any, len(names))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		record := make([]string, len(names))
		for rows.Next() {
			if err := rows.Scan(scanArgs...); err != nil {
				return core.NewEngineError("export", err)
			}
			for i, v := range values {
				record[i] = formatCSVValue(v)
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("failed writing CSV row: %w", err)
			}
		}
		if err := rows.Err(); err != nil {
			return core.NewEngineError("export", err)
		}
		writer.Flush()
		return writer.Error()
	})
}

// ImportCSV inserts every data row of r into table inside one transaction and
// returns the number of rows inserted. Only the headers named in columns are
// imported; nil imports every header. An empty field is stored as NULL in
// a nullable column of numeric affinity and as '' everywhere else, which is
// how ExportCSV writes those values. The headers are validated before the first insert, and any failing row rolls
// back the whole import.
func (g *Gateway) ImportCSV(ctx context.Context, fileName, table string, r io.Reader, columns []string) (int, error) {
	reader := csvimport.NewReader(r)
	raw, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, csvimport.ErrNoHeader
		}
		return 0, core.InvalidInputf("malformed CSV: %v", err)
	}
	headers, err := csvimport.NormalizeHeaders(raw)
	if err != nil {
		return 0, err
	}

	var inserted int
	err = g.withTx(ctx, fileName, func(tx *sql.Tx) error {
		cols, err := getColumnInfo(ctx, tx, table)
		if err != nil {
			return err
		}
		fields, names, err := importFields(headers, cols, columns)
		if err != nil {
			return err
		}
		nullOnEmpty := make([]bool, len(names))
		for i, name := range names {
			nullOnEmpty[i] = emptyIsNull(findColumn(cols, name))
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
		insertSQL := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`, table, quoteList(names), placeholders)
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return mapEngineError("import", err)
		}
		defer stmt.Close()

		for row := 1; ; row++ {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return core.InvalidInputf("malformed CSV at row %d: %v", row, err)
			}
			args := make([]any, len(fields))
			for i, idx := range fields {
				if idx >= len(record) || (record[idx] == "" && nullOnEmpty[i]) {
					continue
				}
				args[i] = record[idx]
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return newImportError(row, names, args, cols, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		customLog.Warnf("Storage: CSV import into '%s' rolled back: %v", table, err)
		return 0, err
	}
	return inserted, nil
}

// emptyIsNull reports whether an empty CSV field means NULL for col. Text and
// untyped columns keep the empty string, and NOT NULL columns could not
// hold NULL anyway.
func emptyIsNull(col *domain.ColumnInfo) bool {
	if col == nil || col.NotNull {
		return false
	}
	t := strings.ToUpper(col.Type)
	switch {
	case strings.Contains(t, "INT"):
		return true
	case t == "", strings.Contains(t, "CHAR"), strings.Contains(t, "CLOB"),
		strings.Contains(t, "TEXT"), strings.Contains(t, "BLOB"):
		return false
	}
	return true
}

// importFields resolves the selected headers against the table. It returns
// each imported header's record index and the matching column name.
func importFields(headers []string, cols []domain.ColumnInfo, selected []string) ([]int, []string, error) {
	want := make(map[string]bool, len(selected))
	for _, s := range selected {
		want[strings.ToLower(strings.TrimSpace(s))] = true
	}
	fields := make([]int, 0, len(headers))
	names := make([]string, 0, len(headers))
	for i, h := range headers {
		if selected != nil && !want[strings.ToLower(h)] {
			continue
		}
		col := findColumn(cols, h)
		if col == nil {
			return nil, nil, fmt.Errorf("%w: %s", ErrColumnNotFound, h)
		}
		fields = append(fields, i)
		names = append(names, col.Name)
	}
	if len(names) == 0 {
		return nil, nil, ErrNoValidColumns
	}
	return fields, names, nil
}

func newImportError(row int, names []string, args []any, cols []domain.ColumnInfo, err error) *ImportError {
	importErr := &ImportError{
		Row:    row,
		Values: make(map[string]string, len(names)),
		Err:    core.NewEngineError("import", err),
	}
	for i, name := range names {
		if args[i] == nil {
			importErr.Values[name] = ""
			continue
		}
		importErr.Values[name] = core.Truncate(fmt.Sprint(args[i]), importValueWidth)
	}
	if strings.Contains(strings.ToLower(err.Error()), "mismatch") {
		importErr.ExpectedTypes = make(map[string]string, len(names))
		for _, name := range names {
			if col := findColumn(cols, name); col != nil {
				importErr.ExpectedTypes[name] = col.Type
			}
		}
	}
	return importErr
}
