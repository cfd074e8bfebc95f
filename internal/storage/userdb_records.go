package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
)

// RowIDColumn is the key carrying each row's implicit id.
const RowIDColumn = "rowid"

// bindValue adapts a decoded JSON value for the sqlite driver.
func bindValue(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any, []any:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(encoded)
	default:
		return val
	}
}

// scanValue converts driver values into JSON friendly ones.
func scanValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// matchColumns keeps the keys of values that name real columns, using the
// schema spelling, in column order. Unknown keys are ignored.
func matchColumns(cols []domain.ColumnInfo, values map[string]any) ([]string, []any) {
	lookup := make(map[string]string, len(values))
	for key := range values {
		lookup[strings.ToLower(key)] = key
	}
	names := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, col := range cols {
		if key, ok := lookup[strings.ToLower(col.Name)]; ok {
			names = append(names, col.Name)
			args = append(args, bindValue(values[key]))
		}
	}
	return names, args
}

func scanRowMaps(rows *sql.Rows) ([]string, []map[string]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed processing results: %w", err)
	}
	results := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanArgs := make([]any, len(columns))
		for i := range values {
			scanArgs[i] = &values[i]
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, nil, fmt.Errorf("failed reading record data: %w", err)
		}
		rowData := make(map[string]any, len(columns))
		for i, colName := range columns {
			rowData[colName] = scanValue(values[i])
		}
		results = append(results, rowData)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, core.NewEngineError("read rows", err)
	}
	return columns, results, nil
}

// InsertRow inserts values and returns the new rowid.
func (g *Gateway) InsertRow(ctx context.Context, fileName, table string, values map[string]any) (int64, error) {
	var rowID int64
	err := g.withDB(ctx, fileName, func(db *sql.DB) error {
		cols, err := getColumnInfo(ctx, db, table)
		if err != nil {
			return err
		}
		names, args := matchColumns(cols, values)
		if len(names) == 0 {
			return ErrNoValidColumns
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")
		insertSQL := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`, table, quoteList(names), placeholders)

		result, err := db.ExecContext(ctx, insertSQL, args...)
		if err != nil {
			customLog.Warnf("Storage: Failed INSERT: %v\nSQL: %s", err, insertSQL)
			return mapEngineError("insert", err)
		}
		rowID, err = result.LastInsertId()
		return err
	})
	return rowID, err
}

// UpdateRow sets values on the row with the given rowid.
func (g *Gateway) UpdateRow(ctx context.Context, fileName, table string, rowID int64, values map[string]any) error {
	return g.withDB(ctx, fileName, func(db *sql.DB) error {
		cols, err := getColumnInfo(ctx, db, table)
		if err != nil {
			return err
		}
		names, args := matchColumns(cols, values)
		if len(names) == 0 {
			return ErrNoValidColumns
		}
		sets := make([]string, len(names))
		for i, name := range names {
			sets[i] = quoteRaw(name) + " = ?"
		}
		updateSQL := fmt.Sprintf(`UPDATE "%s" SET %s WHERE rowid = ?`, table, strings.Join(sets, ", "))

		result, err := db.ExecContext(ctx, updateSQL, append(args, rowID)...)
		if err != nil {
			customLog.Warnf("Storage: Failed UPDATE: %v\nSQL: %s", err, updateSQL)
			return mapEngineError("update", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}

// DeleteRow deletes the row with the given rowid.
func (g *Gateway) DeleteRow(ctx context.Context, fileName, table string, rowID int64) error {
	return g.withDB(ctx, fileName, func(db *sql.DB) error {
		if err := requireTable(ctx, db, table); err != nil {
			return err
		}
		result, err := db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM "%s" WHERE rowid = ?`, table), rowID)
		if err != nil {
			customLog.Warnf("Storage: Failed DELETE on '%s': %v", table, err)
			return mapEngineError("delete", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrRecordNotFound
		}
		return nil
	})
}

// RowByID returns the row with the given rowid.
func (g *Gateway) RowByID(ctx context.Context, fileName, table string, rowID int64) (map[string]any, error) {
	var row map[string]any
	err := g.withDB(ctx, fileName, func(db *sql.DB) error {
		if err := requireTable(ctx, db, table); err != nil {
			return err
		}
		rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT rowid AS "%s", * FROM "%s" WHERE rowid = ?`, RowIDColumn, table), rowID)
		if err != nil {
			return mapEngineError("select", err)
		}
		defer rows.Close()
		_, results, err := scanRowMaps(rows)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			return ErrRecordNotFound
		}
		row = results[0]
		return nil
	})
	return row, err
}

// RowsPage returns one page of rows plus the table's total row count.
func (g *Gateway) RowsPage(ctx context.Context, fileName, table string, opts *core.ListQueryOptions) (*domain.RowPage, error) {
	if opts == nil {
		opts = &core.ListQueryOptions{Limit: core.DefaultLimit, SortOrder: core.DefaultOrder}
	}
	page := &domain.RowPage{Limit: opts.Limit, Offset: opts.Offset}
	err := g.withDB(ctx, fileName, func(db *sql.DB) error {
		cols, err := getColumnInfo(ctx, db, table)
		if err != nil {
			return err
		}
		orderBy := "rowid"
		if opts.SortBy != "" {
			col := findColumn(cols, opts.SortBy)
			if col == nil && !strings.EqualFold(opts.SortBy, RowIDColumn) {
				return fmt.Errorf("%w: sort column %s", ErrColumnNotFound, opts.SortBy)
			}
			if col != nil {
				orderBy = quoteRaw(col.Name)
			}
		}
		direction := "ASC"
		if opts.SortOrder == "desc" {
			direction = "DESC"
		}

		if page.Total, err = countRows(ctx, db, table); err != nil {
			return err
		}
		selectSQL := fmt.Sprintf(`SELECT rowid AS "%s", * FROM "%s" ORDER BY %s %s LIMIT ? OFFSET ?`,
			RowIDColumn, table, orderBy, direction)
		rows, err := db.QueryContext(ctx, selectSQL, opts.Limit, opts.Offset)
		if err != nil {
			customLog.Warnf("Storage: Failed SELECT page: %v\nSQL: %s", err, selectSQL)
			return mapEngineError("select", err)
		}
		defer rows.Close()
		page.Columns, page.Rows, err = scanRowMaps(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteRaw(n)
	}
	return strings.Join(quoted, ", ")
}
