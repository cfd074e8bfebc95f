package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
)

// newTestGateway returns a gateway over a temp dir and one fresh tenant file.
func newTestGateway(t *testing.T) (*Gateway, string) {
	t.Helper()
	g, err := NewGateway(t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	file := NewFileName()
	require.NoError(t, g.Create(context.Background(), file))
	return g, file
}

func strPtr(s string) *string { return &s }

func TestGatewayCreateAndRemove(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)

	assert.True(t, g.Exists(file))
	assert.Greater(t, g.Size(file), int64(0))

	err := g.Create(ctx, file)
	assert.ErrorIs(t, err, core.ErrConflict)

	files, err := g.ListFiles()
	require.NoError(t, err)
	assert.Contains(t, files, file)

	require.NoError(t, g.Remove(file))
	assert.False(t, g.Exists(file))

	_, err = g.TableNames(ctx, file)
	assert.ErrorIs(t, err, ErrDatabaseFileMissing)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestGatewayRejectsPathTraversal(t *testing.T) {
	g, _ := newTestGateway(t)
	for _, name := range []string{"../x.db", "a/b.db", "", "noext", ".db"} {
		err := g.Create(context.Background(), name)
		assert.ErrorIs(t, err, core.ErrInvalidInput, name)
	}
}

func TestCreateTableAndIntrospect(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)

	ddl, err := g.CreateTable(ctx, file, "people", []domain.ColumnDef{
		{Name: "id", Type: "integer", Constraint: "primary key autoincrement"},
		{Name: "name", Type: "TEXT", Constraint: "NOT NULL"},
		{Name: "email", Type: "TEXT", Constraint: "UNIQUE"},
		{Name: "score", Type: "REAL", DefaultValue: strPtr("0")},
		{Name: "note", Type: "TEXT", DefaultValue: strPtr("it's")},
	})
	require.NoError(t, err)
	assert.Contains(t, ddl, `CREATE TABLE "people"`)
	assert.Contains(t, ddl, `DEFAULT 'it''s'`)

	_, err = g.CreateTable(ctx, file, "people", []domain.ColumnDef{{Name: "x", Type: "TEXT"}})
	assert.ErrorIs(t, err, ErrTableExists)
	assert.ErrorIs(t, err, core.ErrConflict)

	tables, err := g.ListTables(ctx, file)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "people", tables[0].Name)
	assert.Len(t, tables[0].Columns, 5)
	assert.Equal(t, int64(0), tables[0].RowCount)

	cols, err := g.TableInfo(ctx, file, "people")
	require.NoError(t, err)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, 1, cols[0].PK)
	assert.True(t, cols[1].NotNull)
	require.NotNil(t, cols[3].DefaultValue)
	assert.Equal(t, "0", *cols[3].DefaultValue)

	schema, err := g.TableSchema(ctx, file, "people")
	require.NoError(t, err)
	assert.Contains(t, schema, "AUTOINCREMENT")

	indexes, err := g.Indexes(ctx, file, "people")
	require.NoError(t, err)
	require.Len(t, indexes, 1)
	assert.True(t, indexes[0].Unique)
	assert.Equal(t, []string{"email"}, indexes[0].Columns)

	_, err = g.TableInfo(ctx, file, "missing")
	assert.ErrorIs(t, err, ErrTableNotFound)

	_, err = g.DropTable(ctx, file, "people")
	require.NoError(t, err)
	_, err = g.DropTable(ctx, file, "people")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestGatewayRejectsInvalidIdentifiers(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	_, err := g.CreateTable(ctx, file, "items", []domain.ColumnDef{{Name: "label", Type: "TEXT"}})
	require.NoError(t, err)

	testCases := []struct {
		name string
		call func() error
	}{
		{"table with space", func() error {
			_, err := g.CreateTable(ctx, file, "bad name", []domain.ColumnDef{{Name: "a", Type: "TEXT"}})
			return err
		}},
		{"injected table", func() error {
			_, err := g.CreateTable(ctx, file, `x"; DROP TABLE items; --`, []domain.ColumnDef{{Name: "a", Type: "TEXT"}})
			return err
		}},
		{"reserved prefix", func() error {
			_, err := g.CreateTable(ctx, file, "sqlite_stuff", []domain.ColumnDef{{Name: "a", Type: "TEXT"}})
			return err
		}},
		{"bad column", func() error {
			_, err := g.AddColumn(ctx, file, "items", domain.ColumnDef{Name: "a-b", Type: "TEXT"})
			return err
		}},
		{"bad type", func() error {
			_, err := g.AddColumn(ctx, file, "items", domain.ColumnDef{Name: "ok", Type: "TEXT); DROP TABLE items; --"})
			return err
		}},
		{"bad constraint", func() error {
			_, err := g.AddColumn(ctx, file, "items", domain.ColumnDef{Name: "ok", Type: "TEXT", Constraint: "CHECK (1)"})
			return err
		}},
		{"insert into bad table", func() error {
			_, err := g.InsertRow(ctx, file, "items; --", map[string]any{"label": "x"})
			return err
		}},
		{"bad index", func() error {
			_, err := g.CreateIndex(ctx, file, "idx x", "items", []string{"label"}, false)
			return err
		}},
		{"duplicate column", func() error {
			_, err := g.CreateTable(ctx, file, "dupes", []domain.ColumnDef{{Name: "a", Type: "TEXT"}, {Name: "A", Type: "TEXT"}})
			return err
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.call(), core.ErrInvalidInput)
		})
	}

	names, err := g.TableNames(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, []string{"items"}, names)
}

func TestColumnsAndIndexes(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	_, err := g.CreateTable(ctx, file, "items", []domain.ColumnDef{{Name: "label", Type: "TEXT"}})
	require.NoError(t, err)

	stmts, err := g.AddColumns(ctx, file, "items", []domain.ColumnDef{
		{Name: "qty", Type: "INTEGER", DefaultValue: strPtr("1")},
		{Name: "price", Type: "REAL"},
	})
	require.NoError(t, err)
	assert.Len(t, stmts, 2)

	// A failing column in a bulk add leaves none of them behind.
	_, err = g.AddColumns(ctx, file, "items", []domain.ColumnDef{
		{Name: "extra", Type: "TEXT"},
		{Name: "qty", Type: "TEXT"},
	})
	require.Error(t, err)
	cols, err := g.TableInfo(ctx, file, "items")
	require.NoError(t, err)
	assert.Len(t, cols, 3)

	_, err = g.CreateIndex(ctx, file, "idx_items_label", "items", []string{"label", "qty"}, false)
	require.NoError(t, err)
	_, err = g.CreateIndex(ctx, file, "idx_items_label", "items", []string{"label"}, false)
	assert.ErrorIs(t, err, ErrIndexExists)

	_, err = g.CreateTable(ctx, file, "tags", []domain.ColumnDef{{Name: "tag", Type: "TEXT"}})
	require.NoError(t, err)
	_, err = g.CreateIndex(ctx, file, "idx_tags_tag", "tags", []string{"tag"}, true)
	require.NoError(t, err)
	_, err = g.DropIndex(ctx, file, "items", "idx_tags_tag")
	assert.ErrorIs(t, err, ErrIndexNotFound, "an index is only dropped through its own table")
	tagIndexes, err := g.Indexes(ctx, file, "tags")
	require.NoError(t, err)
	assert.Len(t, tagIndexes, 1)

	_, err = g.DropIndex(ctx, file, "items", "idx_items_label")
	require.NoError(t, err)
	_, err = g.DropIndex(ctx, file, "items", "idx_items_label")
	assert.ErrorIs(t, err, ErrIndexNotFound)

	_, err = g.DropColumns(ctx, file, "items", []string{"price", "nope"})
	assert.ErrorIs(t, err, ErrColumnNotFound)
	_, err = g.DropColumn(ctx, file, "items", "price")
	require.NoError(t, err)
	cols, err = g.TableInfo(ctx, file, "items")
	require.NoError(t, err)
	assert.Len(t, cols, 2)
}

func TestRowOperations(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	_, err := g.CreateTable(ctx, file, "people", []domain.ColumnDef{
		{Name: "name", Type: "TEXT", Constraint: "NOT NULL"},
		{Name: "age", Type: "INTEGER"},
		{Name: "tags", Type: "TEXT"},
	})
	require.NoError(t, err)

	id, err := g.InsertRow(ctx, file, "people", map[string]any{
		"name": "alice", "age": float64(30), "tags": []any{"a", "b"}, "ignored": true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	_, err = g.InsertRow(ctx, file, "people", map[string]any{"NAME": "bob", "age": float64(25)})
	require.NoError(t, err)

	row, err := g.RowByID(ctx, file, "people", id)
	require.NoError(t, err)
	assert.Equal(t, "alice", row["name"])
	assert.Equal(t, int64(30), row["age"])
	assert.Equal(t, `["a","b"]`, row["tags"])
	assert.Equal(t, int64(1), row[RowIDColumn])

	_, err = g.InsertRow(ctx, file, "people", map[string]any{"unknown": 1})
	assert.ErrorIs(t, err, ErrNoValidColumns)

	_, err = g.InsertRow(ctx, file, "people", map[string]any{"age": float64(1)})
	var engineErr *core.EngineError
	assert.True(t, errors.As(err, &engineErr))
	assert.Contains(t, err.Error(), "NOT NULL")

	require.NoError(t, g.UpdateRow(ctx, file, "people", id, map[string]any{"age": float64(31)}))
	row, err = g.RowByID(ctx, file, "people", id)
	require.NoError(t, err)
	assert.Equal(t, int64(31), row["age"])

	assert.ErrorIs(t, g.UpdateRow(ctx, file, "people", 99, map[string]any{"age": 1}), ErrRecordNotFound)

	page, err := g.RowsPage(ctx, file, "people", &core.ListQueryOptions{Limit: 1, SortBy: "age", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, "bob", page.Rows[0]["name"])

	_, err = g.RowsPage(ctx, file, "people", &core.ListQueryOptions{Limit: 10, SortBy: "nope"})
	assert.ErrorIs(t, err, ErrColumnNotFound)

	require.NoError(t, g.DeleteRow(ctx, file, "people", id))
	_, err = g.RowByID(ctx, file, "people", id)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.ErrorIs(t, g.DeleteRow(ctx, file, "people", id), ErrRecordNotFound)

	n, err := g.RowCount(ctx, file, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestModifyColumnTypePreservesRows(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	_, err := g.CreateTable(ctx, file, "people", []domain.ColumnDef{
		{Name: "name", Type: "TEXT", Constraint: "NOT NULL"},
		{Name: "age", Type: "TEXT"},
		{Name: "email", Type: "TEXT", Constraint: "UNIQUE"},
	})
	require.NoError(t, err)
	_, err = g.CreateIndex(ctx, file, "idx_people_name", "people", []string{"name"}, false)
	require.NoError(t, err)

	for _, row := range []map[string]any{
		{"name": "alice", "age": "30", "email": "a@x.io"},
		{"name": "bob", "age": "41", "email": "b@x.io"},
		{"name": "carol", "email": "c@x.io"},
	} {
		_, err := g.InsertRow(ctx, file, "people", row)
		require.NoError(t, err)
	}
	require.NoError(t, g.DeleteRow(ctx, file, "people", 1))

	require.NoError(t, g.ModifyColumnType(ctx, file, "people", "age", "INTEGER", ""))

	cols, err := g.TableInfo(ctx, file, "people")
	require.NoError(t, err)
	age := findColumn(cols, "age")
	require.NotNil(t, age)
	assert.Equal(t, "INTEGER", age.Type)
	assert.True(t, findColumn(cols, "name").NotNull)

	n, err := g.RowCount(ctx, file, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Rowids survive the rebuild.
	row, err := g.RowByID(ctx, file, "people", 2)
	require.NoError(t, err)
	assert.Equal(t, "bob", row["name"])
	assert.Equal(t, int64(41), row["age"])

	indexes, err := g.Indexes(ctx, file, "people")
	require.NoError(t, err)
	var names []string
	unique := false
	for _, idx := range indexes {
		names = append(names, idx.Name)
		if idx.Unique && len(idx.Columns) == 1 && idx.Columns[0] == "email" {
			unique = true
		}
	}
	assert.Contains(t, names, "idx_people_name")
	assert.True(t, unique, "unique constraint on email is kept")
}

func TestModifyColumnTypeIsAtomic(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	_, err := g.CreateTable(ctx, file, "people", []domain.ColumnDef{
		{Name: "name", Type: "TEXT"},
		{Name: "age", Type: "TEXT"},
	})
	require.NoError(t, err)
	_, err = g.InsertRow(ctx, file, "people", map[string]any{"name": "alice", "age": "30"})
	require.NoError(t, err)
	_, err = g.InsertRow(ctx, file, "people", map[string]any{"name": "bob"})
	require.NoError(t, err)

	err = g.ModifyColumnType(ctx, file, "people", "age", "INTEGER", "NOT NULL")
	require.Error(t, err)

	cols, err := g.TableInfo(ctx, file, "people")
	require.NoError(t, err)
	assert.Equal(t, "TEXT", findColumn(cols, "age").Type)
	assert.False(t, findColumn(cols, "age").NotNull)

	n, err := g.RowCount(ctx, file, "people")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	names, err := g.TableNames(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, []string{"people"}, names)

	assert.ErrorIs(t, g.ModifyColumnType(ctx, file, "people", "nope", "TEXT", ""), ErrColumnNotFound)
	assert.ErrorIs(t, g.ModifyColumnType(ctx, file, "people", "age", "VARCHAR(2)", ""), core.ErrInvalidInput)
}

func TestModifyColumnTypeRefusesLossyRebuild(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	_, err := g.RunQuery(ctx, file, "CREATE TABLE parents (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	testCases := map[string]string{
		"check":         "CREATE TABLE t_check (qty TEXT, CHECK (qty <> ''))",
		"foreign key":   "CREATE TABLE t_fk (qty TEXT, parent_id INTEGER REFERENCES parents(id))",
		"collate":       "CREATE TABLE t_collate (qty TEXT, code TEXT COLLATE NOCASE)",
		"unique pair":   "CREATE TABLE t_pair (qty TEXT, a TEXT, b TEXT, UNIQUE (a, b))",
		"without rowid": "CREATE TABLE t_norowid (k TEXT PRIMARY KEY, qty TEXT) WITHOUT ROWID",
	}
	for name, createSQL := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := g.RunQuery(ctx, file, createSQL)
			require.NoError(t, err)
			table := strings.Fields(createSQL)[2]

			err = g.ModifyColumnType(ctx, file, table, "qty", "INTEGER", "")
			assert.ErrorIs(t, err, ErrTableNotRebuildable)
			assert.ErrorIs(t, err, core.ErrConflict)

			schema, err := g.TableSchema(ctx, file, table)
			require.NoError(t, err)
			assert.Equal(t, createSQL, schema)
		})
	}

	// Keywords inside literals do not count.
	_, err = g.RunQuery(ctx, file, "CREATE TABLE notes (body TEXT DEFAULT 'check references', qty TEXT)")
	require.NoError(t, err)
	require.NoError(t, g.ModifyColumnType(ctx, file, "notes", "qty", "INTEGER", ""))
}

func TestRunQueryClassification(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	_, err := g.CreateTable(ctx, file, "items", []domain.ColumnDef{
		{Name: "id", Type: "INTEGER", Constraint: "PRIMARY KEY"},
		{Name: "label", Type: "TEXT"},
	})
	require.NoError(t, err)

	res, err := g.RunQuery(ctx, file, "SELECT * FROM items")
	require.NoError(t, err)
	assert.True(t, res.Tabular, "a select with no rows is still tabular")
	assert.Equal(t, []string{"id", "label"}, res.Columns)
	assert.Empty(t, res.Rows)
	assert.NotNil(t, res.Rows)

	res, err = g.RunQuery(ctx, file, "INSERT INTO items (label) VALUES ('a'), ('b')")
	require.NoError(t, err)
	assert.False(t, res.Tabular)
	assert.Equal(t, int64(2), res.RowsAffected)

	res, err = g.RunQuery(ctx, file, "  -- count\nSELECT COUNT(*) AS n FROM items")
	require.NoError(t, err)
	require.True(t, res.Tabular)
	assert.Equal(t, [][]any{{int64(2)}}, res.Rows)

	res, err = g.RunQuery(ctx, file, "UPDATE items SET label = 'z' WHERE label = 'none'")
	require.NoError(t, err)
	assert.False(t, res.Tabular)
	assert.Equal(t, int64(0), res.RowsAffected)

	res, err = g.RunQuery(ctx, file, "PRAGMA table_info(items)")
	require.NoError(t, err)
	assert.True(t, res.Tabular)
	assert.Len(t, res.Rows, 2)

	res, err = g.RunQuery(ctx, file, "CREATE TABLE t2 (x INTEGER); INSERT INTO t2 VALUES (1); INSERT INTO t2 VALUES (2)")
	require.NoError(t, err)
	assert.False(t, res.Tabular)
	res, err = g.RunQuery(ctx, file, "SELECT x FROM t2 ORDER BY x")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1)}, {int64(2)}}, res.Rows)

	_, err = g.RunQuery(ctx, file, "SELEC nonsense")
	var engineErr *core.EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Contains(t, err.Error(), "syntax error")

	_, err = g.RunQuery(ctx, file, "  -- nothing here\n")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestRunQueryStaysInTenantFile(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	other := NewFileName()
	require.NoError(t, g.Create(ctx, other))
	_, err := g.RunQuery(ctx, other, "CREATE TABLE secrets (v TEXT); INSERT INTO secrets VALUES ('x')")
	require.NoError(t, err)

	for _, query := range []string{
		"ATTACH DATABASE '" + g.Path(other) + "' AS o",
		"ATTACH DATABASE '" + g.Path(other) + "' AS o; DELETE FROM o.secrets",
		"ATTACH DATABASE ':memory:' AS scratch",
	} {
		_, err := g.RunQuery(ctx, file, query)
		var engineErr *core.EngineError
		assert.True(t, errors.As(err, &engineErr), query)
	}
	res, err := g.RunQuery(ctx, other, "SELECT COUNT(*) FROM secrets")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1)}}, res.Rows)

	target := filepath.Join(t.TempDir(), "dump.db")
	_, err = g.RunQuery(ctx, file, "VACUUM INTO '"+target+"'")
	assert.ErrorIs(t, err, ErrStatementNotAllowed)
	_, err = g.RunReadQuery(ctx, file, "VACUUM INTO '"+target+"'")
	assert.ErrorIs(t, err, ErrStatementNotAllowed)
	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))

	_, err = g.RunQuery(ctx, file, "VACUUM")
	assert.NoError(t, err)
}

func TestRunReadQueryRejectsWrites(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	_, err := g.RunQuery(ctx, file, "CREATE TABLE items (label TEXT); INSERT INTO items VALUES ('a')")
	require.NoError(t, err)

	for _, query := range []string{
		"PRAGMA user_version(42)",
		"PRAGMA user_version = 42",
		"PRAGMA journal_mode(DELETE)",
		"ANALYZE",
		"INSERT INTO items VALUES ('b')",
		"SELECT 1; DELETE FROM items",
	} {
		_, err := g.RunReadQuery(ctx, file, query)
		var engineErr *core.EngineError
		assert.True(t, errors.As(err, &engineErr), query)
	}

	res, err := g.RunReadQuery(ctx, file, "PRAGMA user_version")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1)}}, res.Rows)
	res, err = g.RunReadQuery(ctx, file, "PRAGMA table_info(items)")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
	res, err = g.RunReadQuery(ctx, file, "SELECT label FROM items")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"a"}}, res.Rows)
	res, err = g.RunQuery(ctx, file, "SELECT COUNT(*) FROM sqlite_master WHERE name = 'sqlite_stat1'")
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(0)}}, res.Rows)
}
