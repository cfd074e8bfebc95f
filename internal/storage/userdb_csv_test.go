package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/csvimport"
	"github.com/Annany2002/sqlitecult/internal/domain"
)

var productColumns = []domain.ColumnDef{
	{Name: "name", Type: "TEXT"},
	{Name: "price", Type: "REAL"},
	{Name: "qty", Type: "INTEGER"},
}

func TestExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	for _, table := range []string{"products", "products_copy"} {
		_, err := g.CreateTable(ctx, file, table, productColumns)
		require.NoError(t, err)
	}
	for _, row := range []map[string]any{
		{"name": `widget, "large"`, "price": 1.5, "qty": float64(3)},
		{"name": "line\nbreak", "price": float64(2), "qty": nil},
		{"name": "plain", "price": 0.1, "qty": float64(-7)},
	} {
		_, err := g.InsertRow(ctx, file, "products", row)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, g.ExportCSV(ctx, file, "products", &buf))
	assert.True(t, strings.HasPrefix(buf.String(), "name,price,qty\n"))

	n, err := g.ImportCSV(ctx, file, "products_copy", bytes.NewReader(buf.Bytes()), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	opts := &core.ListQueryOptions{Limit: 10}
	original, err := g.RowsPage(ctx, file, "products", opts)
	require.NoError(t, err)
	copied, err := g.RowsPage(ctx, file, "products_copy", opts)
	require.NoError(t, err)
	assert.Equal(t, original.Rows, copied.Rows)
	assert.Nil(t, copied.Rows[1]["qty"])
}

func TestExportImportKeepsEmptyStrings(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	for _, table := range []string{"src", "dst"} {
		_, err := g.RunQuery(ctx, file, `CREATE TABLE `+table+` (name TEXT NOT NULL, note TEXT, qty INTEGER, raw)`)
		require.NoError(t, err)
	}
	for _, row := range []map[string]any{
		{"name": "", "note": "", "qty": nil, "raw": ""},
		{"name": "b", "note": "x", "qty": float64(0), "raw": "y"},
	} {
		_, err := g.InsertRow(ctx, file, "src", row)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, g.ExportCSV(ctx, file, "src", &buf))
	n, err := g.ImportCSV(ctx, file, "dst", bytes.NewReader(buf.Bytes()), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	opts := &core.ListQueryOptions{Limit: 10}
	original, err := g.RowsPage(ctx, file, "src", opts)
	require.NoError(t, err)
	copied, err := g.RowsPage(ctx, file, "dst", opts)
	require.NoError(t, err)
	assert.Equal(t, original.Rows, copied.Rows)
	assert.Equal(t, "", copied.Rows[0]["name"])
	assert.Equal(t, "", copied.Rows[0]["note"])
	assert.Nil(t, copied.Rows[0]["qty"])
}

func TestImportCSVIsAtomic(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	_, err := g.CreateTable(ctx, file, "nums", []domain.ColumnDef{
		{Name: "id", Type: "INTEGER", Constraint: "PRIMARY KEY"},
		{Name: "label", Type: "TEXT", Constraint: "NOT NULL"},
	})
	require.NoError(t, err)

	content := "id,label\n1,one\n2,two\nthree-is-not-a-number-and-it-goes-on-for-a-while,three\n4,four\n5,five\n"
	n, err := g.ImportCSV(ctx, file, "nums", strings.NewReader(content), nil)
	require.Error(t, err)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	var importErr *ImportError
	require.True(t, errors.As(err, &importErr))
	assert.Equal(t, 3, importErr.Row)
	assert.Equal(t, "three", importErr.Values["label"])
	assert.LessOrEqual(t, len([]rune(importErr.Values["id"])), 40)
	assert.True(t, strings.HasSuffix(importErr.Values["id"], "..."))
	assert.Equal(t, "INTEGER", importErr.ExpectedTypes["id"])
	var engineErr *core.EngineError
	assert.True(t, errors.As(err, &engineErr))

	count, err := g.RowCount(ctx, file, "nums")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count, "no row of a failed import is kept")

	// A missing trailing field is NULL, so the NOT NULL column rejects it.
	_, err = g.ImportCSV(ctx, file, "nums", strings.NewReader("id,label\n1\n"), nil)
	require.True(t, errors.As(err, &importErr))
	assert.Equal(t, 1, importErr.Row)
	assert.Empty(t, importErr.ExpectedTypes)
}

func TestImportCSVHeaders(t *testing.T) {
	ctx := context.Background()
	g, file := newTestGateway(t)
	_, err := g.CreateTable(ctx, file, "products", productColumns)
	require.NoError(t, err)

	t.Run("duplicate headers rejected before insert", func(t *testing.T) {
		_, err := g.ImportCSV(ctx, file, "products", strings.NewReader("name,qty, NAME\na,1,b\n"), nil)
		assert.ErrorIs(t, err, csvimport.ErrDuplicateHeader)
		count, err := g.RowCount(ctx, file, "products")
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("unknown header", func(t *testing.T) {
		_, err := g.ImportCSV(ctx, file, "products", strings.NewReader("name,colour\na,red\n"), nil)
		assert.ErrorIs(t, err, ErrColumnNotFound)
	})

	t.Run("empty content", func(t *testing.T) {
		_, err := g.ImportCSV(ctx, file, "products", strings.NewReader(""), nil)
		assert.ErrorIs(t, err, csvimport.ErrNoHeader)
	})

	t.Run("bom, padded headers and short rows", func(t *testing.T) {
		content := "\ufeff name , qty \nalpha,2\nbeta\n"
		n, err := g.ImportCSV(ctx, file, "products", strings.NewReader(content), nil)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("selected columns only", func(t *testing.T) {
		n, err := g.ImportCSV(ctx, file, "products", strings.NewReader("name,colour\ngamma,red\n"), []string{"name"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	count, err := g.RowCount(ctx, file, "products")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
