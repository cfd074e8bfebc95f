package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/csvimport"
	"github.com/Annany2002/sqlitecult/internal/domain"
)

func TestImportModes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.database(t, "crm")
	f.exec(t, "crm", "CREATE TABLE people (name TEXT NOT NULL, age INTEGER)")

	content := []byte("name,age,city\nann,31,Oslo\nbob,,Rome\n")

	report, err := f.imports.Preview(ctx, f.owner, "crm", "people", content)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "age"}, report.Matching)
	assert.Equal(t, []string{"city"}, report.Missing)

	_, err = f.imports.Import(ctx, f.owner, "crm", "people", content, csvimport.ModeAll, nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	result, err := f.imports.Import(ctx, f.owner, "crm", "people", content, csvimport.ModeMatching, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.Empty(t, result.AddedColumns)

	result, err = f.imports.Import(ctx, f.owner, "crm", "people", content, csvimport.ModeAddColumns,
		[]domain.ColumnDef{{Name: "CITY", Type: "TEXT"}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, []string{"city"}, result.AddedColumns)

	res := f.exec(t, "crm", "SELECT COUNT(*), COUNT(city), COUNT(age) FROM people")
	assert.Equal(t, [][]any{{int64(4), int64(2), int64(2)}}, res.Rows)

	history, err := f.queries.History(ctx, f.owner, "crm")
	require.NoError(t, err)
	assert.Contains(t, history[1].Query, `ADD COLUMN "city"`)

	var out bytes.Buffer
	require.NoError(t, f.imports.Export(ctx, f.owner, "crm", "people", &out))
	assert.Equal(t, "name,age,city\n", out.String()[:len("name,age,city\n")])

	_, err = f.imports.Preview(ctx, f.other, "crm", "people", content)
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
	_, err = f.grants.Grant(ctx, f.owner, "crm", f.other.Username, domain.Read)
	require.NoError(t, err)
	require.NoError(t, f.imports.Export(ctx, f.other, "crm", "people", &out))
	_, err = f.imports.Import(ctx, f.other, "crm", "people", content, csvimport.ModeMatching, nil)
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
}

func TestDashboards(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.database(t, "sales")
	f.exec(t, "sales", "CREATE TABLE orders (region TEXT, total REAL)")
	f.exec(t, "sales", "INSERT INTO orders VALUES ('north', 10), ('south', 5)")

	list, err := f.dashboards.List(ctx, f.owner)
	require.NoError(t, err)
	require.Len(t, list, 1)
	home := list[0]
	assert.True(t, home.IsDefault)

	again, err := f.dashboards.EnsureDefault(ctx, f.owner)
	require.NoError(t, err)
	assert.Equal(t, home.ID, again.ID)

	assert.ErrorIs(t, f.dashboards.Delete(ctx, f.owner, home.ID), ErrDefaultDashboard)

	ops, err := f.dashboards.Create(ctx, f.owner, "Ops", "")
	require.NoError(t, err)
	_, err = f.dashboards.Create(ctx, f.owner, "Ops", "")
	assert.ErrorIs(t, err, core.ErrConflict)

	input := ChartInput{
		Title:        "By region",
		DatabaseName: "sales",
		Query:        "SELECT region, total FROM orders ORDER BY region",
		ChartType:    "bar",
		DashboardID:  &ops.ID,
	}
	chart, err := f.dashboards.CreateChart(ctx, f.owner, input)
	require.NoError(t, err)
	assert.Equal(t, ops.ID, chart.DashboardID)
	assert.Equal(t, "sales", chart.DatabaseName)

	_, data, err := f.dashboards.ChartData(ctx, f.owner, chart.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "total"}, data.Columns)
	assert.Len(t, data.Rows, 2)

	bad := input
	bad.Query = "DELETE FROM orders"
	_, err = f.dashboards.CreateChart(ctx, f.owner, bad)
	assert.ErrorIs(t, err, ErrChartWrites)
	bad = input
	bad.ChartType = "scatter"
	_, err = f.dashboards.CreateChart(ctx, f.owner, bad)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	bad = input
	bad.RefreshInterval = 45
	_, err = f.dashboards.CreateChart(ctx, f.owner, bad)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.dashboards.CreateChart(ctx, f.other, ChartInput{Title: "x", DatabaseName: "sales", Query: "SELECT 1", ChartType: "pie"})
	assert.ErrorIs(t, err, core.ErrPermissionDenied)
	_, err = f.dashboards.Preview(ctx, f.other, "sales", "SELECT 1")
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	require.NoError(t, f.dashboards.Delete(ctx, f.owner, ops.ID))
	view, err := f.dashboards.Get(ctx, f.owner, home.ID)
	require.NoError(t, err)
	require.Len(t, view.Charts, 1)
	assert.Equal(t, chart.ID, view.Charts[0].ID)

	second, err := f.dashboards.Create(ctx, f.owner, "Second", "")
	require.NoError(t, err)
	require.NoError(t, f.dashboards.SetDefault(ctx, f.owner, second.ID))
	list, err = f.dashboards.List(ctx, f.owner)
	require.NoError(t, err)
	defaults := 0
	for _, d := range list {
		if d.IsDefault {
			defaults++
			assert.Equal(t, second.ID, d.ID)
		}
	}
	assert.Equal(t, 1, defaults)

	require.NoError(t, f.databases.Delete(ctx, f.owner, "sales"))
	view, err = f.dashboards.Get(ctx, f.owner, home.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Charts, "charts cascade with their database")
}
