package handlers_test

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createOrdersDatabase(t *testing.T, base, token, name string) {
	t.Helper()
	status, body := doJSON(t, http.MethodPost, base+"/api/v1/databases", token, map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, status, "create database: %v", body)

	status, body = doJSON(t, http.MethodPost, base+"/api/v1/databases/"+name+"/tables", token, map[string]any{
		"table_name": "orders",
		"columns": []map[string]any{
			{"name": "item", "type": "TEXT", "constraint": "NOT NULL"},
			{"name": "qty", "type": "INTEGER"},
		},
	})
	require.Equal(t, http.StatusCreated, status, "create table: %v", body)
}

func TestDatabaseAndRecordFlow(t *testing.T) {
	server, _, _ := setupTestServer(t)
	base := server.URL
	alice := signupAndLogin(t, server, "alice")
	bob := signupAndLogin(t, server, "bob")

	createOrdersDatabase(t, base, alice, "sales")
	tableURL := base + "/api/v1/databases/sales/tables/orders"

	status, _ := doJSON(t, http.MethodPost, base+"/api/v1/databases", alice, map[string]any{"name": "sales"})
	assert.Equal(t, http.StatusConflict, status, "names are unique")
	status, _ = doJSON(t, http.MethodPost, base+"/api/v1/databases", alice, map[string]any{"name": "bad-name"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doJSON(t, http.MethodPost, tableURL+"/rows", alice, map[string]any{"item": "pen", "qty": 3, "ignored": true})
	require.Equal(t, http.StatusCreated, status, "%v", body)
	assert.EqualValues(t, 1, body["rowid"])

	status, body = doJSON(t, http.MethodGet, tableURL+"/rows?per_page=10", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])
	assert.EqualValues(t, 10, body["limit"])

	status, body = doJSON(t, http.MethodPut, tableURL+"/rows/1", alice, map[string]any{"qty": 5})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 5, body["record"].(map[string]any)["qty"])

	status, _ = doJSON(t, http.MethodGet, tableURL+"/rows/99", alice, nil)
	assert.Equal(t, http.StatusNotFound, status)

	t.Run("schema changes", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, tableURL+"/columns", alice, map[string]any{
			"columns": []map[string]any{{"name": "note", "type": "TEXT"}, {"name": "price", "type": "REAL"}},
		})
		require.Equal(t, http.StatusCreated, status, "%v", body)

		status, _ = doJSON(t, http.MethodPost, tableURL+"/columns/drop", alice, map[string]any{"columns": []string{"note"}})
		assert.Equal(t, http.StatusOK, status)

		status, _ = doJSON(t, http.MethodPatch, tableURL+"/columns/qty", alice, map[string]any{"type": "REAL"})
		assert.Equal(t, http.StatusOK, status)

		status, _ = doJSON(t, http.MethodPost, tableURL+"/indexes", alice, map[string]any{"name": "idx_item", "columns": []string{"item"}})
		assert.Equal(t, http.StatusCreated, status)

		status, body = doJSON(t, http.MethodGet, tableURL, alice, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["indexes"], 1)
		assert.EqualValues(t, 1, body["rows"].(map[string]any)["count"], "migration keeps rows")

		status, body = doJSON(t, http.MethodGet, base+"/api/v1/databases/sales/schema", alice, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, body["schema"], "orders")
	})

	t.Run("sharing", func(t *testing.T) {
		status, _ := doJSON(t, http.MethodGet, base+"/api/v1/databases/sales", bob, nil)
		assert.Equal(t, http.StatusForbidden, status)

		status, body := doJSON(t, http.MethodPost, base+"/api/v1/databases/sales/permissions", alice, map[string]any{"user": "bob", "level": "read"})
		require.Equal(t, http.StatusCreated, status, "%v", body)
		bobID := body["permission"].(map[string]any)["user_id"].(string)

		status, _ = doJSON(t, http.MethodGet, tableURL+"/rows", bob, nil)
		assert.Equal(t, http.StatusOK, status)
		status, _ = doJSON(t, http.MethodPost, tableURL+"/rows", bob, map[string]any{"item": "cup"})
		assert.Equal(t, http.StatusForbidden, status)
		status, _ = doJSON(t, http.MethodPost, base+"/api/v1/databases/sales/query", bob, map[string]any{"query": "DELETE FROM orders"})
		assert.Equal(t, http.StatusForbidden, status)

		status, _ = doJSON(t, http.MethodPut, base+"/api/v1/databases/sales/permissions/"+bobID, alice, map[string]any{"level": "write"})
		assert.Equal(t, http.StatusOK, status)
		status, _ = doJSON(t, http.MethodPost, tableURL+"/rows", bob, map[string]any{"item": "cup"})
		assert.Equal(t, http.StatusCreated, status)

		status, _ = doJSON(t, http.MethodDelete, base+"/api/v1/databases/sales", bob, nil)
		assert.Equal(t, http.StatusForbidden, status, "write grants cannot delete")

		status, _ = doJSON(t, http.MethodDelete, base+"/api/v1/databases/sales/permissions/"+bobID, alice, nil)
		assert.Equal(t, http.StatusOK, status)
		status, _ = doJSON(t, http.MethodGet, tableURL+"/rows", bob, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("queries", func(t *testing.T) {
		status, body := doJSON(t, http.MethodPost, base+"/api/v1/databases/sales/query", alice, map[string]any{"query": "SELECT COUNT(*) AS n FROM orders"})
		require.Equal(t, http.StatusOK, status)
		result := body["result"].(map[string]any)
		assert.Equal(t, true, result["tabular"])
		assert.Equal(t, []any{"n"}, result["columns"])

		status, body = doJSON(t, http.MethodPost, base+"/api/v1/databases/sales/query", alice, map[string]any{"query": "SELEC nope"})
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "engine_error", body["code"])

		status, body = doJSON(t, http.MethodGet, base+"/api/v1/history?db=sales", alice, nil)
		require.Equal(t, http.StatusOK, status)
		history := body["history"].([]any)
		require.NotEmpty(t, history)
		assert.Equal(t, "SELEC nope", history[0].(map[string]any)["query"])
		assert.Equal(t, false, history[0].(map[string]any)["success"])
	})

	t.Run("delete database", func(t *testing.T) {
		status, _ := doJSON(t, http.MethodDelete, base+"/api/v1/databases/sales", alice, nil)
		assert.Equal(t, http.StatusOK, status)
		status, _ = doJSON(t, http.MethodGet, base+"/api/v1/databases/sales", alice, nil)
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func sendCSV(t *testing.T, url, token, content string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(content))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(raw)
}

func TestCSVExportImport(t *testing.T) {
	server, _, _ := setupTestServer(t)
	base := server.URL
	alice := signupAndLogin(t, server, "alice")
	createOrdersDatabase(t, base, alice, "sales")
	tableURL := base + "/api/v1/databases/sales/tables/orders"

	status, body := sendCSV(t, tableURL+"/import", alice, "item,qty\npen,3\nbook,2\n")
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"rows_imported":2`)

	status, body = sendCSV(t, tableURL+"/import/preview", alice, "item,color\ncup,red\n")
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body, `"missing_columns":["color"]`)

	status, _ = sendCSV(t, tableURL+"/import", alice, "item,color\ncup,red\n")
	assert.Equal(t, http.StatusBadRequest, status, "mode all rejects missing columns")

	status, body = sendCSV(t, tableURL+"/import?mode=matching", alice, "item,color\ncup,red\n")
	require.Equal(t, http.StatusOK, status, body)

	status, _ = sendCSV(t, tableURL+"/import", alice, "item,item\na,b\n")
	assert.Equal(t, http.StatusBadRequest, status, "duplicate headers")

	req, err := http.NewRequest(http.MethodGet, tableURL+"/export", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+alice)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "item,qty", strings.TrimSpace(lines[0]))
}

func TestPublicAPI(t *testing.T) {
	server, _, _ := setupTestServer(t)
	base := server.URL
	alice := signupAndLogin(t, server, "alice")
	createOrdersDatabase(t, base, alice, "sales")
	createOrdersDatabase(t, base, alice, "other")

	status, _ := doJSON(t, http.MethodGet, base+"/api/db/sales/tables", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status, "missing header")

	status, _ = doJSON(t, http.MethodGet, base+"/api/db/sales/tables", "whatever", nil)
	assert.Equal(t, http.StatusForbidden, status, "API disabled")

	status, body := doJSON(t, http.MethodPut, base+"/api/v1/databases/sales/api", alice, map[string]any{"enabled": true, "permissions": []string{"read"}})
	require.Equal(t, http.StatusOK, status, "%v", body)
	token := body["api"].(map[string]any)["token"].(string)
	require.NotEmpty(t, token)

	status, body = doJSON(t, http.MethodGet, base+"/api/db/sales/tables", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"orders"}, body["tables"])

	status, _ = doJSON(t, http.MethodGet, base+"/api/db/sales/table/orders?limit=5", token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doJSON(t, http.MethodPost, base+"/api/db/sales/table/orders", token, map[string]any{"item": "pen"})
	assert.Equal(t, http.StatusForbidden, status, "read-only token")

	status, _ = doJSON(t, http.MethodGet, base+"/api/db/nosuch/tables", token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, http.MethodPut, base+"/api/v1/databases/other/api", alice, map[string]any{"enabled": true})
	require.Equal(t, http.StatusOK, status)
	status, _ = doJSON(t, http.MethodGet, base+"/api/db/other/tables", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status, "token for sales rejected at other")

	status, body = doJSON(t, http.MethodPut, base+"/api/v1/databases/sales/api", alice, map[string]any{"enabled": true, "permissions": []string{"read", "create", "update", "delete"}})
	require.Equal(t, http.StatusOK, status)
	writer := body["api"].(map[string]any)["token"].(string)

	status, body = doJSON(t, http.MethodPost, base+"/api/db/sales/table/orders", writer, map[string]any{"item": "pen", "qty": 2})
	require.Equal(t, http.StatusCreated, status, "%v", body)
	rowURL := fmt.Sprintf("%s/api/db/sales/table/orders/%v", base, body["id"])

	status, body = doJSON(t, http.MethodPut, rowURL, writer, map[string]any{"qty": 4})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 4, body["data"].(map[string]any)["qty"])

	status, _ = doJSON(t, http.MethodDelete, rowURL, writer, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = doJSON(t, http.MethodGet, rowURL, writer, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = doJSON(t, http.MethodPost, base+"/api/v1/databases/sales/api/regenerate", alice, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = doJSON(t, http.MethodGet, base+"/api/db/sales/tables", writer, nil)
	assert.Equal(t, http.StatusUnauthorized, status, "regenerate invalidates earlier tokens")
}

func TestDashboardsAndCharts(t *testing.T) {
	server, _, _ := setupTestServer(t)
	base := server.URL
	alice := signupAndLogin(t, server, "alice")
	createOrdersDatabase(t, base, alice, "sales")

	status, body := doJSON(t, http.MethodGet, base+"/api/v1/dashboards", alice, nil)
	require.Equal(t, http.StatusOK, status)
	dashboards := body["dashboards"].([]any)
	require.Len(t, dashboards, 1)
	defaultID := dashboards[0].(map[string]any)["id"]

	status, body = doJSON(t, http.MethodPost, base+"/api/v1/charts", alice, map[string]any{
		"title":            "Quantities",
		"database":         "sales",
		"query":            "SELECT item, qty FROM orders",
		"chart_type":       "bar",
		"refresh_interval": 60,
	})
	require.Equal(t, http.StatusCreated, status, "%v", body)
	chart := body["chart"].(map[string]any)
	assert.Equal(t, defaultID, chart["dashboard_id"])

	status, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/charts/%v/data", base, chart["id"]), alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"item", "qty"}, body["result"].(map[string]any)["columns"])

	status, _ = doJSON(t, http.MethodPost, base+"/api/v1/charts", alice, map[string]any{
		"title": "Bad", "database": "sales", "query": "SELECT 1", "chart_type": "scatter",
	})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, http.MethodPost, base+"/api/v1/charts/preview", alice, map[string]any{"database": "sales", "query": "DELETE FROM orders"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, http.MethodDelete, fmt.Sprintf("%s/api/v1/dashboards/%v", base, defaultID), alice, nil)
	assert.Equal(t, http.StatusBadRequest, status, "default dashboard cannot be deleted")

	status, body = doJSON(t, http.MethodPost, base+"/api/v1/dashboards", alice, map[string]any{"name": "Ops"})
	require.Equal(t, http.StatusCreated, status)
	opsID := body["dashboard"].(map[string]any)["id"]

	status, _ = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/dashboards/%v/default", base, opsID), alice, nil)
	require.Equal(t, http.StatusOK, status)
	status, body = doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/v1/dashboards/%v", base, opsID), alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_default"])
}
