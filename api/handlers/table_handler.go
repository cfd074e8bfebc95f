// api/handlers/table_handler.go
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/sqlitecult/api/models"
	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/service"
)

// TableHandler serves table, column and index management. Every DDL
// statement it issues is written to the query log.
type TableHandler struct {
	Databases *service.DatabaseService
	Queries   *service.QueryService
}

// NewTableHandler creates a new TableHandler.
func NewTableHandler(databases *service.DatabaseService, queries *service.QueryService) *TableHandler {
	return &TableHandler{Databases: databases, Queries: queries}
}

func (h *TableHandler) open(c *gin.Context, required domain.Level) (*service.Handle, error) {
	return h.Databases.Open(c.Request.Context(), user(c), c.Param("db_name"), required)
}

func (h *TableHandler) logDDL(c *gin.Context, handle *service.Handle, statements ...string) {
	h.Queries.LogStatements(c.Request.Context(), user(c), handle.DisplayName, statements...)
}

// CreateTable creates a table with an implicit integer primary key.
func (h *TableHandler) CreateTable(c *gin.Context) {
	handle, err := h.open(c, domain.Write)
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req models.CreateTableRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	stmt, err := h.Databases.Gateway.CreateTable(c.Request.Context(), handle.FileName, req.TableName, models.ColumnDefs(req.Columns))
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logDDL(c, handle, stmt)

	customLog.Printf("Handler: Created table '%s' in '%s'", req.TableName, handle.DisplayName)
	c.JSON(http.StatusCreated, gin.H{
		"message":    fmt.Sprintf("Table '%s' created", req.TableName),
		"db_name":    handle.DisplayName,
		"table_name": req.TableName,
		"sql":        stmt,
	})
}

// DropTable drops the addressed table.
func (h *TableHandler) DropTable(c *gin.Context) {
	handle, err := h.open(c, domain.Write)
	if err != nil {
		_ = c.Error(err)
		return
	}
	table := c.Param("table_name")
	stmt, err := h.Databases.Gateway.DropTable(c.Request.Context(), handle.FileName, table)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logDDL(c, handle, stmt)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Table '%s' dropped", table)})
}

// GetTable returns the columns, indexes and one page of rows of a table.
func (h *TableHandler) GetTable(c *gin.Context) {
	handle, err := h.open(c, domain.Read)
	if err != nil {
		_ = c.Error(err)
		return
	}
	opts, err := core.ParseListQueryOptions(c.Request.URL.Query())
	if err != nil {
		_ = c.Error(err)
		return
	}

	ctx := c.Request.Context()
	table := c.Param("table_name")
	columns, err := h.Databases.Gateway.TableInfo(ctx, handle.FileName, table)
	if err != nil {
		_ = c.Error(err)
		return
	}
	indexes, err := h.Databases.Gateway.Indexes(ctx, handle.FileName, table)
	if err != nil {
		_ = c.Error(err)
		return
	}
	page, err := h.Databases.Gateway.RowsPage(ctx, handle.FileName, table, opts)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"table":   table,
		"level":   handle.Level,
		"columns": columns,
		"indexes": indexes,
		"rows":    page,
		"page":    opts.Page(),
	})
}

// GetTableSchema returns the CREATE statement of a table.
func (h *TableHandler) GetTableSchema(c *gin.Context) {
	handle, err := h.open(c, domain.Read)
	if err != nil {
		_ = c.Error(err)
		return
	}
	table := c.Param("table_name")
	schema, err := h.Databases.Gateway.TableSchema(c.Request.Context(), handle.FileName, table)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"table": table, "schema": schema})
}

// AddColumns adds either the single "column" or every entry of "columns".
// Bulk additions run in one transaction.
func (h *TableHandler) AddColumns(c *gin.Context) {
	handle, err := h.open(c, domain.Write)
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req models.AddColumnsRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	defs := models.ColumnDefs(req.Columns)
	if req.Column != nil {
		defs = append([]domain.ColumnDef{req.Column.ToDomain()}, defs...)
	}
	if len(defs) == 0 {
		_ = c.Error(core.InvalidInputf("no columns supplied"))
		return
	}

	ctx := c.Request.Context()
	table := c.Param("table_name")
	var statements []string
	if len(defs) == 1 {
		var stmt string
		stmt, err = h.Databases.Gateway.AddColumn(ctx, handle.FileName, table, defs[0])
		statements = []string{stmt}
	} else {
		statements, err = h.Databases.Gateway.AddColumns(ctx, handle.FileName, table, defs)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logDDL(c, handle, statements...)

	added := make([]string, len(defs))
	for i, d := range defs {
		added[i] = d.Name
	}
	c.JSON(http.StatusCreated, gin.H{"message": fmt.Sprintf("Added %d column(s)", len(defs)), "columns": added})
}

// DropColumn drops one column.
func (h *TableHandler) DropColumn(c *gin.Context) {
	handle, err := h.open(c, domain.Write)
	if err != nil {
		_ = c.Error(err)
		return
	}
	column := c.Param("column_name")
	stmt, err := h.Databases.Gateway.DropColumn(c.Request.Context(), handle.FileName, c.Param("table_name"), column)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logDDL(c, handle, stmt)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Column '%s' dropped", column)})
}

// DropColumns drops several columns in one transaction.
func (h *TableHandler) DropColumns(c *gin.Context) {
	handle, err := h.open(c, domain.Write)
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req models.DropColumnsRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	statements, err := h.Databases.Gateway.DropColumns(c.Request.Context(), handle.FileName, c.Param("table_name"), req.Columns)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logDDL(c, handle, statements...)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Dropped %d column(s)", len(req.Columns)), "columns": req.Columns})
}

// ModifyColumn changes the declared type of a column by rebuilding the
// table. Rows, other columns and user indexes are preserved.
func (h *TableHandler) ModifyColumn(c *gin.Context) {
	handle, err := h.open(c, domain.Write)
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req models.ModifyColumnRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	table, column := c.Param("table_name"), c.Param("column_name")
	if err := h.Databases.Gateway.ModifyColumnType(c.Request.Context(), handle.FileName, table, column, req.Type, req.Constraint); err != nil {
		_ = c.Error(err)
		return
	}
	customLog.Printf("Handler: Changed type of %s.%s in '%s' to %s", table, column, handle.DisplayName, req.Type)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Column '%s' modified", column)})
}

// CreateIndex creates an index on the addressed table.
func (h *TableHandler) CreateIndex(c *gin.Context) {
	handle, err := h.open(c, domain.Write)
	if err != nil {
		_ = c.Error(err)
		return
	}
	var req models.CreateIndexRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	stmt, err := h.Databases.Gateway.CreateIndex(c.Request.Context(), handle.FileName, req.Name, c.Param("table_name"), req.Columns, req.Unique)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logDDL(c, handle, stmt)
	c.JSON(http.StatusCreated, gin.H{"message": fmt.Sprintf("Index '%s' created", req.Name), "sql": stmt})
}

// DropIndex drops an index of the table by name.
func (h *TableHandler) DropIndex(c *gin.Context) {
	handle, err := h.open(c, domain.Write)
	if err != nil {
		_ = c.Error(err)
		return
	}
	index := c.Param("index_name")
	stmt, err := h.Databases.Gateway.DropIndex(c.Request.Context(), handle.FileName, c.Param("table_name"), index)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.logDDL(c, handle, stmt)
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Index '%s' dropped", index)})
}
