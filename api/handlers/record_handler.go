// api/handlers/record_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/service"
)

// RecordHandler serves row CRUD for signed-in users.
type RecordHandler struct {
	Databases *service.DatabaseService
}

// NewRecordHandler creates a new RecordHandler.
func NewRecordHandler(databases *service.DatabaseService) *RecordHandler {
	return &RecordHandler{Databases: databases}
}

// target opens the database of the request at the required level and
// returns it with the addressed table.
func (h *RecordHandler) target(c *gin.Context, required domain.Level) (*service.Handle, string, error) {
	handle, err := h.Databases.Open(c.Request.Context(), user(c), c.Param("db_name"), required)
	if err != nil {
		return nil, "", err
	}
	return handle, c.Param("table_name"), nil
}

// ListRecords returns one page of rows. page/per_page and limit/offset are
// both accepted.
func (h *RecordHandler) ListRecords(c *gin.Context) {
	handle, table, err := h.target(c, domain.Read)
	if err != nil {
		_ = c.Error(err)
		return
	}
	opts, err := core.ParseListQueryOptions(c.Request.URL.Query())
	if err != nil {
		_ = c.Error(err)
		return
	}
	page, err := h.Databases.Gateway.RowsPage(c.Request.Context(), handle.FileName, table, opts)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// CreateRecord inserts a row. Keys that are not columns are ignored.
func (h *RecordHandler) CreateRecord(c *gin.Context) {
	handle, table, err := h.target(c, domain.Write)
	if err != nil {
		_ = c.Error(err)
		return
	}
	var values map[string]any
	if err := bindJSON(c, &values); err != nil {
		_ = c.Error(err)
		return
	}

	ctx := c.Request.Context()
	rowID, err := h.Databases.Gateway.InsertRow(ctx, handle.FileName, table, values)
	if err != nil {
		_ = c.Error(err)
		return
	}
	row, err := h.Databases.Gateway.RowByID(ctx, handle.FileName, table, rowID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Record created successfully", "rowid": rowID, "record": row})
}

// GetRecord returns one row by rowid.
func (h *RecordHandler) GetRecord(c *gin.Context) {
	handle, table, err := h.target(c, domain.Read)
	if err != nil {
		_ = c.Error(err)
		return
	}
	rowID, err := int64Param(c, "rowid")
	if err != nil {
		_ = c.Error(err)
		return
	}
	row, err := h.Databases.Gateway.RowByID(c.Request.Context(), handle.FileName, table, rowID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": row})
}

// UpdateRecord sets the supplied columns of one row.
func (h *RecordHandler) UpdateRecord(c *gin.Context) {
	handle, table, err := h.target(c, domain.Write)
	if err != nil {
		_ = c.Error(err)
		return
	}
	rowID, err := int64Param(c, "rowid")
	if err != nil {
		_ = c.Error(err)
		return
	}
	var values map[string]any
	if err := bindJSON(c, &values); err != nil {
		_ = c.Error(err)
		return
	}

	ctx := c.Request.Context()
	if err := h.Databases.Gateway.UpdateRow(ctx, handle.FileName, table, rowID, values); err != nil {
		_ = c.Error(err)
		return
	}
	row, err := h.Databases.Gateway.RowByID(ctx, handle.FileName, table, rowID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Record updated successfully", "record": row})
}

// DeleteRecord deletes one row.
func (h *RecordHandler) DeleteRecord(c *gin.Context) {
	handle, table, err := h.target(c, domain.Write)
	if err != nil {
		_ = c.Error(err)
		return
	}
	rowID, err := int64Param(c, "rowid")
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.Databases.Gateway.DeleteRow(c.Request.Context(), handle.FileName, table, rowID); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}
