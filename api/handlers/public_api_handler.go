package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/sqlitecult/api/middleware"
	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/security"
	"github.com/Annany2002/sqlitecult/internal/storage"
)

// PublicAPIHandler serves token-authenticated row access. The database and
// capabilities come from APITokenMiddleware and RequireCapability.
type PublicAPIHandler struct {
	Gateway *storage.Gateway
}

// NewPublicAPIHandler creates a new PublicAPIHandler.
func NewPublicAPIHandler(gateway *storage.Gateway) *PublicAPIHandler {
	return &PublicAPIHandler{Gateway: gateway}
}

// ListTables returns the table names of the database.
func (h *PublicAPIHandler) ListTables(c *gin.Context) {
	db := middleware.APIDatabase(c)
	names, err := h.Gateway.TableNames(c.Request.Context(), db.FileName)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "database": db.DisplayName, "tables": names})
}

// ListRows returns rows by limit and offset. The limit defaults to 50 and
// is capped at 500.
func (h *PublicAPIHandler) ListRows(c *gin.Context) {
	opts, err := core.ParseListQueryOptions(c.Request.URL.Query())
	if err != nil {
		_ = c.Error(err)
		return
	}
	page, err := h.Gateway.RowsPage(c.Request.Context(), middleware.APIDatabase(c).FileName, c.Param("table_name"), opts)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    page.Rows,
		"count":   page.Total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

// CreateRow inserts a row.
func (h *PublicAPIHandler) CreateRow(c *gin.Context) {
	var values map[string]any
	if err := bindJSON(c, &values); err != nil {
		_ = c.Error(err)
		return
	}
	db, table := middleware.APIDatabase(c), c.Param("table_name")
	security.AuditRowPayload(db.DisplayName, table, c.ClientIP(), values)

	ctx := c.Request.Context()
	rowID, err := h.Gateway.InsertRow(ctx, db.FileName, table, values)
	if err != nil {
		_ = c.Error(err)
		return
	}
	row, err := h.Gateway.RowByID(ctx, db.FileName, table, rowID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": rowID, "data": row})
}

func (h *PublicAPIHandler) GetRow(c *gin.Context) {
	rowID, err := int64Param(c, "rowid")
	if err != nil {
		_ = c.Error(err)
		return
	}
	row, err := h.Gateway.RowByID(c.Request.Context(), middleware.APIDatabase(c).FileName, c.Param("table_name"), rowID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": row})
}

// UpdateRow sets the supplied columns of one row.
func (h *PublicAPIHandler) UpdateRow(c *gin.Context) {
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
	db, table := middleware.APIDatabase(c), c.Param("table_name")
	security.AuditRowPayload(db.DisplayName, table, c.ClientIP(), values)

	ctx := c.Request.Context()
	if err := h.Gateway.UpdateRow(ctx, db.FileName, table, rowID, values); err != nil {
		_ = c.Error(err)
		return
	}
	row, err := h.Gateway.RowByID(ctx, db.FileName, table, rowID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": row})
}

func (h *PublicAPIHandler) DeleteRow(c *gin.Context) {
	rowID, err := int64Param(c, "rowid")
	if err != nil {
		_ = c.Error(err)
		return
	}
	if err := h.Gateway.DeleteRow(c.Request.Context(), middleware.APIDatabase(c).FileName, c.Param("table_name"), rowID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Row deleted"})
}
