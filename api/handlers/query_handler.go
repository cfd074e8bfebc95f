package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/sqlitecult/api/models"
	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/service"
)

// QueryHandler runs ad-hoc SQL and lists the query log.
type QueryHandler struct {
	Queries *service.QueryService
}

// NewQueryHandler creates a new QueryHandler.
func NewQueryHandler(queries *service.QueryService) *QueryHandler {
	return &QueryHandler{Queries: queries}
}

// Execute runs the submitted SQL. Engine failures are the caller's SQL, so
// they are reported as 400 with the engine message.
func (h *QueryHandler) Execute(c *gin.Context) {
	var req models.QueryRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	result, err := h.Queries.Execute(c.Request.Context(), user(c), c.Param("db_name"), req.Query)
	if err != nil {
		var engineErr *core.EngineError
		if errors.As(err, &engineErr) {
			_ = c.Error(err).SetMeta(http.StatusBadRequest)
			return
		}
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

// History lists the caller's latest queries, optionally for one database.
func (h *QueryHandler) History(c *gin.Context) {
	entries, err := h.Queries.History(c.Request.Context(), user(c), c.Query("db"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}
