// api/handlers/database_handler.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/sqlitecult/api/models"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/service"
)

// DatabaseHandler serves database lifecycle and API credential endpoints.
type DatabaseHandler struct {
	Databases *service.DatabaseService
}

// NewDatabaseHandler creates a new DatabaseHandler.
func NewDatabaseHandler(databases *service.DatabaseService) *DatabaseHandler {
	return &DatabaseHandler{Databases: databases}
}

// ListDatabases returns every database the caller can reach.
func (h *DatabaseHandler) ListDatabases(c *gin.Context) {
	list, err := h.Databases.List(c.Request.Context(), user(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"databases": list})
}

// CreateDatabase registers a database and creates its file.
func (h *DatabaseHandler) CreateDatabase(c *gin.Context) {
	var req models.CreateDatabaseRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}

	db, err := h.Databases.Create(c.Request.Context(), user(c), req.Name)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "Database created successfully",
		"database": db,
	})
}

// GetDatabase returns the tables of a database with their columns and row
// counts.
func (h *DatabaseHandler) GetDatabase(c *gin.Context) {
	detail, err := h.Databases.Detail(c.Request.Context(), user(c), c.Param("db_name"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// DeleteDatabase removes the file and the record of a database.
func (h *DatabaseHandler) DeleteDatabase(c *gin.Context) {
	dbName := c.Param("db_name")
	if err := h.Databases.Delete(c.Request.Context(), user(c), dbName); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Database '" + dbName + "' deleted"})
}

type schemaColumn struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Nullable   bool    `json:"nullable"`
	PrimaryKey bool    `json:"primary_key"`
	Default    *string `json:"default_value"`
}

// GetSchema returns every table of a database mapped to its columns.
func (h *DatabaseHandler) GetSchema(c *gin.Context) {
	ctx := c.Request.Context()
	handle, err := h.Databases.Open(ctx, user(c), c.Param("db_name"), domain.Read)
	if err != nil {
		_ = c.Error(err)
		return
	}
	tables, err := h.Databases.Gateway.ListTables(ctx, handle.FileName)
	if err != nil {
		_ = c.Error(err)
		return
	}

	schema := make(map[string][]schemaColumn, len(tables))
	for _, t := range tables {
		cols := make([]schemaColumn, 0, len(t.Columns))
		for _, col := range t.Columns {
			cols = append(cols, schemaColumn{
				Name:       col.Name,
				Type:       col.Type,
				Nullable:   col.Nullable(),
				PrimaryKey: col.PK > 0,
				Default:    col.DefaultValue,
			})
		}
		schema[t.Name] = cols
	}
	c.JSON(http.StatusOK, gin.H{"database": handle.DisplayName, "schema": schema})
}

// GetAPISettings returns the API credential of a database.
func (h *DatabaseHandler) GetAPISettings(c *gin.Context) {
	cred, err := h.Databases.APISettings(c.Request.Context(), user(c), c.Param("db_name"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"api": cred})
}

// UpdateAPISettings enables or disables token access and sets its
// capabilities.
func (h *DatabaseHandler) UpdateAPISettings(c *gin.Context) {
	var req models.APISettingsRequest
	if err := bindJSON(c, &req); err != nil {
		_ = c.Error(err)
		return
	}
	var perms []domain.Capability
	if req.Permissions != nil {
		var err error
		if perms, err = domain.ParseCapabilities(req.Permissions); err != nil {
			_ = c.Error(invalidInput(err))
			return
		}
	}

	cred, err := h.Databases.UpdateAPISettings(c.Request.Context(), user(c), c.Param("db_name"), *req.Enabled, perms)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "API settings updated", "api": cred})
}

// RegenerateAPIToken rotates the signing key and issues a new token.
func (h *DatabaseHandler) RegenerateAPIToken(c *gin.Context) {
	cred, err := h.Databases.RegenerateToken(c.Request.Context(), user(c), c.Param("db_name"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "API token regenerated", "api": cred})
}
