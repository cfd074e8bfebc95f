package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Annany2002/sqlitecult/api/models"
	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/csvimport"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/service"
)

// maxImportBytes caps the CSV payload read into memory.
const maxImportBytes = 32 << 20

// CSVHandler serves table export, import preview and import.
type CSVHandler struct {
	Imports *service.ImportService
}

// NewCSVHandler creates a new CSVHandler.
func NewCSVHandler(imports *service.ImportService) *CSVHandler {
	return &CSVHandler{Imports: imports}
}

// csvContent reads the upload from the multipart "file" field, or the raw
// request body when the request is not multipart.
func csvContent(c *gin.Context) ([]byte, error) {
	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, core.InvalidInputf("multipart field 'file' is required")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	content, err := io.ReadAll(io.LimitReader(r, maxImportBytes+1))
	if err != nil {
		return nil, invalidInput(err)
	}
	if len(content) > maxImportBytes {
		return nil, core.InvalidInputf("CSV payload exceeds %d bytes", maxImportBytes)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, csvimport.ErrNoHeader
	}
	return content, nil
}

// formValue prefers a form field and falls back to the query string.
func formValue(c *gin.Context, key string) string {
	if v, ok := c.GetPostForm(key); ok {
		return v
	}
	return c.Query(key)
}

// columnDefs decodes the JSON column definitions sent with add_columns
// imports.
func columnDefs(raw string) ([]domain.ColumnDef, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var defs []models.ColumnDefinition
	if err := json.Unmarshal([]byte(raw), &defs); err != nil {
		return nil, core.InvalidInputf("columns must be a JSON array of column definitions: %v", err)
	}
	return models.ColumnDefs(defs), nil
}

// Export streams a table as CSV.
func (h *CSVHandler) Export(c *gin.Context) {
	table := c.Param("table_name")
	var buf bytes.Buffer
	if err := h.Imports.Export(c.Request.Context(), user(c), c.Param("db_name"), table, &buf); err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.csv"`, table))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Preview reconciles the CSV headers against the table without importing.
func (h *CSVHandler) Preview(c *gin.Context) {
	content, err := csvContent(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	report, err := h.Imports.Preview(c.Request.Context(), user(c), c.Param("db_name"), c.Param("table_name"), content)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

// Import loads the CSV into the table in one transaction.
func (h *CSVHandler) Import(c *gin.Context) {
	content, err := csvContent(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	mode, err := csvimport.ParseMode(formValue(c, "mode"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	defs, err := columnDefs(formValue(c, "columns"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	result, err := h.Imports.Import(c.Request.Context(), user(c), c.Param("db_name"), c.Param("table_name"), content, mode, defs)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Imported %d row(s)", result.Rows),
		"result":  result,
	})
}
