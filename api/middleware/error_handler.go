// api/middleware/error_handler.go
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10" // Import validator for binding errors
	"github.com/sirupsen/logrus"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/storage"
)

// Error codes returned in the "code" field of error responses.
const (
	CodeNotFound         = "not_found"
	CodePermissionDenied = "permission_denied"
	CodeInvalidInput     = "invalid_input"
	CodeConflict         = "conflict"
	CodeUnauthorized     = "unauthorized"
	CodeTokenExpired     = "token_expired"
	CodeEngineError      = "engine_error"
	CodeInternal         = "internal_error"
)

// classify maps an error onto a status code, a code and a user message.
func classify(err error) (int, string, string) {
	var validationErrs validator.ValidationErrors
	var engineErr *core.EngineError
	switch {
	case errors.As(err, &validationErrs):
		for _, fe := range validationErrs {
			customLog.WithFields(logrus.Fields{"field": fe.Field(), "tag": fe.Tag()}).Debug("Validation error")
		}
		return http.StatusBadRequest, CodeInvalidInput, "Validation failed: " + validationErrs.Error()
	case errors.Is(err, core.ErrAuthExpired):
		return http.StatusUnauthorized, CodeTokenExpired, err.Error()
	case errors.Is(err, core.ErrAuthInvalid):
		return http.StatusUnauthorized, CodeUnauthorized, err.Error()
	case errors.Is(err, core.ErrPermissionDenied):
		return http.StatusForbidden, CodePermissionDenied, err.Error()
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error()
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, CodeConflict, err.Error()
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput, err.Error()
	case errors.As(err, &engineErr):
		return http.StatusInternalServerError, CodeEngineError, engineErr.Error()
	default:
		return http.StatusInternalServerError, CodeInternal, "An unexpected internal server error occurred."
	}
}

// ErrorHandler creates a Gin middleware for centralized error handling.
// Handlers attach errors with c.Error; the last one decides the response.
// An int attached as the error's Meta overrides the status code.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		ginErr := c.Errors.Last()
		err := ginErr.Err

		status, code, message := classify(err)
		if override, ok := ginErr.Meta.(int); ok {
			status = override
		}

		fields := logrus.Fields{"status": status, "path": c.FullPath(), "method": c.Request.Method}
		if status >= http.StatusInternalServerError {
			customLog.WithFields(fields).Errorf("[ErrorHandler] %v (%T)", err, err)
		} else {
			customLog.WithFields(fields).Infof("[ErrorHandler] %v", err)
		}

		if c.Writer.Written() {
			customLog.Warnf("[ErrorHandler] Response already written before handling error.")
			return
		}
		body := gin.H{"success": false, "error": message, "code": code}
		var importErr *storage.ImportError
		if errors.As(err, &importErr) {
			body["details"] = importErr
		}
		c.AbortWithStatusJSON(status, body)
	}
}
