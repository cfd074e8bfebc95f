package handlers

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/Annany2002/sqlitecult/api/middleware"
	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
	"github.com/Annany2002/sqlitecult/internal/logger"
)

var customLog = logger.NewLogger()

// bindJSON binds the request body into obj. Validation errors pass through
// for the error handler; malformed bodies become invalid input.
func bindJSON(c *gin.Context, obj any) error {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return err
	}
	return fmt.Errorf("%w: invalid request body: %v", core.ErrInvalidInput, err)
}

// invalidInput classifies a plain parse error as invalid input.
func invalidInput(err error) error {
	if errors.Is(err, core.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
}

// int64Param parses a numeric path parameter.
func int64Param(c *gin.Context, name string) (int64, error) {
	raw := c.Param(name)
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, core.InvalidInputf("invalid %s %q", name, raw)
	}
	return v, nil
}

// user is the authenticated account. AuthMiddleware guarantees it is set on
// every route that calls this.
func user(c *gin.Context) *domain.User {
	return middleware.CurrentUser(c)
}
