package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/Annany2002/sqlitecult/internal/core"
)

// Metadata errors
var (
	ErrUserNotFound       = fmt.Errorf("user %w", core.ErrNotFound)
	ErrEmailExists        = fmt.Errorf("%w: email already exists", core.ErrConflict)
	ErrUsernameExists     = fmt.Errorf("%w: username already exists", core.ErrConflict)
	ErrDatabaseExists     = fmt.Errorf("%w: database name already exists", core.ErrConflict)
	ErrDatabaseNotFound   = fmt.Errorf("database %w", core.ErrNotFound)
	ErrPermissionNotFound = fmt.Errorf("permission %w", core.ErrNotFound)
	ErrAPIKeyNotFound     = fmt.Errorf("api credential %w", core.ErrNotFound)
	ErrDashboardNotFound  = fmt.Errorf("dashboard %w", core.ErrNotFound)
	ErrDashboardExists    = fmt.Errorf("%w: a dashboard with this name already exists", core.ErrConflict)
	ErrChartNotFound      = fmt.Errorf("chart %w", core.ErrNotFound)
)

// Tenant database errors
var (
	ErrDatabaseFileMissing = fmt.Errorf("database file %w", core.ErrNotFound)
	ErrRecordNotFound      = fmt.Errorf("record %w", core.ErrNotFound)
	ErrTableNotFound       = fmt.Errorf("table %w", core.ErrNotFound)
	ErrColumnNotFound      = fmt.Errorf("column %w", core.ErrNotFound)
	ErrIndexNotFound       = fmt.Errorf("index %w", core.ErrNotFound)
	ErrTableExists         = fmt.Errorf("%w: table already exists", core.ErrConflict)
	ErrIndexExists         = fmt.Errorf("%w: index already exists", core.ErrConflict)
	ErrNoValidColumns      = fmt.Errorf("%w: no valid columns provided", core.ErrInvalidInput)
	ErrEmptyQuery          = fmt.Errorf("%w: query is empty", core.ErrInvalidInput)
	ErrTableNotRebuildable = fmt.Errorf("%w: column type cannot be changed without losing table constraints", core.ErrConflict)
)

// isUniqueViolation reports a UNIQUE constraint failure mentioning column.
func isUniqueViolation(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint &&
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return column == "" || strings.Contains(sqliteErr.Error(), column)
	}
	return false
}

// mapEngineError classifies tenant database errors whose cause is a missing
// object; everything else is passed through as an EngineError.
func mapEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return fmt.Errorf("%w: %s", ErrTableNotFound, msg)
	case strings.Contains(msg, "no such index"):
		return fmt.Errorf("%w: %s", ErrIndexNotFound, msg)
	case strings.Contains(msg, "has no column named"), strings.Contains(msg, "no such column"):
		return fmt.Errorf("%w: %s", ErrColumnNotFound, msg)
	}
	return core.NewEngineError(op, err)
}
