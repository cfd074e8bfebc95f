// internal/core/errors.go
package core

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Package-specific errors wrap one of
// these so the HTTP layer can map them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("conflict")
	ErrAuthInvalid      = errors.New("invalid credentials")
	ErrAuthExpired      = errors.New("credentials expired")
)

// EngineError carries a failure reported by the SQLite engine. Its message is
// the engine's own text.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return e.Err.Error()
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError wraps err unless it is nil or already classified.
func NewEngineError(op string, err error) error {
	if err == nil {
		return nil
	}
	var engineErr *EngineError
	if errors.As(err, &engineErr) || IsClassified(err) {
		return err
	}
	return &EngineError{Op: op, Err: err}
}

// IsClassified reports whether err already belongs to the taxonomy.
func IsClassified(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrAuthInvalid) ||
		errors.Is(err, ErrAuthExpired)
}

// InvalidInputf builds an ErrInvalidInput with a formatted detail message.
func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
