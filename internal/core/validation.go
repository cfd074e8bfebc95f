// internal/core/validation.go
package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// MaxIdentifierLength bounds database, table, column and index names.
const MaxIdentifierLength = 64

// Identifiers must start with a letter or underscore; they are interpolated
// into DDL after this check, so nothing else is accepted.
var identifierRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidIdentifier is returned for names that fail the identifier grammar.
var ErrInvalidIdentifier = fmt.Errorf("%w: invalid identifier", ErrInvalidInput)

// AllowedColumnTypes lists the declared types accepted for user columns.
var AllowedColumnTypes = map[string]string{
	"INTEGER":   "INTEGER",
	"TEXT":      "TEXT",
	"REAL":      "REAL",
	"BLOB":      "BLOB",
	"NUMERIC":   "NUMERIC",
	"BOOLEAN":   "BOOLEAN",
	"DATE":      "DATE",
	"DATETIME":  "DATETIME",
	"TIMESTAMP": "TIMESTAMP",
}

// AllowedConstraints lists the column constraints accepted in definitions.
var AllowedConstraints = map[string]string{
	"":                          "",
	"NOT NULL":                  "NOT NULL",
	"UNIQUE":                    "UNIQUE",
	"PRIMARY KEY":               "PRIMARY KEY",
	"PRIMARY KEY AUTOINCREMENT": "PRIMARY KEY AUTOINCREMENT",
}

var defaultKeywords = map[string]bool{
	"NULL":              true,
	"TRUE":              true,
	"FALSE":             true,
	"CURRENT_TIMESTAMP": true,
	"CURRENT_DATE":      true,
	"CURRENT_TIME":      true,
}

// IsValidIdentifier checks if a string is a valid identifier (db name, table, column, index).
func IsValidIdentifier(name string) bool {
	return len(name) > 0 && len(name) <= MaxIdentifierLength && identifierRegex.MatchString(name)
}

// ValidateIdentifier returns ErrInvalidIdentifier naming the offending value.
func ValidateIdentifier(kind, name string) error {
	if !IsValidIdentifier(name) {
		return fmt.Errorf("%w: %s name %q must match [A-Za-z_][A-Za-z0-9_]* and be at most %d characters",
			ErrInvalidIdentifier, kind, name, MaxIdentifierLength)
	}
	return nil
}

// QuoteIdentifier validates name and wraps it in double quotes.
func QuoteIdentifier(kind, name string) (string, error) {
	if err := ValidateIdentifier(kind, name); err != nil {
		return "", err
	}
	return `"` + name + `"`, nil
}

// NormalizeAndValidateType checks if a string is an allowed column type, returning the normalized uppercase version.
func NormalizeAndValidateType(colType string) (string, bool) {
	normalizedType, ok := AllowedColumnTypes[strings.ToUpper(strings.TrimSpace(colType))]
	return normalizedType, ok
}

// NormalizeConstraint maps a user supplied constraint onto the allow-list.
func NormalizeConstraint(constraint string) (string, bool) {
	normalized := strings.Join(strings.Fields(strings.ToUpper(constraint)), " ")
	c, ok := AllowedConstraints[normalized]
	return c, ok
}

// DefaultLiteral renders a column default as a SQL literal. Numbers and a few
// keywords pass through, anything else becomes a quoted string.
func DefaultLiteral(value string) string {
	trimmed := strings.TrimSpace(value)
	if defaultKeywords[strings.ToUpper(trimmed)] {
		return strings.ToUpper(trimmed)
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err == nil && trimmed != "" && !strings.ContainsAny(trimmed, "xXnN") {
		return trimmed
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// Truncate shortens s to at most max runes, marking the cut with "...".
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
