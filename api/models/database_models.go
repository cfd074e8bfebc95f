// api/models/database_models.go
package models

import (
	"github.com/Annany2002/sqlitecult/internal/domain"
)

// --- Database/Schema Request Structs ---

// CreateDatabaseRequest names a new database.
type CreateDatabaseRequest struct {
	Name string `json:"name" binding:"required,max=64"`
}

// ColumnDefinition represents a single column in a table schema request
type ColumnDefinition struct {
	Name         string  `json:"name" binding:"required"`
	Type         string  `json:"type" binding:"required"` // e.g., "TEXT", "INTEGER", "REAL", "BLOB"
	Constraint   string  `json:"constraint"`
	DefaultValue *string `json:"default_value"`
}

func (d ColumnDefinition) ToDomain() domain.ColumnDef {
	return domain.ColumnDef{Name: d.Name, Type: d.Type, Constraint: d.Constraint, DefaultValue: d.DefaultValue}
}

// ColumnDefs converts a list of request columns.
func ColumnDefs(defs []ColumnDefinition) []domain.ColumnDef {
	out := make([]domain.ColumnDef, len(defs))
	for i, d := range defs {
		out[i] = d.ToDomain()
	}
	return out
}

// CreateTableRequest defines the structure for the table creation request body
type CreateTableRequest struct {
	TableName string             `json:"table_name" binding:"required"`
	Columns   []ColumnDefinition `json:"columns" binding:"required,min=1,dive"`
}

// AddColumnsRequest adds one column or several at once.
type AddColumnsRequest struct {
	Column  *ColumnDefinition  `json:"column"`
	Columns []ColumnDefinition `json:"columns" binding:"omitempty,dive"`
}

// DropColumnsRequest drops several columns at once.
type DropColumnsRequest struct {
	Columns []string `json:"columns" binding:"required,min=1"`
}

// ModifyColumnRequest changes the declared type of a column.
type ModifyColumnRequest struct {
	Type       string `json:"type" binding:"required"`
	Constraint string `json:"constraint"`
}

// CreateIndexRequest defines an index on the addressed table.
type CreateIndexRequest struct {
	Name    string   `json:"name" binding:"required"`
	Columns []string `json:"columns" binding:"required,min=1"`
	Unique  bool     `json:"unique"`
}

// QueryRequest carries ad-hoc SQL text.
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// --- Permission Structs ---

// GrantRequest shares a database with a user, named by id or username.
type GrantRequest struct {
	User  string `json:"user" binding:"required"`
	Level string `json:"level" binding:"required,oneof=read write admin"`
}

// UpdateGrantRequest changes the level of an existing grant.
type UpdateGrantRequest struct {
	Level string `json:"level" binding:"required,oneof=read write admin"`
}

// TransferRequest names the new owner of a database.
type TransferRequest struct {
	NewOwner string `json:"new_owner" binding:"required"`
}

// --- API Credential Structs ---

// APISettingsRequest enables or disables token access to a database.
type APISettingsRequest struct {
	Enabled     *bool    `json:"enabled" binding:"required"`
	Permissions []string `json:"permissions"`
}
