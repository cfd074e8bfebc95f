package domain

// ColumnInfo mirrors one row of PRAGMA table_info.
type ColumnInfo struct {
	ColumnID     int     `json:"cid"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	NotNull      bool    `json:"notnull"`
	DefaultValue *string `json:"default_value"`
	PK           int     `json:"pk"`
}

// Nullable is the inverse of NotNull, for schema listings.
func (c ColumnInfo) Nullable() bool {
	return !c.NotNull
}

// IndexInfo describes an index on a table.
type IndexInfo struct {
	Name    string   `json:"name"`
	Unique  bool     `json:"unique"`
	Origin  string   `json:"origin"`
	Partial bool     `json:"partial"`
	Columns []string `json:"columns"`
}

// TableSummary is a table with its columns and row count.
type TableSummary struct {
	Name     string       `json:"name"`
	Columns  []ColumnInfo `json:"columns"`
	RowCount int64        `json:"row_count"`
}

// ColumnDef is a user supplied column definition.
type ColumnDef struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Constraint   string  `json:"constraint,omitempty"`
	DefaultValue *string `json:"default_value,omitempty"`
}

// RowPage is one page of rows. Every row carries its implicit rowid.
type RowPage struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"data"`
	Total   int64            `json:"count"`
	Limit   int              `json:"limit"`
	Offset  int              `json:"offset"`
}

// QueryResult is the outcome of an ad-hoc statement. Tabular results carry
// columns and rows; others carry the affected row count.
type QueryResult struct {
	Tabular      bool     `json:"tabular"`
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	RowsAffected int64    `json:"rows_affected"`
}

// ImportReport is the header reconciliation of a CSV payload against a table.
type ImportReport struct {
	FileColumns  []string `json:"csv_columns"`
	TableColumns []string `json:"table_columns"`
	Matching     []string `json:"matching_columns"`
	Missing      []string `json:"missing_columns"`
	Unfilled     []string `json:"unfilled_columns"`
}
