package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
)

// shadowSuffix names the temporary table used while changing a column type.
const shadowSuffix = "__sqlitecult_shadow"

// columnDefinitionSQL renders one validated column definition.
func columnDefinitionSQL(col domain.ColumnDef) (string, error) {
	name, err := core.QuoteIdentifier("column", col.Name)
	if err != nil {
		return "", err
	}
	colType, ok := core.NormalizeAndValidateType(col.Type)
	if !ok {
		return "", core.InvalidInputf("column %q has unsupported type %q", col.Name, col.Type)
	}
	constraint, ok := core.NormalizeConstraint(col.Constraint)
	if !ok {
		return "", core.InvalidInputf("column %q has unsupported constraint %q", col.Name, col.Constraint)
	}

	parts := []string{name, colType}
	if constraint != "" {
		parts = append(parts, constraint)
	}
	if col.DefaultValue != nil {
		parts = append(parts, "DEFAULT", core.DefaultLiteral(*col.DefaultValue))
	}
	return strings.Join(parts, " "), nil
}

// CreateTable creates a table from column definitions and returns the DDL
// that was executed.
func (g *Gateway) CreateTable(ctx context.Context, fileName, table string, columns []domain.ColumnDef) (string, error) {
	quoted, err := core.QuoteIdentifier("table", table)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(strings.ToLower(table), "sqlite_") {
		return "", core.InvalidInputf("table names starting with sqlite_ are reserved")
	}
	if len(columns) == 0 {
		return "", ErrNoValidColumns
	}

	seen := make(map[string]bool, len(columns))
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		def, err := columnDefinitionSQL(col)
		if err != nil {
			return "", err
		}
		lower := strings.ToLower(col.Name)
		if seen[lower] {
			return "", core.InvalidInputf("duplicate column name %q", col.Name)
		}
		seen[lower] = true
		defs = append(defs, def)
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", quoted, strings.Join(defs, ", "))

	err = g.withDB(ctx, fileName, func(db *sql.DB) error {
		exists, err := tableExists(ctx, db, table)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrTableExists, table)
		}
		if _, err := db.ExecContext(ctx, createSQL); err != nil {
			customLog.Warnf("Storage: Failed to execute CREATE TABLE: %v\nSQL: %s", err, createSQL)
			return core.NewEngineError("create table", err)
		}
		return nil
	})
	return createSQL, err
}

// DropTable drops a table. Missing tables are reported as not found.
func (g *Gateway) DropTable(ctx context.Context, fileName, table string) (string, error) {
	quoted, err := core.QuoteIdentifier("table", table)
	if err != nil {
		return "", err
	}
	dropSQL := "DROP TABLE " + quoted
	err = g.withDB(ctx, fileName, func(db *sql.DB) error {
		if err := requireTable(ctx, db, table); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, dropSQL); err != nil {
			customLog.Warnf("Storage: Failed DROP TABLE for Table '%s': %v", table, err)
			return mapEngineError("drop table", err)
		}
		return nil
	})
	return dropSQL, err
}

func addColumnSQL(table string, col domain.ColumnDef) (string, error) {
	quoted, err := core.QuoteIdentifier("table", table)
	if err != nil {
		return "", err
	}
	def, err := columnDefinitionSQL(col)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quoted, def), nil
}

func dropColumnSQL(table, column string) (string, error) {
	quotedTable, err := core.QuoteIdentifier("table", table)
	if err != nil {
		return "", err
	}
	quotedColumn, err := core.QuoteIdentifier("column", column)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quotedTable, quotedColumn), nil
}

// AddColumns adds one or more columns in a single transaction.
func (g *Gateway) AddColumns(ctx context.Context, fileName, table string, columns []domain.ColumnDef) ([]string, error) {
	if len(columns) == 0 {
		return nil, ErrNoValidColumns
	}
	statements := make([]string, 0, len(columns))
	for _, col := range columns {
		stmt, err := addColumnSQL(table, col)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	err := g.withTx(ctx, fileName, func(tx *sql.Tx) error {
		if err := requireTable(ctx, tx, table); err != nil {
			return err
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				customLog.Warnf("Storage: Failed ADD COLUMN: %v\nSQL: %s", err, stmt)
				return core.NewEngineError("add column", err)
			}
		}
		return nil
	})
	return statements, err
}

// AddColumn adds a single column.
func (g *Gateway) AddColumn(ctx context.Context, fileName, table string, column domain.ColumnDef) (string, error) {
	stmts, err := g.AddColumns(ctx, fileName, table, []domain.ColumnDef{column})
	if err != nil {
		return "", err
	}
	return stmts[0], nil
}

// DropColumns removes one or more columns in a single transaction.
func (g *Gateway) DropColumns(ctx context.Context, fileName, table string, columns []string) ([]string, error) {
	if len(columns) == 0 {
		return nil, ErrNoValidColumns
	}
	statements := make([]string, 0, len(columns))
	for _, col := range columns {
		stmt, err := dropColumnSQL(table, col)
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	err := g.withTx(ctx, fileName, func(tx *sql.Tx) error {
		cols, err := getColumnInfo(ctx, tx, table)
		if err != nil {
			return err
		}
		for _, name := range columns {
			if findColumn(cols, name) == nil {
				return fmt.Errorf("%w: %s", ErrColumnNotFound, name)
			}
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				customLog.Warnf("Storage: Failed DROP COLUMN: %v\nSQL: %s", err, stmt)
				return core.NewEngineError("drop column", err)
			}
		}
		return nil
	})
	return statements, err
}

// DropColumn removes a single column.
func (g *Gateway) DropColumn(ctx context.Context, fileName, table, column string) (string, error) {
	stmts, err := g.DropColumns(ctx, fileName, table, []string{column})
	if err != nil {
		return "", err
	}
	return stmts[0], nil
}

// CreateIndex creates a (optionally unique) index over columns of table.
func (g *Gateway) CreateIndex(ctx context.Context, fileName, index, table string, columns []string, unique bool) (string, error) {
	quotedIndex, err := core.QuoteIdentifier("index", index)
	if err != nil {
		return "", err
	}
	quotedTable, err := core.QuoteIdentifier("table", table)
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", ErrNoValidColumns
	}
	quotedCols := make([]string, len(columns))
	for i, col := range columns {
		if quotedCols[i], err = core.QuoteIdentifier("column", col); err != nil {
			return "", err
		}
	}
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	createSQL := fmt.Sprintf("CREATE %s %s ON %s (%s)", kind, quotedIndex, quotedTable, strings.Join(quotedCols, ", "))

	err = g.withDB(ctx, fileName, func(db *sql.DB) error {
		if err := requireTable(ctx, db, table); err != nil {
			return err
		}
		var n int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, index).Scan(&n); err != nil {
			return core.NewEngineError("create index", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrIndexExists, index)
		}
		if _, err := db.ExecContext(ctx, createSQL); err != nil {
			customLog.Warnf("Storage: Failed CREATE INDEX: %v\nSQL: %s", err, createSQL)
			return mapEngineError("create index", err)
		}
		return nil
	})
	return createSQL, err
}

// DropIndex drops an index by name. The index must belong to table.
func (g *Gateway) DropIndex(ctx context.Context, fileName, table, index string) (string, error) {
	if err := core.ValidateIdentifier("table", table); err != nil {
		return "", err
	}
	quoted, err := core.QuoteIdentifier("index", index)
	if err != nil {
		return "", err
	}
	dropSQL := "DROP INDEX " + quoted
	err = g.withDB(ctx, fileName, func(db *sql.DB) error {
		if err := requireTable(ctx, db, table); err != nil {
			return err
		}
		var owner string
		err := db.QueryRowContext(ctx, `SELECT tbl_name FROM sqlite_master WHERE type = 'index' AND name = ?`, index).Scan(&owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && !strings.EqualFold(owner, table)) {
			return fmt.Errorf("%w: %s on table %s", ErrIndexNotFound, index, table)
		}
		if err != nil {
			return core.NewEngineError("drop index", err)
		}
		if _, err := db.ExecContext(ctx, dropSQL); err != nil {
			return mapEngineError("drop index", err)
		}
		return nil
	})
	return dropSQL, err
}

// quoteRaw quotes a name read back from the engine, which may predate our
// identifier grammar.
func quoteRaw(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func findColumn(cols []domain.ColumnInfo, name string) *domain.ColumnInfo {
	for i := range cols {
		if strings.EqualFold(cols[i].Name, name) {
			return &cols[i]
		}
	}
	return nil
}

// ModifyColumnType changes the declared type of one column. The engine has
// no ALTER COLUMN, so the table is rebuilt: create a shadow table with the
// new definition, copy every row with one INSERT...SELECT, drop the original
// and rename the shadow into place. All four steps share one transaction,
// so on any failure the original table is left untouched. A non-empty
// constraint replaces the column's NOT NULL / PRIMARY KEY flags.
func (g *Gateway) ModifyColumnType(ctx context.Context, fileName, table, column, newType, constraint string) error {
	quotedTable, err := core.QuoteIdentifier("table", table)
	if err != nil {
		return err
	}
	if err := core.ValidateIdentifier("column", column); err != nil {
		return err
	}
	normalizedType, ok := core.NormalizeAndValidateType(newType)
	if !ok {
		return core.InvalidInputf("unsupported column type %q", newType)
	}
	normalizedConstraint, ok := core.NormalizeConstraint(constraint)
	if !ok {
		return core.InvalidInputf("unsupported constraint %q", constraint)
	}

	return g.withTx(ctx, fileName, func(tx *sql.Tx) error {
		cols, err := getColumnInfo(ctx, tx, table)
		if err != nil {
			return err
		}
		target := findColumn(cols, column)
		if target == nil {
			return fmt.Errorf("%w: %s", ErrColumnNotFound, column)
		}
		indexes, err := listIndexes(ctx, tx, table)
		if err != nil {
			return err
		}
		var storedSQL string
		if err := tx.QueryRowContext(ctx, `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&storedSQL); err != nil {
			return core.NewEngineError("modify column", err)
		}
		if err := checkRebuildable(table, storedSQL, indexes); err != nil {
			return err
		}
		indexSQL, err := userIndexSQL(ctx, tx, table)
		if err != nil {
			return err
		}

		shadow := table + shadowSuffix
		createSQL, copyCols := shadowTableSQL(shadow, cols, indexes, target.Name, normalizedType, normalizedConstraint)
		hasPK := strings.Contains(normalizedConstraint, "PRIMARY KEY")
		for _, c := range cols {
			if c.PK > 0 {
				hasPK = true
			}
		}
		copyList := copyCols
		if !hasPK {
			// Keep implicit rowids stable for callers addressing rows by id.
			copyList = "rowid, " + copyCols
		}

		steps := []string{
			createSQL,
			fmt.Sprintf(`INSERT INTO "%s" (%s) SELECT %s FROM %s`, shadow, copyList, copyList, quotedTable),
			"DROP TABLE " + quotedTable,
			fmt.Sprintf(`ALTER TABLE "%s" RENAME TO %s`, shadow, quotedTable),
		}
		steps = append(steps, indexSQL...)
		for _, stmt := range steps {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				customLog.Warnf("Storage: Column type change on '%s' failed: %v\nSQL: %s", table, err, stmt)
				return core.NewEngineError("modify column", err)
			}
		}
		return nil
	})
}

// rebuildBlockers are table clauses that column metadata does not describe,
// so the rebuilt table could not carry them over.
var rebuildBlockers = []string{"CHECK", "COLLATE", "REFERENCES", "GENERATED", "WITHOUT", "STRICT"}

// checkRebuildable refuses a rebuild that would drop part of the table's
// definition.
func checkRebuildable(table, storedSQL string, indexes []domain.IndexInfo) error {
	found := core.KeywordsIn(storedSQL, rebuildBlockers...)
	for _, idx := range indexes {
		if idx.Origin == "u" && len(idx.Columns) > 1 {
			found = append(found, "UNIQUE ("+strings.Join(idx.Columns, ", ")+")")
		}
	}
	if len(found) > 0 {
		return fmt.Errorf("%w: table %s uses %s", ErrTableNotRebuildable, table, strings.Join(found, ", "))
	}
	return nil
}

// shadowTableSQL builds the CREATE statement for the rebuilt table and the
// quoted column list shared by both sides of the copy.
func shadowTableSQL(shadow string, cols []domain.ColumnInfo, indexes []domain.IndexInfo, target, newType, constraint string) (string, string) {
	uniqueCols := make(map[string]bool)
	for _, idx := range indexes {
		if idx.Origin == "u" && len(idx.Columns) == 1 {
			uniqueCols[strings.ToLower(idx.Columns[0])] = true
		}
	}
	var pkCols []string
	for _, c := range cols {
		if c.PK > 0 {
			pkCols = append(pkCols, c.Name)
		}
	}

	defs := make([]string, 0, len(cols)+1)
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		quoted := quoteRaw(c.Name)
		names = append(names, quoted)
		parts := []string{quoted}
		isTarget := strings.EqualFold(c.Name, target)
		if isTarget {
			parts = append(parts, newType)
		} else if c.Type != "" {
			parts = append(parts, c.Type)
		}

		switch {
		case isTarget && constraint != "":
			parts = append(parts, constraint)
		default:
			if len(pkCols) == 1 && c.PK > 0 {
				parts = append(parts, "PRIMARY KEY")
			}
			if c.NotNull {
				parts = append(parts, "NOT NULL")
			}
			if uniqueCols[strings.ToLower(c.Name)] {
				parts = append(parts, "UNIQUE")
			}
		}
		if c.DefaultValue != nil {
			parts = append(parts, "DEFAULT", *c.DefaultValue)
		}
		defs = append(defs, strings.Join(parts, " "))
	}
	if len(pkCols) > 1 {
		quotedPK := make([]string, len(pkCols))
		for i, name := range pkCols {
			quotedPK[i] = quoteRaw(name)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quotedPK, ", ")+")")
	}
	return fmt.Sprintf(`CREATE TABLE "%s" (%s)`, shadow, strings.Join(defs, ", ")), strings.Join(names, ", ")
}

// userIndexSQL returns the CREATE INDEX statements of explicitly created
// indexes so they can be rebuilt after the table is replaced.
func userIndexSQL(ctx context.Context, db DBTX, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT sql FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND sql IS NOT NULL`, table)
	if err != nil {
		return nil, core.NewEngineError("index sql", err)
	}
	defer rows.Close()
	statements := make([]string, 0)
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	return statements, rows.Err()
}
