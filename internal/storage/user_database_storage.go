// internal/storage/user_database_storage.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Annany2002/sqlitecult/internal/core"
	"github.com/Annany2002/sqlitecult/internal/domain"
)

// DatabaseFileExt is the extension of every tenant database file.
const DatabaseFileExt = ".db"

// Gateway executes structured requests against tenant SQLite files kept in
// Dir. Every call opens its own single connection and closes it before
// returning; nothing is cached between calls.
type Gateway struct {
	Dir         string
	BusyTimeout time.Duration
}

// NewGateway ensures dir exists and returns a gateway over it.
func NewGateway(dir string, busyTimeout time.Duration) (*Gateway, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		customLog.Warnf("Storage: Error creating databases directory '%s': %v", dir, err)
		return nil, fmt.Errorf("failed to create databases directory: %w", err)
	}
	if busyTimeout <= 0 {
		busyTimeout = 30 * time.Second
	}
	return &Gateway{Dir: dir, BusyTimeout: busyTimeout}, nil
}

// NewFileName returns an opaque file name for a new tenant database.
func NewFileName() string {
	return uuid.New().String() + DatabaseFileExt
}

func validFileName(name string) error {
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, DatabaseFileExt) || strings.HasPrefix(name, ".") {
		return core.InvalidInputf("invalid database file name %q", name)
	}
	return nil
}

// Path resolves a file name inside the gateway directory.
func (g *Gateway) Path(fileName string) string {
	return filepath.Join(g.Dir, fileName)
}

func (g *Gateway) dsn(fileName, mode string) string {
	return fmt.Sprintf("file:%s?mode=%s&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate",
		g.Path(fileName), mode, g.BusyTimeout.Milliseconds())
}

// Exists reports whether the physical file is present.
func (g *Gateway) Exists(fileName string) bool {
	if validFileName(fileName) != nil {
		return false
	}
	info, err := os.Stat(g.Path(fileName))
	return err == nil && info.Mode().IsRegular()
}

// Size returns the file size in bytes, or 0 when it cannot be read.
func (g *Gateway) Size(fileName string) int64 {
	info, err := os.Stat(g.Path(fileName))
	if err != nil {
		return 0
	}
	return info.Size()
}

// ListFiles returns the database files present in the directory.
func (g *Gateway) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(g.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases directory: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), DatabaseFileExt) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// Open returns a single-connection handle to an existing tenant file. The
// caller must Close it.
func (g *Gateway) Open(ctx context.Context, fileName string) (*sql.DB, error) {
	return g.openExisting(ctx, tenantDriver, fileName, "")
}

// openQueryOnly is Open for sessions that must not change the file; the
// engine rejects any write.
func (g *Gateway) openQueryOnly(ctx context.Context, fileName string) (*sql.DB, error) {
	return g.openExisting(ctx, tenantReadOnlyDriver, fileName, "&_query_only=1")
}

func (g *Gateway) openExisting(ctx context.Context, driver, fileName, params string) (*sql.DB, error) {
	if err := validFileName(fileName); err != nil {
		return nil, err
	}
	if !g.Exists(fileName) {
		return nil, ErrDatabaseFileMissing
	}
	return g.connect(ctx, driver, fileName, g.dsn(fileName, "rw")+params)
}

func (g *Gateway) connect(ctx context.Context, driver, fileName, dsn string) (*sql.DB, error) {
	userDb, err := sql.Open(driver, dsn)
	if err != nil {
		customLog.Warnf("Storage: Failed to open user DB file '%s': %v", fileName, err)
		return nil, fmt.Errorf("failed to access user database storage: %w", err)
	}
	userDb.SetMaxOpenConns(1)

	if err = userDb.PingContext(ctx); err != nil {
		userDb.Close()
		customLog.Warnf("Storage: Failed to ping user DB '%s': %v", fileName, err)
		return nil, fmt.Errorf("failed to connect to user database storage: %w", err)
	}
	return userDb, nil
}

// withDB opens fileName, runs fn and always closes the connection.
func (g *Gateway) withDB(ctx context.Context, fileName string, fn func(db *sql.DB) error) error {
	userDb, err := g.Open(ctx, fileName)
	if err != nil {
		return err
	}
	defer userDb.Close()
	return fn(userDb)
}

// withTx runs fn in one transaction on fileName; any error rolls it back.
func (g *Gateway) withTx(ctx context.Context, fileName string, fn func(tx *sql.Tx) error) error {
	return g.withDB(ctx, fileName, func(db *sql.DB) error {
		return WithTx(ctx, db, fn)
	})
}

// Create makes a new empty tenant file. It fails if the file exists.
func (g *Gateway) Create(ctx context.Context, fileName string) error {
	if err := validFileName(fileName); err != nil {
		return err
	}
	if _, err := os.Stat(g.Path(fileName)); err == nil {
		return fmt.Errorf("%w: database file already exists", core.ErrConflict)
	}
	userDb, err := g.connect(ctx, tenantDriver, fileName, g.dsn(fileName, "rwc"))
	if err != nil {
		return err
	}
	defer userDb.Close()
	// Force the header to disk so the file exists even with no tables.
	if _, err := userDb.ExecContext(ctx, `PRAGMA user_version = 1`); err != nil {
		return core.NewEngineError("create", err)
	}
	return nil
}

// Remove deletes a tenant file together with its WAL side files.
func (g *Gateway) Remove(fileName string) error {
	if err := validFileName(fileName); err != nil {
		return err
	}
	path := g.Path(fileName)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		customLog.Warnf("Storage: Failed to remove database file '%s': %v", path, err)
		return fmt.Errorf("failed to delete database file: %w", err)
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			customLog.Warnf("Storage: Failed to remove '%s': %v", path+suffix, err)
		}
	}
	return nil
}

// --- Introspection ---

func tableExists(ctx context.Context, db DBTX, table string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, core.NewEngineError("introspect", err)
	}
	return n > 0, nil
}

func requireTable(ctx context.Context, db DBTX, table string) error {
	if err := core.ValidateIdentifier("table", table); err != nil {
		return err
	}
	ok, err := tableExists(ctx, db, table)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return nil
}

func listTableNames(ctx context.Context, db DBTX) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		customLog.Warnf("Storage: Error listing tables: %v", err)
		return nil, core.NewEngineError("list tables", err)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed processing table list: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// getColumnInfo reads PRAGMA table_info. A table without columns does not exist.
func getColumnInfo(ctx context.Context, db DBTX, table string) ([]domain.ColumnInfo, error) {
	if err := core.ValidateIdentifier("table", table); err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info("%s")`, table))
	if err != nil {
		customLog.Warnf("Storage: Error getting column info for table %s: %v", table, err)
		return nil, core.NewEngineError("table info", err)
	}
	defer rows.Close()

	columns := make([]domain.ColumnInfo, 0)
	for rows.Next() {
		var col domain.ColumnInfo
		var dflt sql.NullString
		if err := rows.Scan(&col.ColumnID, &col.Name, &col.Type, &col.NotNull, &dflt, &col.PK); err != nil {
			customLog.Warnf("Storage: Error scanning column info: %v", err)
			return nil, fmt.Errorf("failed processing column info: %w", err)
		}
		if dflt.Valid {
			v := dflt.String
			col.DefaultValue = &v
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading column info: %w", err)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return columns, nil
}

func countRows(ctx context.Context, db DBTX, table string) (int64, error) {
	var n int64
	if err := db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, table)).Scan(&n); err != nil {
		return 0, mapEngineError("count", err)
	}
	return n, nil
}

// ListTables returns every user table with its columns and row count.
func (g *Gateway) ListTables(ctx context.Context, fileName string) ([]domain.TableSummary, error) {
	var tables []domain.TableSummary
	err := g.withDB(ctx, fileName, func(db *sql.DB) error {
		names, err := listTableNames(ctx, db)
		if err != nil {
			return err
		}
		tables = make([]domain.TableSummary, 0, len(names))
		for _, name := range names {
			summary := domain.TableSummary{Name: name}
			// Tables created outside the API may carry names our grammar rejects.
			if core.IsValidIdentifier(name) {
				if summary.Columns, err = getColumnInfo(ctx, db, name); err != nil {
					return err
				}
				if summary.RowCount, err = countRows(ctx, db, name); err != nil {
					return err
				}
			}
			tables = append(tables, summary)
		}
		return nil
	})
	return tables, err
}

// TableNames returns the user table names only.
func (g *Gateway) TableNames(ctx context.Context, fileName string) ([]string, error) {
	var names []string
	err := g.withDB(ctx, fileName, func(db *sql.DB) error {
		var err error
		names, err = listTableNames(ctx, db)
		return err
	})
	return names, err
}

// TableInfo returns the column tuples of a table.
func (g *Gateway) TableInfo(ctx context.Context, fileName, table string) ([]domain.ColumnInfo, error) {
	if err := core.ValidateIdentifier("table", table); err != nil {
		return nil, err
	}
	var cols []domain.ColumnInfo
	err := g.withDB(ctx, fileName, func(db *sql.DB) error {
		var err error
		cols, err = getColumnInfo(ctx, db, table)
		return err
	})
	return cols, err
}

// TableSchema returns the CREATE TABLE statement stored by the engine.
func (g *Gateway) TableSchema(ctx context.Context, fileName, table string) (string, error) {
	if err := core.ValidateIdentifier("table", table); err != nil {
		return "", err
	}
	var schema string
	err := g.withDB(ctx, fileName, func(db *sql.DB) error {
		err := db.QueryRowContext(ctx, `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&schema)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrTableNotFound, table)
		}
		return core.NewEngineError("schema", err)
	})
	return schema, err
}

func listIndexes(ctx context.Context, db DBTX, table string) ([]domain.IndexInfo, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA index_list("%s")`, table))
	if err != nil {
		return nil, core.NewEngineError("index list", err)
	}
	indexes := make([]domain.IndexInfo, 0)
	for rows.Next() {
		var seq int
		var idx domain.IndexInfo
		if err := rows.Scan(&seq, &idx.Name, &idx.Unique, &idx.Origin, &idx.Partial); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed processing index list: %w", err)
		}
		indexes = append(indexes, idx)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range indexes {
		// Auto-generated index names are engine controlled; quote them as strings.
		colRows, err := db.QueryContext(ctx, `SELECT name FROM pragma_index_info(?)`, indexes[i].Name)
		if err != nil {
			return nil, core.NewEngineError("index info", err)
		}
		cols := make([]string, 0)
		for colRows.Next() {
			var name sql.NullString
			if err := colRows.Scan(&name); err != nil {
				colRows.Close()
				return nil, err
			}
			cols = append(cols, name.String)
		}
		colRows.Close()
		indexes[i].Columns = cols
	}
	return indexes, nil
}

// Indexes returns the indexes defined on a table.
func (g *Gateway) Indexes(ctx context.Context, fileName, table string) ([]domain.IndexInfo, error) {
	var indexes []domain.IndexInfo
	err := g.withDB(ctx, fileName, func(db *sql.DB) error {
		if err := requireTable(ctx, db, table); err != nil {
			return err
		}
		var err error
		indexes, err = listIndexes(ctx, db, table)
		return err
	})
	return indexes, err
}

// RowCount returns the number of rows in a table.
func (g *Gateway) RowCount(ctx context.Context, fileName, table string) (int64, error) {
	var n int64
	err := g.withDB(ctx, fileName, func(db *sql.DB) error {
		if err := requireTable(ctx, db, table); err != nil {
			return err
		}
		var err error
		n, err = countRows(ctx, db, table)
		return err
	})
	return n, err
}
