// internal/storage/database.go
package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // Driver registration

	"github.com/Annany2002/sqlitecult/config"
	"github.com/Annany2002/sqlitecult/internal/logger"
)

var customLog = logger.NewLogger()

//go:embed migrations/*.sql
var migrationsFS embed.FS

// metadataDSN enables foreign keys (cascades clean up dependents), WAL and a
// busy timeout, and starts write transactions immediately so concurrent
// writers queue on the busy handler instead of failing on lock upgrade.
func metadataDSN(path string, busy time.Duration) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_txlock=immediate",
		path, busy.Milliseconds())
}

// ConnectMetadataDB opens the metadata database and applies pending migrations.
func ConnectMetadataDB(cfg *config.Config) (*sql.DB, error) {
	dbPath := filepath.Join(cfg.MetadataDbDir, cfg.MetadataDbFile)
	customLog.Printf("Storage: Initializing metadata database: %s", dbPath)

	if err := os.MkdirAll(cfg.MetadataDbDir, 0750); err != nil {
		customLog.Warnf("Storage: Error creating data directory '%s': %v", cfg.MetadataDbDir, err)
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 30 * time.Second
	}
	dsn := metadataDSN(dbPath, busy)

	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		customLog.Warnf("Storage: Failed to open metadata db '%s': %v", dbPath, err)
		return nil, fmt.Errorf("failed to open metadata db: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		customLog.Warnf("Storage: Failed to ping metadata db '%s': %v", dbPath, err)
		return nil, fmt.Errorf("failed to connect to metadata db: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	customLog.Println("Storage: Metadata database connection successful.")
	return db, nil
}

// RunMigrations applies the embedded schema migrations. It uses its own
// connection because the migrate driver closes the handle it is given.
func RunMigrations(dsn string) error {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open metadata db for migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			customLog.Warnf("Storage: Failed to close migration source: %v", srcErr)
		}
		if dbErr != nil {
			customLog.Warnf("Storage: Failed to close migration database: %v", dbErr)
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		customLog.Println("Storage: No migrations to apply (metadata schema up-to-date)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, _ := m.Version()
	customLog.Printf("Storage: Applied metadata migrations, schema version %d", version)
	return nil
}
