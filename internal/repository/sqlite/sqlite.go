// Package sqlite implements the repository interfaces on top of SQLite.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C compiler, and
// cross-compilation keeps working. The driver registers itself with
// database/sql under the name "sqlite".
//
// SCHEMA:
// Tables are created by numbered SQL files in migrations/, embedded into the
// binary and applied with golang-migrate. golang-migrate records the applied
// version in a schema_migrations table, so Migrate is safe to call on every
// start and `cupcakes migrate down` can walk the schema back.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "modernc.org/sqlite"
)

// BusyTimeout is how long a statement waits for another process's write
// lock before giving up with SQLITE_BUSY.
const BusyTimeout = 5 * time.Second

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DB wraps the sql.DB pool. Users and Cupcakes hand out the per-table
// repositories, which share this one pool.
type DB struct {
	conn *sql.DB
}

// New opens dbPath and brings the schema up to date.
//
// dbPath examples:
//   - "data/cupcakes.db" → file-based database; the directory is created
//   - ":memory:"         → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Open opens dbPath without touching the schema.
func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: creating %s: %w", dir, err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// ONE CONNECTION:
	// SQLite allows a single writer at a time, and every new connection to
	// ":memory:" is a brand new empty database. With one pooled connection
	// concurrent requests queue inside database/sql instead of failing with
	// SQLITE_BUSY, and the PRAGMAs below stay in effect.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// Another process on the same file (e.g. "cupcakes migrate") can hold
	// the write lock; wait for it instead of failing with SQLITE_BUSY.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", BusyTimeout.Milliseconds())); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Off by default in SQLite. cupcakes.user_id depends on it.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Users returns the user repository.
func (db *DB) Users() *UserDB {
	return &UserDB{conn: db.conn}
}

// Cupcakes returns the cupcake repository.
func (db *DB) Cupcakes() *CupcakeDB {
	return &CupcakeDB{conn: db.conn}
}

// Migrate applies every pending up migration.
func (db *DB) Migrate() error {
	m, err := db.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: migrate up: %w", err)
	}
	return nil
}

// Rollback reverts the last `steps` migrations.
func (db *DB) Rollback(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("sqlite: rollback steps must be positive, got %d", steps)
	}
	m, err := db.migrator()
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: migrate down: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version. A database that has
// never been migrated reports version 0.
func (db *DB) SchemaVersion() (version uint, dirty bool, err error) {
	m, err := db.migrator()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: reading schema version: %w", err)
	}
	return version, dirty, nil
}

// migrator builds a golang-migrate instance over the embedded files and the
// already open pool.
//
// The instance is never Closed: closing it closes the database driver, and
// the driver's Close closes db.conn, which the rest of the app still uses.
func (db *DB) migrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("sqlite: preparing migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating migrator: %w", err)
	}
	return m, nil
}
