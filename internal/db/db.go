// Package db provides the SQLite value database of meter readings.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SchemaVersion is the current schema version recorded in schema_version.
const SchemaVersion = 2

// ErrDatabaseNotFound is returned by OpenWithOptions when the database file
// does not exist and CreateIfNotExists is false.
var ErrDatabaseNotFound = errors.New("database not found")

// DB wraps a SQLite connection holding the meter readings.
type DB struct {
	*sql.DB
	path string
}

// OpenOptions controls how the database is opened.
type OpenOptions struct {
	CreateIfNotExists bool
	InitSchema        bool
	ReadOnly          bool
}

// Open opens an existing or new database without running migrations.
func Open(path string) (*DB, error) {
	return OpenWithOptions(path, OpenOptions{CreateIfNotExists: true})
}

// OpenAndMigrate opens the database, creating it and its schema if needed.
func OpenAndMigrate(path string) (*DB, error) {
	return OpenWithOptions(path, OpenOptions{CreateIfNotExists: true, InitSchema: true})
}

// OpenWithOptions opens the database at path.
func OpenWithOptions(path string, opts OpenOptions) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("stat %s: %w", path, err)
			}
			if !opts.CreateIfNotExists || opts.ReadOnly {
				return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
				return nil, fmt.Errorf("creating database dir: %w", err)
			}
		}
	}

	dsn := path
	if opts.ReadOnly {
		dsn = "file:" + path + "?mode=ro"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; a single connection keeps transactions simple.
	conn.SetMaxOpenConns(1)

	d := &DB{DB: conn, path: path}

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	if !opts.ReadOnly && path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL")
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("executing %s: %w", pragma, err)
		}
	}

	if opts.InitSchema && !opts.ReadOnly {
		if err := d.migrate(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrating schema: %w", err)
		}
	}

	return d, nil
}

// Path returns the filesystem path of the database.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) migrate() error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}
	if current.Valid && current.Int64 >= SchemaVersion {
		return nil
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS watermeter_image (
			month_dir VARCHAR(7) NOT NULL,
			day_dir VARCHAR(2) NOT NULL,
			filename VARCHAR(100) NOT NULL,
			taken_at INTEGER,
			reading REAL,
			error VARCHAR(1000) NOT NULL DEFAULT '',
			modified_at TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS filename_idx ON watermeter_image(filename)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS month_day_fn_idx ON watermeter_image(month_dir, day_dir, filename)`,
		`CREATE INDEX IF NOT EXISTS taken_at_idx ON watermeter_image(taken_at)`,
		`CREATE TABLE IF NOT EXISTS watermeter_thousands (
			iso_date VARCHAR(10) PRIMARY KEY,
			value INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS collect_runs (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			images_read INTEGER NOT NULL DEFAULT 0,
			images_failed INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
		}
	}

	if _, err := db.Exec("INSERT OR IGNORE INTO schema_version (version) VALUES (?)", SchemaVersion); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
