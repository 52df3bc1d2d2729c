// Package sqlite implements the repository interfaces on top of SQLite.
//
// STORAGE LAYOUT:
// An example is split across two tables. `examples` holds what never changes
// (id, language, package, creator) and `snapshots` holds one row per content
// version. The latest snapshot of an example is the one with the highest id.
// Comments, runs and locks hang off the example id or the (language, package)
// pair.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the server builds without a C
// toolchain and tests can use ":memory:" databases anywhere Go runs.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements every repository interface.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations.
//
//   - "data/examples.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SINGLE CONNECTION:
	// SQLite allows one writer at a time, and every new connection to
	// ":memory:" opens a brand new empty database. One pooled connection
	// serialises writes and keeps tests on the same in-memory database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. Every statement is idempotent, so it runs on
// every start.
//
// Timestamps the lock and workflow logic compares (lock expiration, snapshot
// and comment times) are unix seconds in INTEGER columns: integer comparison
// in SQL is exact, and the API exposes them as seconds anyway.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS examples (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			language   TEXT NOT NULL,
			package    TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_examples_resource ON examples(language, package);
	`)
	if err != nil {
		return fmt.Errorf("creating examples table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			example_id INTEGER NOT NULL REFERENCES examples(id),
			author     TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL DEFAULT 'in_progress',
			title      TEXT NOT NULL DEFAULT '',
			prelude    TEXT NOT NULL DEFAULT '',
			code       TEXT NOT NULL DEFAULT '',
			postlude   TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_snapshots_example ON snapshots(example_id, id);
	`)
	if err != nil {
		return fmt.Errorf("creating snapshots table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS comments (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			example_id   INTEGER NOT NULL REFERENCES examples(id),
			text         TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL DEFAULT 0,
			created_by   TEXT NOT NULL DEFAULT '',
			modified_at  INTEGER NOT NULL DEFAULT 0,
			modified_by  TEXT NOT NULL DEFAULT '',
			dismissed    INTEGER NOT NULL DEFAULT 0,
			dismissed_by TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_comments_example ON comments(example_id, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating comments table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS access_locks (
			language   TEXT NOT NULL,
			package    TEXT NOT NULL,
			user_email TEXT NOT NULL,
			expiration INTEGER NOT NULL,
			PRIMARY KEY (language, package)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating access_locks table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			example_id INTEGER NOT NULL REFERENCES examples(id),
			succeeded  INTEGER NOT NULL DEFAULT 0,
			output     TEXT NOT NULL DEFAULT '',
			ran_at     INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_example ON runs(example_id, id);
	`)
	if err != nil {
		return fmt.Errorf("creating runs table: %w", err)
	}

	// github_id is UNIQUE but nullable: password accounts have none.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			github_id  INTEGER UNIQUE,
			login      TEXT NOT NULL DEFAULT '',
			email      TEXT NOT NULL UNIQUE,
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Added after the first release; existing databases get the column here.
	if err := db.addColumnIfNotExists("users", "password_hash",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding password_hash to users: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
