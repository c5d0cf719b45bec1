package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite database holding books, artifacts and diffs.
type Store struct {
	conn *sql.DB
	Path string
}

// Open opens (creating if needed) a store with WAL mode and foreign
// keys enabled, and ensures the schema exists.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for concurrent readers during a run
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{conn: conn, Path: path}
	if err := s.ensureSchema(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// Conn returns the underlying sql.DB for custom queries.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

func (s *Store) ensureSchema() error {
	for _, stmt := range schema {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("initializing schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		title      TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'new',
		stage      INTEGER NOT NULL DEFAULT 0,
		metadata   TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		key        TEXT NOT NULL,
		version    INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		content    TEXT NOT NULL,
		metadata   TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE(key, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_artifacts_key ON artifacts(key)`,
	`CREATE TABLE IF NOT EXISTS diffs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		key        TEXT NOT NULL,
		version    INTEGER NOT NULL,
		payload    TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		UNIQUE(key, version)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_diffs_key ON diffs(key)`,
}
