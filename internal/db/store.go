// Package db provides transactional, full-text-indexed persistence for the
// coordination engine (spec §4.1 / C2), backed by SQLite via modernc.org/sqlite
// (a pure-Go driver, so the engine never needs cgo).
package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps database operations for the coordination engine.
type Store struct {
	db *sql.DB
	q  *Queries
}

// Open opens or creates a SQLite database at the given path.
// If the existing database has an incompatible schema, it is deleted and recreated.
func Open(dbPath string) (*Store, error) {
	store, err := openDB(dbPath)
	if err != nil {
		if isSchemaMismatch(err) {
			if removeErr := os.Remove(dbPath); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("remove incompatible database: %w", removeErr)
			}
			os.Remove(dbPath + "-wal")
			os.Remove(dbPath + "-shm")
			return openDB(dbPath)
		}
		return nil, err
	}
	return store, nil
}

func isSchemaMismatch(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "SQL logic error")
}

// openDB is the internal function that opens the database
func openDB(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	// Use file: URI format to properly handle paths with spaces and query params
	escapedPath := strings.ReplaceAll(dbPath, " ", "%20")
	connStr := "file:" + escapedPath + "?_time_format=sqlite"
	sqlDB, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Single-writer per archive (spec §5): one connection avoids SQLITE_BUSY
	// races between goroutines instead of papering over them with retries.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: sqlDB, q: &Queries{db: sqlDB}}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Queries returns the hand-written query set for read paths that don't need
// transactional scope.
func (s *Store) Queries() *Queries {
	return s.q
}

// DB returns the underlying database connection for raw queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx executes fn inside a single transaction, committing on success and
// rolling back on any error returned by fn.
func (s *Store) WithTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{db: s.db, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Now returns the current time in UTC with the monotonic reading stripped,
// so stored values round-trip cleanly through SQLite's datetime functions.
func Now() time.Time {
	return time.Now().UTC().Round(0)
}

// ToNullTime converts a time.Time to sql.NullTime, treating the zero value as NULL.
func ToNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func toNullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time.UTC()
	return &v
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

// DefaultDBPath returns the default database path under the user's config directory.
func DefaultDBPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = os.Getenv("HOME")
	}
	return filepath.Join(configDir, "agentmail", "index.db")
}
