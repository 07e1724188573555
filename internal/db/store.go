// Package db implements IdStore (spec §4.1): the relational schema, its
// migration, and the low-level Store wrapper every other subsystem builds
// on. Time is always formatted "YYYY-MM-DD HH:MM:SS" UTC, matching the
// schema's TEXT timestamp columns.
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

// SchemaVersion is the version this binary's embedded schema.sql expects.
const SchemaVersion = 1

// TimeFormat is the canonical on-disk timestamp layout (spec §4.1).
const TimeFormat = "2006-01-02 15:04:05"

// FormatTime renders t in the canonical UTC layout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// ParseTime parses the canonical UTC layout, falling back to RFC3339 for
// defensiveness against hand-edited rows.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeFormat, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

// Store wraps the sqlite connection and exposes a serialized-writer
// transaction helper (spec §5: "single writer lane").
type Store struct {
	db *sql.DB
	mu chan struct{} // 1-buffered: acts as the single writer lane
}

// Open opens or creates a sqlite database at dbPath, initializing the
// schema if the file is new. A schema mismatch on an existing database is
// fatal (spec §4.1), unlike a cache the caller may freely discard.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	escapedPath := strings.ReplaceAll(dbPath, " ", "%20")
	connStr := "file:" + escapedPath
	if dbPath == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	sqlDB, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite only tolerates a single writer; the channel-based lane above
	// serializes writers in-process, so cap the pool accordingly.
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA foreign_keys=ON"); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	var existingVersion int
	row := sqlDB.QueryRow("SELECT version FROM schema_version LIMIT 1")
	switch err := row.Scan(&existingVersion); {
	case err == sql.ErrNoRows, strings.Contains(fmt.Sprint(err), "no such table"):
		// Fresh database: initialize.
		if _, err := sqlDB.Exec(schemaSQL); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
	case err != nil:
		sqlDB.Close()
		return nil, fmt.Errorf("read schema_version: %w", err)
	case existingVersion != SchemaVersion:
		sqlDB.Close()
		return nil, fmt.Errorf("schema mismatch: database is at version %d, binary expects %d", existingVersion, SchemaVersion)
	default:
		// Already at the expected version; re-running the embedded DDL is
		// a no-op thanks to IF NOT EXISTS, and keeps FTS triggers present
		// if they were somehow dropped.
		if _, err := sqlDB.Exec(schemaSQL); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("reconcile schema: %w", err)
		}
	}

	lane := make(chan struct{}, 1)
	lane <- struct{}{}
	return &Store{db: sqlDB, mu: lane}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying *sql.DB for read-only queries. The pool holds a
// single connection, so a read waits while a write transaction is open.
func (s *Store) DB() *sql.DB { return s.db }

// WithWriteTx runs fn inside a transaction while holding the single writer
// lane, so writes from different goroutines never interleave (spec §5:
// "operation order is preserved" within a writer). fn must not itself
// acquire the lane.
func (s *Store) WithWriteTx(ctx context.Context, fn func(*sql.Tx) error) error {
	select {
	case <-s.mu:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { s.mu <- struct{}{} }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
