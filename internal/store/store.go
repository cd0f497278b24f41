// Package store owns the single embedded relational connection used by the
// telemetry pipeline. SQLite only supports one concurrent writer, so the
// pool is pinned to a single connection and every repository in the sibling
// packages (snapshot, alertlog, timeline, settings) serializes through it.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// LockTimeout is the duration SQLite waits on a busy write lock before
// returning SQLITE_BUSY, per the spec's 10s lock-wait budget.
const LockTimeout = 10 * time.Second

// Store wraps the shared database handle.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open creates the data directory if needed, opens the database, applies
// pragmas for single-writer WAL operation, and runs pending migrations.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: all access serializes at the Go level, preventing
	// SQLITE_BUSY errors from concurrent scheduler/retention writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", LockTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// DB exposes the underlying handle to sibling repository packages. Those
// packages live outside this package to keep each entity's queries (and
// tests) colocated with its own data model, per the teacher's one-
// repository-per-file convention generalized to one-repository-per-package.
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back otherwise. Per spec.md §4.5 / §7, a transaction failure never
// propagates past the caller's tick or cycle: the caller decides whether to
// log-and-skip or retry.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
