// Package db provides the embedded SQLite store behind the sync gateway.
//
// The database runs through the ncruces/go-sqlite3 driver (SQLite compiled
// to WASM, no cgo) in WAL mode so readers proceed while a writer holds the
// lock. Foreign keys are enforced on every pooled connection because entry
// and child-row deletion relies on ON DELETE CASCADE.
//
// Architecture:
//   - Database file: configured by db.path
//   - Schema: goose migrations embedded from migrations/*.sql
//   - Transactions: BEGIN IMMEDIATE, so concurrent writers queue on the
//     busy timeout instead of failing on lock upgrade
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Options tunes the connection pool.
type Options struct {
	// BusyTimeout is how long a connection waits on a locked database.
	BusyTimeout time.Duration

	// MaxOpenConns caps the pool size.
	MaxOpenConns int
}

// DefaultOptions returns the pool settings used by Open.
func DefaultOptions() Options {
	return Options{
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 25,
	}
}

// DB wraps the SQLite connection pool.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The schema is not touched; call Migrate before serving requests.
// The caller MUST call Close() when done.
//
// Example:
//
//	store, err := db.Open("data/syncgw.db")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*DB, error) {
	return OpenWithOptions(path, DefaultOptions())
}

// OpenWithOptions is Open with explicit pool settings.
func OpenWithOptions(path string, opts Options) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultOptions().BusyTimeout
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = DefaultOptions().MaxOpenConns
	}

	// Pragmas in the DSN apply to each new pooled connection, not just the
	// first one.
	connStr := fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_txlock=immediate",
		path, opts.BusyTimeout.Milliseconds(),
	)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
// This is useful for integrating with other libraries that expect *sql.DB.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// ExecContext implements DBTX.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryContext implements DBTX.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext implements DBTX.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}
