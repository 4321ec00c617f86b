// Package sqlite provides a SQLite-backed store for candidates, spectra and
// identification results.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/core"
	"github.com/BostonUniversityCBMS/glycresoft-sqlalchemy-sub000/pkg/store"
)

// DB is an open SQLite store file.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the store at path.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=off", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, transient("create tables", err)
	}
	return &DB{db: db, path: path}, nil
}

// Path returns the file the store was opened from.
func (d *DB) Path() string { return d.path }

// Close closes the database.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// Factory returns a store.Factory. Every session holds its own connection.
func (d *DB) Factory() store.Factory {
	return func(ctx context.Context) (store.Session, error) {
		return d.Session(ctx)
	}
}

// Session opens a session on a dedicated connection.
func (d *DB) Session(ctx context.Context) (*Session, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, transient("open session", err)
	}
	return &Session{conn: conn}, nil
}

// transient maps busy and locked errors from SQLite to
// core.TransientIOError and wraps everything else.
func transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return &core.TransientIOError{Op: op, Err: err}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
