// Package store provides Kotae's SQLite-backed persistence: a small
// key-value table with optional expiry (restart flags, distilled-history
// cache) and the per-conversation chat log the LLM adapter records into.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrUnavailable wraps every failure of the underlying database. Callers on
// the turn path treat store failures as non-fatal and log them.
var ErrUnavailable = errors.New("store: unavailable")

// Store wraps the database connection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite is single-writer by design. A single shared connection lets
	// database/sql serialize writers instead of them fighting for file locks.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: set pragma: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the schema. Both tables are append-mostly and tiny, so a
// single idempotent migration is enough.
func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			expires_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			chat_id    TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// Set writes key=value. A positive ttl makes the entry expire; ttl <= 0
// stores it without expiry. Last write wins.
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = time.Now().UTC().Add(ttl).Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
`, key, value, expires)
	if err != nil {
		return fmt.Errorf("%w: set %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Get returns the value stored under key and whether it was present.
// Expired entries are treated as absent and removed lazily.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expires sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv WHERE key = ?`, key,
	).Scan(&value, &expires)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: get %q: %v", ErrUnavailable, key, err)
	}

	if expires.Valid {
		deadline, perr := time.Parse(time.RFC3339Nano, expires.String)
		if perr != nil || time.Now().UTC().After(deadline) {
			_, _ = s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
			return "", false, nil
		}
	}
	return value, true, nil
}

// SetFlag stores a boolean under key with no expiry.
func (s *Store) SetFlag(ctx context.Context, key string, v bool) error {
	return s.Set(ctx, key, strconv.FormatBool(v), 0)
}

// Flag reads a boolean stored under key. Absent or unparseable values are
// reported as false.
func (s *Store) Flag(ctx context.Context, key string) (bool, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	b, perr := strconv.ParseBool(value)
	if perr != nil {
		return false, nil
	}
	return b, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("%w: delete %q: %v", ErrUnavailable, key, err)
	}
	return nil
}
