// Package state persists local bookkeeping in a SQLite database: which
// markdown sections have already been imported or exported, and the
// consolidation watermark. The database is per-machine scratch state; losing
// it causes re-work on the next sync, never data loss.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS synced_sections (
	hash       TEXT PRIMARY KEY,
	memory_id  TEXT NOT NULL,
	source     TEXT NOT NULL,
	synced_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS watermarks (
	name TEXT PRIMARY KEY,
	ts   TIMESTAMP NOT NULL
);
`

// Store is the local sync-state database. Safe for concurrent use within
// one process; the CLI is single-writer by construction.
type Store struct {
	db *sql.DB
}

// Open opens (and creates, if missing) the state database at path.
// Use ":memory:" for a throwaway in-process store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}
	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create state schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// HasSection reports whether a content hash was already synced.
func (s *Store) HasSection(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM synced_sections WHERE hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query synced section: %w", err)
	}
	return n > 0, nil
}

// MarkSection records a content hash as synced, with the memory id it
// produced and the source it came from (a file path or "export").
// Re-marking an existing hash is a no-op.
func (s *Store) MarkSection(ctx context.Context, hash, memoryID, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO synced_sections (hash, memory_id, source)
		VALUES (?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, memoryID, source)
	if err != nil {
		return fmt.Errorf("failed to mark section: %w", err)
	}
	return nil
}

// SectionCount returns how many sections have been synced.
func (s *Store) SectionCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM synced_sections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sections: %w", err)
	}
	return n, nil
}

// Watermark returns the stored timestamp for name, or the zero time when no
// watermark has been set yet.
func (s *Store) Watermark(ctx context.Context, name string) (time.Time, error) {
	var ts time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT ts FROM watermarks WHERE name = ?`, name).Scan(&ts)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query watermark: %w", err)
	}
	return ts.UTC(), nil
}

// SetWatermark stores (or advances) the timestamp for name.
func (s *Store) SetWatermark(ctx context.Context, name string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (name, ts) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET ts = excluded.ts
	`, name, ts.UTC())
	if err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}
	return nil
}
