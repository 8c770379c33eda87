// Package history persists completed scan summaries. The store is an
// explicit object passed to whoever invokes scans: the scan core itself
// carries no global state, so concurrent callers never cross-talk.
package history

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/FranksOps/blight/internal/results"
	_ "modernc.org/sqlite"
)

// Entry is one stored scan summary.
type Entry struct {
	results.Metadata
	MatchedPages int `json:"matched_pages"`
}

// Store is a SQLite-backed scan history.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS scan_history (
	id TEXT PRIMARY KEY,
	example_url TEXT NOT NULL,
	site_root TEXT NOT NULL,
	pages_scanned INTEGER NOT NULL,
	matched_pages INTEGER NOT NULL,
	started_at DATETIME NOT NULL,
	completed_at DATETIME NOT NULL
);
`

// Open creates or opens a history store at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Save records a completed scan.
func (s *Store) Save(ctx context.Context, result *results.ScanResult) error {
	meta := result.Metadata
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO scan_history (id, example_url, site_root, pages_scanned, matched_pages, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meta.ScanID, meta.ExampleURL, meta.SiteRoot, meta.PagesScanned, len(result.Records),
		meta.StartedAt, meta.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save scan history: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, example_url, site_root, pages_scanned, matched_pages, started_at, completed_at
		 FROM scan_history ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scan history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ScanID, &e.ExampleURL, &e.SiteRoot, &e.PagesScanned,
			&e.MatchedPages, &e.StartedAt, &e.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan history: %w", err)
	}
	return entries, nil
}

// Get returns one entry by scan ID.
func (s *Store) Get(ctx context.Context, scanID string) (*Entry, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx,
		`SELECT id, example_url, site_root, pages_scanned, matched_pages, started_at, completed_at
		 FROM scan_history WHERE id = ?`, scanID).
		Scan(&e.ScanID, &e.ExampleURL, &e.SiteRoot, &e.PagesScanned,
			&e.MatchedPages, &e.StartedAt, &e.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", scanID, err)
	}
	return &e, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
