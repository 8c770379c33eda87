// Package sqlitesink persists scan results to SQLite. Records are inserted
// as they arrive, so partial results of an interrupted scan are queryable.
package sqlitesink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/FranksOps/blight/internal/results"
	_ "modernc.org/sqlite"
)

var _ results.Sink = (*sqliteSink)(nil)

type sqliteSink struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id TEXT PRIMARY KEY,
	example_url TEXT NOT NULL,
	site_root TEXT NOT NULL,
	pages_scanned INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE TABLE IF NOT EXISTS match_records (
	scan_id TEXT NOT NULL,
	url TEXT NOT NULL,
	total_matches INTEGER NOT NULL,
	hits TEXT NOT NULL,
	excerpt TEXT,
	PRIMARY KEY (scan_id, url)
);
`

// New creates a SQLite-backed results.Sink.
func New(dsn string) (results.Sink, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &sqliteSink{db: db}, nil
}

func (s *sqliteSink) Append(ctx context.Context, scanID string, rec *results.MatchRecord) error {
	hits, err := json.Marshal(rec.Hits)
	if err != nil {
		return fmt.Errorf("marshal hits: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO match_records (scan_id, url, total_matches, hits, excerpt) VALUES (?, ?, ?, ?, ?)`,
		scanID, rec.URL, rec.TotalMatches, string(hits), rec.Excerpt,
	)
	if err != nil {
		return fmt.Errorf("insert match record: %w", err)
	}
	return nil
}

func (s *sqliteSink) Finalize(ctx context.Context, result *results.ScanResult) error {
	meta := result.Metadata
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO scans (id, example_url, site_root, pages_scanned, started_at, completed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		meta.ScanID, meta.ExampleURL, meta.SiteRoot, meta.PagesScanned, meta.StartedAt, meta.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert scan: %w", err)
	}
	return nil
}

// Records returns a scan's persisted match records ordered by URL.
func (s *sqliteSink) Records(ctx context.Context, scanID string) ([]*results.MatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, total_matches, hits, excerpt FROM match_records WHERE scan_id = ? ORDER BY url`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query match records: %w", err)
	}
	defer rows.Close()

	var records []*results.MatchRecord
	for rows.Next() {
		var (
			rec      results.MatchRecord
			hitsJSON string
		)
		if err := rows.Scan(&rec.URL, &rec.TotalMatches, &hitsJSON, &rec.Excerpt); err != nil {
			return nil, fmt.Errorf("scan match record row: %w", err)
		}
		if err := json.Unmarshal([]byte(hitsJSON), &rec.Hits); err != nil {
			return nil, fmt.Errorf("decode hits: %w", err)
		}
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate match records: %w", err)
	}
	return records, nil
}

func (s *sqliteSink) Close() error {
	return s.db.Close()
}
