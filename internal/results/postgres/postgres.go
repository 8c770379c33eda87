// Package postgres persists scan results to PostgreSQL for deployments that
// aggregate scans from many hosts.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/FranksOps/blight/internal/results"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ results.Sink = (*postgresSink)(nil)

type postgresSink struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id TEXT PRIMARY KEY,
	example_url TEXT NOT NULL,
	site_root TEXT NOT NULL,
	pages_scanned INTEGER NOT NULL DEFAULT 0,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS match_records (
	scan_id TEXT NOT NULL,
	url TEXT NOT NULL,
	total_matches INTEGER NOT NULL,
	hits JSONB NOT NULL,
	excerpt TEXT,
	PRIMARY KEY (scan_id, url)
);
`

// New creates a Postgres-backed results.Sink.
func New(ctx context.Context, dsn string) (results.Sink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &postgresSink{pool: pool}, nil
}

func (s *postgresSink) Append(ctx context.Context, scanID string, rec *results.MatchRecord) error {
	hits, err := json.Marshal(rec.Hits)
	if err != nil {
		return fmt.Errorf("marshal hits: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO match_records (scan_id, url, total_matches, hits, excerpt)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scan_id, url) DO UPDATE
		SET total_matches = EXCLUDED.total_matches, hits = EXCLUDED.hits, excerpt = EXCLUDED.excerpt`,
		scanID, rec.URL, rec.TotalMatches, hits, rec.Excerpt,
	)
	if err != nil {
		return fmt.Errorf("insert match record: %w", err)
	}
	return nil
}

func (s *postgresSink) Finalize(ctx context.Context, result *results.ScanResult) error {
	meta := result.Metadata
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scans (id, example_url, site_root, pages_scanned, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET pages_scanned = EXCLUDED.pages_scanned, completed_at = EXCLUDED.completed_at`,
		meta.ScanID, meta.ExampleURL, meta.SiteRoot, meta.PagesScanned, meta.StartedAt, meta.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert scan: %w", err)
	}
	return nil
}

func (s *postgresSink) Close() error {
	s.pool.Close()
	return nil
}
