// Package results accumulates match records during a scan and defines the
// persisted result schema consumed by export collaborators.
package results

import (
	"context"
	"time"
)

// MatchRecord is the per-page outcome of evaluating the pattern set. Created
// once per matching page; never mutated afterward.
type MatchRecord struct {
	URL string `json:"url"`
	// Hits maps pattern name to non-overlapping occurrence count.
	Hits map[string]int `json:"hits"`
	// TotalMatches is the sum of Hits and is always >= 1.
	TotalMatches int `json:"total_matches"`
	// Excerpt is the context around a representative match, for operator
	// review.
	Excerpt string `json:"excerpt,omitempty"`
}

// Metadata describes one scan run.
type Metadata struct {
	ScanID       string    `json:"scan_id"`
	ExampleURL   string    `json:"example_url"`
	SiteRoot     string    `json:"site_root"`
	PagesScanned int       `json:"pages_scanned"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
}

// ScanResult is the full structured output of a scan. Each URL appears at
// most once; the crawler's visited set guarantees it without a separate
// dedup pass.
type ScanResult struct {
	Metadata Metadata       `json:"metadata"`
	Records  []*MatchRecord `json:"records"`
}

// Sink receives match records as they are produced, so a long crawl's
// partial results survive a crash or early termination.
type Sink interface {
	// Append persists one record immediately.
	Append(ctx context.Context, scanID string, rec *MatchRecord) error
	// Finalize persists the completed result's metadata.
	Finalize(ctx context.Context, result *ScanResult) error
	Close() error
}
