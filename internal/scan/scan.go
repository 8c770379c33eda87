// Package scan wires the full pipeline: signature extraction, pattern
// synthesis, the crawl/match loop, and result aggregation.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/FranksOps/blight/internal/matcher"
	"github.com/FranksOps/blight/internal/metrics"
	"github.com/FranksOps/blight/internal/pattern"
	"github.com/FranksOps/blight/internal/results"
	"github.com/FranksOps/blight/internal/scanner"
	"github.com/FranksOps/blight/internal/signature"
	"github.com/google/uuid"
)

// ErrNoSignature indicates that no extraction strategy matched the example
// page. Recoverable: the operator supplies an explicit signature override
// and re-runs.
var ErrNoSignature = errors.New("scan: could not extract a signature from the example page; supply an explicit override")

// Options configures one scan run.
type Options struct {
	// ExampleURL is the known-bad page the signature is extracted from.
	ExampleURL string
	// SiteRoot is where the crawl starts; the crawl never leaves its host.
	SiteRoot string
	// MaxPages is the page budget. Zero means fetch nothing and return an
	// empty result.
	MaxPages int
	// SignatureOverride skips extraction and uses this text directly.
	SignatureOverride string

	Concurrency       int
	RespectRobots     bool
	UserAgent         string
	RequestsPerSecond float64
	Jitter            float64
	SeedFromSitemap   bool

	// MinTokenLength tunes the anomalous-token extraction fallback.
	MinTokenLength int
	// ExcerptRadius bounds the context kept around a representative match.
	ExcerptRadius int

	// Sink, when set, receives each record as it is produced so partial
	// results survive early termination.
	Sink results.Sink
}

// Scanner runs scans. One Scanner may run scans sequentially; concurrent
// callers should use separate Scanners (the only state shared between Run
// and Partial is the active aggregator).
type Scanner struct {
	fetcher *scanner.Fetcher
	logger  *slog.Logger

	mu     sync.Mutex
	active *results.Aggregator
}

// New creates a Scanner using the given fetcher.
func New(fetcher *scanner.Fetcher, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{fetcher: fetcher, logger: logger}
}

// Run executes a full scan and returns its result. Per-page fetch failures
// are recorded and skipped; only scan-level failures (no usable signature,
// no valid patterns) surface as errors. On cancellation the already
// aggregated records are returned alongside the context error: partial
// results are a supported outcome, not a degraded one.
func (s *Scanner) Run(ctx context.Context, opts Options) (*results.ScanResult, error) {
	sig, err := s.resolveSignature(ctx, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("signature ready", "strategy", sig.Strategy, "len", len(sig.Text))

	synth := pattern.NewSynthesizer(pattern.Config{}, s.logger)
	patterns, err := synth.Synthesize(sig)
	if err != nil {
		return nil, fmt.Errorf("synthesize patterns: %w", err)
	}
	s.logger.Info("patterns synthesized", "count", len(patterns), "names", pattern.Names(patterns))

	meta := results.Metadata{
		ScanID:     uuid.New().String(),
		ExampleURL: opts.ExampleURL,
		SiteRoot:   opts.SiteRoot,
		StartedAt:  time.Now().UTC(),
	}
	agg := results.NewAggregator(meta, opts.Sink, s.logger)
	s.setActive(agg)
	defer s.setActive(nil)

	host := hostOf(opts.SiteRoot)
	crawler := scanner.NewCrawler(scanner.CrawlConfig{
		MaxPages:          opts.MaxPages,
		Concurrency:       opts.Concurrency,
		RespectRobots:     opts.RespectRobots,
		UserAgent:         opts.UserAgent,
		RequestsPerSecond: opts.RequestsPerSecond,
		Jitter:            opts.Jitter,
		SeedFromSitemap:   opts.SeedFromSitemap,
	}, s.fetcher, s.logger)

	stats, crawlErr := crawler.Run(ctx, opts.SiteRoot, func(res *scanner.FetchResult) {
		metrics.RecordFetch(host, "success", res.Duration)
		rec := matcher.Evaluate(res.URL, res.HTML, patterns, opts.ExcerptRadius)
		if rec == nil {
			return
		}
		metrics.RecordMatch(rec.Hits)
		agg.Add(ctx, rec)
	})
	if stats == nil {
		return nil, crawlErr
	}
	for range stats.Failures {
		metrics.RecordFetch(host, "failure", 0)
	}

	result := agg.Finalize(ctx, stats.PagesFetched, time.Now().UTC())
	s.logger.Info("scan finished",
		"scan_id", meta.ScanID,
		"pages_scanned", stats.PagesFetched,
		"failures", len(stats.Failures),
		"matched_pages", len(result.Records))

	return result, crawlErr
}

// Partial returns a snapshot of the running scan's result, or nil when no
// scan is active. Incremental consumers poll this mid-run.
func (s *Scanner) Partial() *results.ScanResult {
	s.mu.Lock()
	agg := s.active
	s.mu.Unlock()
	if agg == nil {
		return nil
	}
	return agg.Partial()
}

func (s *Scanner) setActive(agg *results.Aggregator) {
	s.mu.Lock()
	s.active = agg
	s.mu.Unlock()
}

// resolveSignature fetches the example page and extracts a signature, or
// takes the operator override verbatim when one is given.
func (s *Scanner) resolveSignature(ctx context.Context, opts Options) (*signature.Signature, error) {
	if strings.TrimSpace(opts.SignatureOverride) != "" {
		return signature.New(opts.SignatureOverride, signature.StrategyOverride), nil
	}

	res, err := s.fetcher.Fetch(ctx, opts.ExampleURL)
	if err != nil {
		return nil, fmt.Errorf("fetch example page: %w", err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("fetch example page %s: %s", opts.ExampleURL, res.Error)
	}

	content := res.HTML
	if content == "" {
		content = string(res.Body)
	}

	extractor := signature.NewExtractor(signature.Config{MinTokenLength: opts.MinTokenLength}, s.logger)
	sig, err := extractor.Extract(content)
	if errors.Is(err, signature.ErrNotFound) {
		return nil, ErrNoSignature
	}
	if err != nil {
		return nil, fmt.Errorf("extract signature: %w", err)
	}
	return sig, nil
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
