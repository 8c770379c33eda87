package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/FranksOps/blight/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
)

// CrawlConfig provides parameters for the breadth-first crawler.
type CrawlConfig struct {
	// MaxPages is the page budget: the maximum number of successfully
	// fetched pages. Failed fetches do not count against it.
	MaxPages    int
	Concurrency int
	// RespectRobots enables robots.txt checks before fetching.
	RespectRobots bool
	// UserAgent is matched against robots.txt groups.
	UserAgent string
	// RequestsPerSecond limits the fetch rate (0 = unlimited).
	RequestsPerSecond float64
	// Jitter applies randomness to the rate limiter (0.0 to 1.0).
	Jitter float64
	// SeedFromSitemap pre-seeds the queue from the site's sitemap.xml so
	// deep pages are reachable within small budgets.
	SeedFromSitemap bool
}

// FetchFailure records a page that could not be fetched. Failures are
// reported, never fatal: a failed page is skipped and the crawl moves on.
type FetchFailure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// CrawlStats summarizes a finished crawl.
type CrawlStats struct {
	PagesFetched int
	URLsSeen     int
	Failures     []FetchFailure
}

// PageHandler receives each successfully fetched HTML page. Handlers run on
// worker goroutines; completion order within a BFS level is unordered.
type PageHandler func(res *FetchResult)

// Crawler walks one site breadth-first. The queue, visited set, and budget
// counters are the only shared mutable state and all sit behind one mutex;
// workers fetch and report back but never touch that state directly.
type Crawler struct {
	cfg     CrawlConfig
	fetcher *Fetcher
	logger  *slog.Logger
	robots  *RobotsPolicy
	limiter *ratelimit.Limiter

	mu       sync.Mutex
	visited  map[string]struct{}
	fetched  int
	inflight int
	failures []FetchFailure
}

// NewCrawler creates a breadth-first crawler.
func NewCrawler(cfg CrawlConfig, fetcher *Fetcher, logger *slog.Logger) *Crawler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "*"
	}

	var robots *RobotsPolicy
	if cfg.RespectRobots {
		robots = NewRobotsPolicy(fetcher, logger)
	}

	return &Crawler{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger,
		robots:  robots,
		limiter: ratelimit.NewLimiter(cfg.RequestsPerSecond, cfg.Jitter),
		visited: make(map[string]struct{}),
	}
}

// Run crawls the site rooted at root, invoking handler for every page that
// fetches successfully, until the queue empties, the budget is spent, or ctx
// is canceled. Stats are valid in all three cases; the returned error is
// non-nil only on cancellation.
func (c *Crawler) Run(ctx context.Context, root string, handler PageHandler) (*CrawlStats, error) {
	defer c.limiter.Stop()

	rootURL, err := url.Parse(root)
	if err != nil {
		return nil, fmt.Errorf("parse site root: %w", err)
	}
	if rootURL.Scheme != "http" && rootURL.Scheme != "https" {
		return nil, fmt.Errorf("site root %q is not an http(s) url", root)
	}
	host := strings.ToLower(rootURL.Hostname())

	if c.cfg.MaxPages <= 0 {
		return c.stats(), nil
	}

	normalizedRoot, err := normalizeURL(root)
	if err != nil {
		return nil, fmt.Errorf("normalize site root: %w", err)
	}

	level := []string{normalizedRoot}
	c.markVisited(normalizedRoot)

	if c.cfg.SeedFromSitemap {
		for _, seed := range c.sitemapSeeds(ctx, rootURL) {
			if c.admit(host, seed) {
				level = append(level, seed)
			}
		}
	}

	for len(level) > 0 && !c.budgetSpent() {
		next, err := c.crawlLevel(ctx, host, level, handler)
		if err != nil {
			return c.stats(), err
		}
		level = next
	}

	return c.stats(), nil
}

// crawlLevel fetches every URL of one BFS level through a bounded worker
// pool and returns the next level's URLs. Budget reservations ensure the
// number of successful fetches never exceeds MaxPages even with concurrent
// workers: a worker that cannot reserve a slot while fetches are in flight
// defers its URL, and deferred URLs get another chance if those fetches fail.
func (c *Crawler) crawlLevel(ctx context.Context, host string, urls []string, handler PageHandler) ([]string, error) {
	var (
		nextMu sync.Mutex
		next   []string
	)

	pending := urls
	for len(pending) > 0 && !c.budgetSpent() {
		var (
			deferredMu sync.Mutex
			deferred   []string
		)

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Concurrency)

		for _, pageURL := range pending {
			pageURL := pageURL
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				switch c.reserve() {
				case reserveDenied:
					return nil
				case reserveWait:
					deferredMu.Lock()
					deferred = append(deferred, pageURL)
					deferredMu.Unlock()
					return nil
				}

				links, ok := c.fetchPage(gCtx, pageURL, handler)
				c.release(ok)
				if !ok {
					return gCtx.Err()
				}
				for _, link := range links {
					if c.admit(host, link) {
						nextMu.Lock()
						next = append(next, link)
						nextMu.Unlock()
					}
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
		// All reservations are resolved here, so the deferred URLs either
		// proceed on freed budget or are denied outright next iteration.
		pending = deferred
	}

	return next, nil
}

func (c *Crawler) fetchPage(ctx context.Context, pageURL string, handler PageHandler) ([]string, bool) {
	if c.robots != nil {
		allowed, err := c.robots.Allowed(ctx, pageURL, c.cfg.UserAgent)
		if err == nil && !allowed {
			c.recordFailure(pageURL, "disallowed by robots.txt")
			return nil, false
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, false
	}

	c.logger.Debug("fetching", "url", pageURL)
	res, err := c.fetcher.Fetch(ctx, pageURL)
	if ctx.Err() != nil {
		// A canceled fetch is not a page failure.
		return nil, false
	}
	if err != nil || res == nil {
		c.recordFailure(pageURL, fmt.Sprintf("fetch: %v", err))
		return nil, false
	}
	if !res.OK() || res.HTML == "" {
		c.recordFailure(pageURL, res.FailureReason())
		return nil, false
	}

	handler(res)
	return res.Links, true
}

type reservation int

const (
	reserveOK reservation = iota
	// reserveWait means in-flight fetches hold the remaining budget; retry
	// once they resolve.
	reserveWait
	// reserveDenied means the budget is spent for good.
	reserveDenied
)

func (c *Crawler) reserve() reservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetched >= c.cfg.MaxPages {
		return reserveDenied
	}
	if c.fetched+c.inflight >= c.cfg.MaxPages {
		return reserveWait
	}
	c.inflight++
	return reserveOK
}

func (c *Crawler) release(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--
	if success {
		c.fetched++
	}
}

func (c *Crawler) budgetSpent() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetched >= c.cfg.MaxPages
}

// admit normalizes a discovered link and claims it for the crawl. Marking
// visited at admission time guarantees a URL can never re-enter the queue.
func (c *Crawler) admit(host, link string) bool {
	normalized, err := normalizeURL(link)
	if err != nil {
		return false
	}
	if !sameHost(normalized, host) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, seen := c.visited[normalized]; seen {
		return false
	}
	c.visited[normalized] = struct{}{}
	return true
}

func (c *Crawler) markVisited(normalized string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visited[normalized] = struct{}{}
}

func (c *Crawler) recordFailure(pageURL, reason string) {
	c.logger.Warn("page skipped", "url", pageURL, "reason", reason)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, FetchFailure{URL: pageURL, Reason: reason})
}

func (c *Crawler) sitemapSeeds(ctx context.Context, rootURL *url.URL) []string {
	seeder := NewSitemapSeeder(c.fetcher, c.logger)
	seeds, err := seeder.Discover(ctx, rootURL.Scheme+"://"+rootURL.Host)
	if err != nil {
		c.logger.Debug("sitemap discovery failed", "err", err)
		return nil
	}
	return seeds
}

func (c *Crawler) stats() *CrawlStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	failures := make([]FetchFailure, len(c.failures))
	copy(failures, c.failures)
	return &CrawlStats{
		PagesFetched: c.fetched,
		URLsSeen:     len(c.visited),
		Failures:     failures,
	}
}
