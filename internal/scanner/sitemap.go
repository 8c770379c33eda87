package scanner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	sitemap "github.com/oxffaa/gopher-parse-sitemap"
)

// SitemapSeeder discovers extra seed URLs from a site's sitemap so that
// pages far from the root are reachable within small page budgets.
type SitemapSeeder struct {
	fetcher *Fetcher
	logger  *slog.Logger
	// maxNested bounds recursion into sitemap index files.
	maxNested int
}

// NewSitemapSeeder initializes a SitemapSeeder.
func NewSitemapSeeder(fetcher *Fetcher, logger *slog.Logger) *SitemapSeeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapSeeder{
		fetcher:   fetcher,
		logger:    logger,
		maxNested: 10,
	}
}

// Discover fetches <origin>/sitemap.xml and returns every page URL listed,
// following one level of sitemap index indirection.
func (s *SitemapSeeder) Discover(ctx context.Context, origin string) ([]string, error) {
	urls, nested, err := s.parseOne(ctx, origin+"/sitemap.xml")
	if err != nil {
		return nil, err
	}

	if len(nested) > s.maxNested {
		nested = nested[:s.maxNested]
	}
	for _, child := range nested {
		childURLs, _, err := s.parseOne(ctx, child)
		if err != nil {
			s.logger.Debug("nested sitemap skipped", "url", child, "err", err)
			continue
		}
		urls = append(urls, childURLs...)
	}

	s.logger.Debug("sitemap seeds discovered", "count", len(urls))
	return urls, nil
}

func (s *SitemapSeeder) parseOne(ctx context.Context, sitemapURL string) (urls, nested []string, err error) {
	res, err := s.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, nil, err
	}
	if res.Error != "" {
		return nil, nil, fmt.Errorf("fetch sitemap: %s", res.Error)
	}
	if res.StatusCode >= 400 {
		return nil, nil, fmt.Errorf("sitemap status %d", res.StatusCode)
	}

	err = sitemap.Parse(bytes.NewReader(res.Body), func(e sitemap.Entry) error {
		urls = append(urls, e.GetLocation())
		return nil
	})
	if err == nil && len(urls) > 0 {
		return urls, nil, nil
	}

	// Not a plain sitemap; try it as an index of nested sitemaps.
	indexErr := sitemap.ParseIndex(bytes.NewReader(res.Body), func(e sitemap.IndexEntry) error {
		nested = append(nested, e.GetLocation())
		return nil
	})
	if indexErr != nil {
		return nil, nil, fmt.Errorf("parse sitemap: %w", indexErr)
	}
	return urls, nested, nil
}
