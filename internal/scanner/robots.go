package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// RobotsPolicy enforces robots.txt, caching the parsed rules per host.
// Unreachable or unparseable robots.txt fails open.
type RobotsPolicy struct {
	fetcher *Fetcher
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
}

// NewRobotsPolicy creates a policy backed by the given fetcher.
func NewRobotsPolicy(fetcher *Fetcher, logger *slog.Logger) *RobotsPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsPolicy{
		fetcher: fetcher,
		logger:  logger,
		cache:   make(map[string]*robotstxt.RobotsData),
	}
}

// Allowed reports whether targetURL may be fetched on behalf of userAgent.
func (r *RobotsPolicy) Allowed(ctx context.Context, targetURL, userAgent string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("invalid url: %w", err)
	}

	origin := u.Scheme + "://" + u.Host
	data, err := r.getOrFetch(ctx, origin)
	if err != nil {
		r.logger.Debug("robots.txt unavailable, allowing", "origin", origin, "err", err)
		return true, nil
	}
	if data == nil {
		return true, nil
	}
	return data.FindGroup(userAgent).Test(u.Path), nil
}

func (r *RobotsPolicy) getOrFetch(ctx context.Context, origin string) (*robotstxt.RobotsData, error) {
	r.mu.RLock()
	data, ok := r.cache[origin]
	r.mu.RUnlock()
	if ok {
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if data, ok = r.cache[origin]; ok {
		return data, nil
	}

	res, err := r.fetcher.Fetch(ctx, origin+"/robots.txt")
	if err != nil {
		return nil, err
	}
	if res.Error != "" {
		return nil, fmt.Errorf("fetch robots.txt: %s", res.Error)
	}

	// A 404 means no restrictions; FromStatusAndBytes encodes that rule.
	data, err = robotstxt.FromStatusAndBytes(res.StatusCode, res.Body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	r.cache[origin] = data
	return data, nil
}
