// Package scanner fetches pages and walks a site breadth-first under a page
// budget, feeding each successfully rendered page to a handler.
package scanner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/blight/internal/blockpage"
	"github.com/FranksOps/blight/internal/fingerprint"
	"github.com/FranksOps/blight/pkg/httpclient"
	"github.com/FranksOps/blight/pkg/proxy"
	"github.com/FranksOps/blight/pkg/ratelimit"
	"github.com/FranksOps/blight/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// FetchConfig configures the fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
}

// FetchResult captures one page retrieval attempt. A failed attempt carries
// its reason in Error instead of aborting the crawl.
type FetchResult struct {
	URL        string
	StatusCode int
	Body       []byte
	// HTML is set only when the response declared an HTML content type.
	HTML string
	// Links holds absolute, fragment-stripped outbound links found in HTML.
	Links    []string
	Duration time.Duration
	Blocked  bool
	// BlockedBy names the protection vendor when Blocked.
	BlockedBy string
	Error     string
}

// OK reports whether the fetch produced usable page content.
func (r *FetchResult) OK() bool {
	return r.Error == "" && !r.Blocked && r.StatusCode >= 200 && r.StatusCode < 400
}

// FailureReason describes why a fetch is not usable.
func (r *FetchResult) FailureReason() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Blocked:
		return "challenged by " + r.BlockedBy
	case r.StatusCode >= 400 || r.StatusCode < 200:
		return fmt.Sprintf("status %d", r.StatusCode)
	case r.HTML == "":
		return "non-HTML content"
	}
	return ""
}

// Fetcher retrieves single pages. Holding one client for the fetcher's
// lifetime lets cookie jars and pooled connections persist across requests.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
}

// NewFetcher initializes a Fetcher.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}

	// The proxy function reads the proxy URL from the request context so one
	// transport can serve per-request proxy rotation.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		if req.URL.Hostname() == "127.0.0.1" || req.URL.Hostname() == "localhost" {
			return nil, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Fetch executes a GET against targetURL. Per-page problems are reported in
// the result, not as an error; the returned error is reserved for conditions
// that would fail every request identically.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*FetchResult, error) {
	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx); err != nil {
			return &FetchResult{URL: targetURL, Error: fmt.Sprintf("rate limiter: %v", err)}, nil
		}
	}

	start := time.Now()
	result := &FetchResult{URL: targetURL}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy = f.config.ProxyPool.Next()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("create request: %v", err)
		result.Duration = time.Since(start)
		return result, nil
	}
	if activeProxy != nil {
		req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
	}

	req.Header.Set("User-Agent", f.config.UAPool.Next())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
		}
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Duration = time.Since(start)
		return result, nil
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("read body: %v", err)
		result.Duration = time.Since(start)
		return result, nil
	}

	result.StatusCode = resp.StatusCode
	result.Body = body
	result.Duration = time.Since(start)

	result.Blocked, result.BlockedBy = blockpage.Detect(resp.StatusCode, resp.Header, body)

	if isHTML(resp.Header.Get("Content-Type")) {
		result.HTML = string(body)
		result.Links = extractLinks(targetURL, body)
	}

	return result, nil
}

func isHTML(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml+xml")
}
