package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/blight/internal/fingerprint"
)

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	f, err := NewFetcher(FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
	})
	if err != nil {
		t.Fatalf("create fetcher: %v", err)
	}
	return f
}

func htmlHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(body))
	}
}

func TestCrawler_BreadthFirst(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlHandler(`<html><body><a href="/page2">2</a><a href="http://external.example/out">out</a></body></html>`))
	mux.HandleFunc("/page2", htmlHandler(`<html><body><a href="/page3">3</a><a href="/page2#frag">self</a></body></html>`))
	mux.HandleFunc("/page3", htmlHandler(`<html><body>no links</body></html>`))

	ts := httptest.NewServer(mux)
	defer ts.Close()

	var (
		mu      sync.Mutex
		visited []string
	)
	crawler := NewCrawler(CrawlConfig{MaxPages: 10, Concurrency: 2}, newTestFetcher(t), slog.Default())
	stats, err := crawler.Run(context.Background(), ts.URL+"/", func(res *FetchResult) {
		mu.Lock()
		visited = append(visited, res.URL)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.PagesFetched != 3 {
		t.Errorf("expected 3 pages fetched, got %d", stats.PagesFetched)
	}
	for _, u := range visited {
		if strings.Contains(u, "external.example") {
			t.Errorf("crawled off-domain url %s", u)
		}
		if strings.Contains(u, "#") {
			t.Errorf("fragment survived normalization: %s", u)
		}
	}
	// Each URL is handled at most once even though /page2 links to itself.
	seen := make(map[string]int)
	for _, u := range visited {
		seen[u]++
		if seen[u] > 1 {
			t.Errorf("url %s handled %d times", u, seen[u])
		}
	}
}

func TestCrawler_PageBudget(t *testing.T) {
	mux := http.NewServeMux()
	// A hub page linking to many children; budget must cap successes.
	var links strings.Builder
	for i := 0; i < 20; i++ {
		links.WriteString(fmt.Sprintf(`<a href="/child/%d">c</a>`, i))
	}
	mux.HandleFunc("/", htmlHandler(`<html><body>`+links.String()+`</body></html>`))
	mux.HandleFunc("/child/", htmlHandler(`<html><body>leaf</body></html>`))

	ts := httptest.NewServer(mux)
	defer ts.Close()

	for _, budget := range []int{1, 3, 7} {
		t.Run(fmt.Sprintf("budget=%d", budget), func(t *testing.T) {
			var count int
			var mu sync.Mutex
			crawler := NewCrawler(CrawlConfig{MaxPages: budget, Concurrency: 4}, newTestFetcher(t), slog.Default())
			stats, err := crawler.Run(context.Background(), ts.URL+"/", func(res *FetchResult) {
				mu.Lock()
				count++
				mu.Unlock()
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if stats.PagesFetched > budget {
				t.Errorf("fetched %d pages, budget %d", stats.PagesFetched, budget)
			}
			if count != stats.PagesFetched {
				t.Errorf("handler saw %d pages, stats say %d", count, stats.PagesFetched)
			}
		})
	}
}

func TestCrawler_ZeroBudget(t *testing.T) {
	requests := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html></html>`))
	}))
	defer ts.Close()

	crawler := NewCrawler(CrawlConfig{MaxPages: 0}, newTestFetcher(t), slog.Default())
	stats, err := crawler.Run(context.Background(), ts.URL+"/", func(res *FetchResult) {
		t.Error("handler must not run with a zero budget")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.PagesFetched != 0 || requests != 0 {
		t.Errorf("expected no fetches, got %d fetched / %d requests", stats.PagesFetched, requests)
	}
}

func TestCrawler_NoOutboundLinks(t *testing.T) {
	ts := httptest.NewServer(htmlHandler(`<html><body>dead end</body></html>`))
	defer ts.Close()

	crawler := NewCrawler(CrawlConfig{MaxPages: 10, Concurrency: 2}, newTestFetcher(t), slog.Default())
	stats, err := crawler.Run(context.Background(), ts.URL+"/", func(res *FetchResult) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.PagesFetched != 1 {
		t.Errorf("expected exactly one page fetched, got %d", stats.PagesFetched)
	}
}

func TestCrawler_FailuresSkippedNotFatal(t *testing.T) {
	mux := http.NewServeMux()
	var links strings.Builder
	for i := 0; i < 10; i++ {
		links.WriteString(fmt.Sprintf(`<a href="/page/%d">p</a>`, i))
	}
	mux.HandleFunc("/", htmlHandler(`<html><body>`+links.String()+`</body></html>`))
	mux.HandleFunc("/page/", func(w http.ResponseWriter, r *http.Request) {
		// Half the pages fail.
		var n int
		fmt.Sscanf(r.URL.Path, "/page/%d", &n)
		if n%2 == 0 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>ok</body></html>`))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	crawler := NewCrawler(CrawlConfig{MaxPages: 100, Concurrency: 3}, newTestFetcher(t), slog.Default())
	stats, err := crawler.Run(context.Background(), ts.URL+"/", func(res *FetchResult) {})
	if err != nil {
		t.Fatalf("crawl must survive per-page failures: %v", err)
	}

	// Root plus the 5 odd-numbered pages succeed; 5 fail.
	if stats.PagesFetched != 6 {
		t.Errorf("expected 6 successful fetches, got %d", stats.PagesFetched)
	}
	if len(stats.Failures) != 5 {
		t.Errorf("expected 5 recorded failures, got %d: %+v", len(stats.Failures), stats.Failures)
	}
	for _, f := range stats.Failures {
		if f.Reason == "" {
			t.Errorf("failure for %s has no reason", f.URL)
		}
	}
}

func TestCrawler_FailuresDoNotConsumeBudget(t *testing.T) {
	mux := http.NewServeMux()
	var links strings.Builder
	for i := 0; i < 6; i++ {
		links.WriteString(fmt.Sprintf(`<a href="/page/%d">p</a>`, i))
	}
	mux.HandleFunc("/", htmlHandler(`<html><body>`+links.String()+`</body></html>`))
	mux.HandleFunc("/page/", func(w http.ResponseWriter, r *http.Request) {
		var n int
		fmt.Sscanf(r.URL.Path, "/page/%d", &n)
		if n < 3 {
			http.Error(w, "broken", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>ok</body></html>`))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	// Budget 4: root + the three working pages all fit because the three
	// failures do not count.
	crawler := NewCrawler(CrawlConfig{MaxPages: 4, Concurrency: 2}, newTestFetcher(t), slog.Default())
	stats, err := crawler.Run(context.Background(), ts.URL+"/", func(res *FetchResult) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.PagesFetched != 4 {
		t.Errorf("expected the full budget of 4 successes, got %d", stats.PagesFetched)
	}
}

func TestCrawler_Cancellation(t *testing.T) {
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="/next">n</a></body></html>`))
	}))
	defer ts.Close()
	defer close(release)

	crawler := NewCrawler(CrawlConfig{MaxPages: 50, Concurrency: 1}, newTestFetcher(t), slog.Default())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := crawler.Run(ctx, ts.URL+"/", func(res *FetchResult) {})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "context canceled") {
			t.Errorf("expected context canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("crawl did not stop after cancellation")
	}
}

func TestCrawler_InvalidRoot(t *testing.T) {
	crawler := NewCrawler(CrawlConfig{MaxPages: 1}, newTestFetcher(t), slog.Default())
	if _, err := crawler.Run(context.Background(), "ftp://site.example/", func(res *FetchResult) {}); err == nil {
		t.Fatal("expected an error for a non-http root")
	}
}
