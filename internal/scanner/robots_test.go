package scanner

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestRobotsPolicy_DisallowHonored(t *testing.T) {
	var robotsHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		robotsHits.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private/\n"))
	})

	ts := httptest.NewServer(mux)
	defer ts.Close()

	policy := NewRobotsPolicy(newTestFetcher(t), nil)
	ctx := context.Background()

	allowed, err := policy.Allowed(ctx, ts.URL+"/private/page", "*")
	if err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if allowed {
		t.Error("disallowed path was allowed")
	}

	allowed, err = policy.Allowed(ctx, ts.URL+"/public/page", "*")
	if err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if !allowed {
		t.Error("public path was denied")
	}

	// Both checks share one cached robots.txt fetch.
	if robotsHits.Load() != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", robotsHits.Load())
	}
}

func TestRobotsPolicy_MissingFailsOpen(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	policy := NewRobotsPolicy(newTestFetcher(t), nil)
	allowed, err := policy.Allowed(context.Background(), ts.URL+"/anything", "*")
	if err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if !allowed {
		t.Error("a missing robots.txt must not restrict the crawl")
	}
}

func TestRobotsPolicy_UnreachableFailsOpen(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close()

	policy := NewRobotsPolicy(newTestFetcher(t), nil)
	allowed, err := policy.Allowed(context.Background(), ts.URL+"/page", "*")
	if err != nil {
		t.Fatalf("allowed: %v", err)
	}
	if !allowed {
		t.Error("an unreachable robots.txt must fail open")
	}
}
