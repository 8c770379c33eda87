package scan

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/FranksOps/blight/internal/fingerprint"
	"github.com/FranksOps/blight/internal/scanner"
)

func newTestScanner(t *testing.T) *Scanner {
	t.Helper()
	fetcher, err := scanner.NewFetcher(scanner.FetchConfig{
		Timeout:     5 * time.Second,
		Fingerprint: fingerprint.ProfileGo,
	})
	if err != nil {
		t.Fatalf("create fetcher: %v", err)
	}
	return New(fetcher, nil)
}

// defectSite serves an example page with a raw shortcode containing a
// typographic double prime, and a three-page site where exactly one page
// carries the ASCII-quote rendition of the same defect.
func defectSite() *httptest.Server {
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(body))
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/broken", page(`<html><body><p>Article text [[{"fid":"1101026″,"view_mode":"full_width"}]] more text</p></body></html>`))
	mux.HandleFunc("/", page(`<html><body><a href="/a">a</a><a href="/b">b</a><a href="/c">c</a></body></html>`))
	mux.HandleFunc("/a", page(`<html><body><p>Fine page.</p></body></html>`))
	mux.HandleFunc("/b", page(`<html><body><p>Leaked: [[{"fid":"1101026","view_mode":"full_width"}]]</p></body></html>`))
	mux.HandleFunc("/c", page(`<html><body><p>Also fine.</p></body></html>`))
	return httptest.NewServer(mux)
}

func TestRun_FindsQuoteVariantRecurrence(t *testing.T) {
	ts := defectSite()
	defer ts.Close()

	result, err := newTestScanner(t).Run(context.Background(), Options{
		ExampleURL:  ts.URL + "/broken",
		SiteRoot:    ts.URL + "/",
		MaxPages:    10,
		Concurrency: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Records) != 1 {
		t.Fatalf("expected exactly one matched page, got %d: %+v", len(result.Records), result.Records)
	}
	rec := result.Records[0]
	if rec.URL != ts.URL+"/b" {
		t.Errorf("matched wrong page: %s", rec.URL)
	}
	if rec.TotalMatches < 1 {
		t.Errorf("total matches = %d", rec.TotalMatches)
	}
	if rec.Excerpt == "" {
		t.Error("expected an excerpt on the record")
	}
	if result.Metadata.PagesScanned != 4 {
		t.Errorf("pages scanned = %d, want 4", result.Metadata.PagesScanned)
	}
	if result.Metadata.ScanID == "" {
		t.Error("scan id missing")
	}
	if result.Metadata.CompletedAt.Before(result.Metadata.StartedAt) {
		t.Errorf("completed %v before started %v", result.Metadata.CompletedAt, result.Metadata.StartedAt)
	}
}

func TestRun_ZeroBudget(t *testing.T) {
	ts := defectSite()
	defer ts.Close()

	result, err := newTestScanner(t).Run(context.Background(), Options{
		ExampleURL: ts.URL + "/broken",
		SiteRoot:   ts.URL + "/",
		MaxPages:   0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Records) != 0 || result.Metadata.PagesScanned != 0 {
		t.Errorf("expected an empty result, got %d records over %d pages",
			len(result.Records), result.Metadata.PagesScanned)
	}
}

func TestRun_SignatureOverride(t *testing.T) {
	ts := defectSite()
	defer ts.Close()

	// No example URL at all: the override is used verbatim.
	result, err := newTestScanner(t).Run(context.Background(), Options{
		SignatureOverride: `[[{"fid":"1101026″,"view_mode":"full_width"}]]`,
		SiteRoot:          ts.URL + "/",
		MaxPages:          10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected one matched page, got %d", len(result.Records))
	}
}

func TestRun_NoSignatureFound(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><p>A perfectly healthy page.</p></body></html>`))
	}))
	defer ts.Close()

	_, err := newTestScanner(t).Run(context.Background(), Options{
		ExampleURL: ts.URL + "/fine",
		SiteRoot:   ts.URL + "/",
		MaxPages:   10,
	})
	if !errors.Is(err, ErrNoSignature) {
		t.Fatalf("expected ErrNoSignature, got %v", err)
	}
}

func TestRun_Repeatable(t *testing.T) {
	ts := defectSite()
	defer ts.Close()

	s := newTestScanner(t)
	opts := Options{
		ExampleURL:  ts.URL + "/broken",
		SiteRoot:    ts.URL + "/",
		MaxPages:    10,
		Concurrency: 2,
	}

	first, err := s.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := s.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(first.Records) != len(second.Records) {
		t.Fatalf("runs disagree: %d vs %d records", len(first.Records), len(second.Records))
	}
	for i := range first.Records {
		a, b := first.Records[i], second.Records[i]
		if a.URL != b.URL || a.TotalMatches != b.TotalMatches {
			t.Errorf("record %d differs: %+v vs %+v", i, a, b)
		}
	}
	if first.Metadata.ScanID == second.Metadata.ScanID {
		t.Error("each run must get its own scan id")
	}
}

func TestPartial_NoActiveScan(t *testing.T) {
	if snap := newTestScanner(t).Partial(); snap != nil {
		t.Fatalf("expected nil snapshot with no scan running, got %+v", snap)
	}
}
