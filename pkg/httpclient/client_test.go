package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_Do(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, err := New(Config{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestClient_NilContext(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	req, _ := http.NewRequest(http.MethodGet, "http://site.example/", nil)
	if _, err := c.Do(nil, req); err == nil { //nolint:staticcheck
		t.Fatal("expected an error for a nil context")
	}
}

func TestClient_RedirectLimit(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL+r.URL.Path+"x", http.StatusFound)
	}))
	defer ts.Close()

	c, err := New(Config{MaxRedirects: 3})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/a", nil)
	_, err = c.Do(context.Background(), req)
	if err == nil || !strings.Contains(err.Error(), "stopped after 3 redirects") {
		t.Fatalf("expected the redirect cap to trip, got %v", err)
	}
}

func TestClient_NoFollow(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	defer ts.Close()

	c, err := New(Config{MaxRedirects: -1})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMovedPermanently {
		t.Errorf("expected the redirect itself, got %d", resp.StatusCode)
	}
}
