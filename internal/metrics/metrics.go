// Package metrics exposes Prometheus instrumentation for scans.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blight_pages_fetched_total",
			Help: "Pages processed by the crawler, by outcome",
		},
		[]string{"host", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blight_fetch_duration_seconds",
			Help:    "Duration of page fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	MatchRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blight_match_records_total",
			Help: "Pages where at least one pattern matched",
		},
	)

	PatternHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blight_pattern_hits_total",
			Help: "Pattern occurrences counted across all scanned pages",
		},
		[]string{"pattern"},
	)
)

// RecordFetch updates fetch metrics for one page.
func RecordFetch(host, outcome string, duration time.Duration) {
	PagesFetchedTotal.WithLabelValues(host, outcome).Inc()
	if duration > 0 {
		FetchDuration.WithLabelValues(host).Observe(duration.Seconds())
	}
}

// RecordMatch updates match metrics from one record's per-pattern hits.
func RecordMatch(hits map[string]int) {
	MatchRecordsTotal.Inc()
	for name, count := range hits {
		PatternHitsTotal.WithLabelValues(name).Add(float64(count))
	}
}

// Server encapsulates an HTTP server exposing /metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the given port.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
