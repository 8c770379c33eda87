package results

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Aggregator collects MatchRecords as the crawl produces them. With a nil
// sink it buffers in memory only; with a sink every record is additionally
// appended to persistent storage as it arrives.
type Aggregator struct {
	logger *slog.Logger
	sink   Sink

	mu      sync.Mutex
	meta    Metadata
	records []*MatchRecord
}

// NewAggregator starts collecting for the scan described by meta.
func NewAggregator(meta Metadata, sink Sink, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{logger: logger, sink: sink, meta: meta}
}

// Add appends a record. Sink write failures are logged, not propagated: the
// in-memory result stays authoritative and the crawl keeps going.
func (a *Aggregator) Add(ctx context.Context, rec *MatchRecord) {
	a.mu.Lock()
	a.records = append(a.records, rec)
	a.mu.Unlock()

	if a.sink != nil {
		if err := a.sink.Append(ctx, a.meta.ScanID, rec); err != nil {
			a.logger.Error("failed to persist match record", "url", rec.URL, "err", err)
		}
	}
}

// Partial returns a read-only snapshot of the result so far. Records are in
// emission order (worker completion order, not queue order).
func (a *Aggregator) Partial() *ScanResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Finalize stamps the metadata, sorts records by URL for a deterministic
// final set, and hands the result to the sink. The aggregator must not be
// used after Finalize.
func (a *Aggregator) Finalize(ctx context.Context, pagesScanned int, completedAt time.Time) *ScanResult {
	a.mu.Lock()
	a.meta.PagesScanned = pagesScanned
	a.meta.CompletedAt = completedAt
	sort.Slice(a.records, func(i, j int) bool { return a.records[i].URL < a.records[j].URL })
	result := a.snapshotLocked()
	a.mu.Unlock()

	if a.sink != nil {
		if err := a.sink.Finalize(ctx, result); err != nil {
			a.logger.Error("failed to finalize sink", "scan_id", result.Metadata.ScanID, "err", err)
		}
	}
	return result
}

func (a *Aggregator) snapshotLocked() *ScanResult {
	records := make([]*MatchRecord, len(a.records))
	for i, rec := range a.records {
		clone := *rec
		clone.Hits = make(map[string]int, len(rec.Hits))
		for k, v := range rec.Hits {
			clone.Hits[k] = v
		}
		records[i] = &clone
	}
	return &ScanResult{Metadata: a.meta, Records: records}
}
