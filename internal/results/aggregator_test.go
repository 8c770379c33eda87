package results

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingSink struct {
	appended  []*MatchRecord
	finalized *ScanResult
	appendErr error
}

func (s *recordingSink) Append(ctx context.Context, scanID string, rec *MatchRecord) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, rec)
	return nil
}

func (s *recordingSink) Finalize(ctx context.Context, result *ScanResult) error {
	s.finalized = result
	return nil
}

func (s *recordingSink) Close() error { return nil }

func testMeta() Metadata {
	return Metadata{
		ScanID:     "scan-1",
		ExampleURL: "https://site.example/broken",
		SiteRoot:   "https://site.example/",
		StartedAt:  time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestAggregator_BufferAndFinalize(t *testing.T) {
	agg := NewAggregator(testMeta(), nil, nil)
	ctx := context.Background()

	agg.Add(ctx, &MatchRecord{URL: "https://site.example/b", Hits: map[string]int{"literal": 1}, TotalMatches: 1})
	agg.Add(ctx, &MatchRecord{URL: "https://site.example/a", Hits: map[string]int{"literal": 2}, TotalMatches: 2})

	done := time.Date(2026, 8, 1, 12, 5, 0, 0, time.UTC)
	result := agg.Finalize(ctx, 42, done)

	if result.Metadata.PagesScanned != 42 {
		t.Errorf("pages scanned = %d, want 42", result.Metadata.PagesScanned)
	}
	if !result.Metadata.CompletedAt.Equal(done) {
		t.Errorf("completed at = %v, want %v", result.Metadata.CompletedAt, done)
	}
	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	// Final record order is by URL regardless of arrival order.
	if result.Records[0].URL != "https://site.example/a" || result.Records[1].URL != "https://site.example/b" {
		t.Errorf("records not sorted by url: %s, %s", result.Records[0].URL, result.Records[1].URL)
	}
}

func TestAggregator_PartialSnapshotIsolation(t *testing.T) {
	agg := NewAggregator(testMeta(), nil, nil)
	ctx := context.Background()

	agg.Add(ctx, &MatchRecord{URL: "https://site.example/x", Hits: map[string]int{"literal": 1}, TotalMatches: 1})
	snap := agg.Partial()
	if len(snap.Records) != 1 {
		t.Fatalf("expected 1 record in snapshot, got %d", len(snap.Records))
	}

	// Mutating the snapshot must not leak into the aggregator.
	snap.Records[0].Hits["literal"] = 99
	snap.Records[0].TotalMatches = 99

	agg.Add(ctx, &MatchRecord{URL: "https://site.example/y", Hits: map[string]int{"literal": 1}, TotalMatches: 1})
	if len(snap.Records) != 1 {
		t.Errorf("snapshot grew after Add: %d records", len(snap.Records))
	}

	final := agg.Finalize(ctx, 2, time.Now())
	if final.Records[0].Hits["literal"] != 1 || final.Records[0].TotalMatches != 1 {
		t.Errorf("snapshot mutation leaked into the final result: %+v", final.Records[0])
	}
}

func TestAggregator_SinkReceivesEveryRecord(t *testing.T) {
	sink := &recordingSink{}
	agg := NewAggregator(testMeta(), sink, nil)
	ctx := context.Background()

	agg.Add(ctx, &MatchRecord{URL: "https://site.example/1", Hits: map[string]int{"literal": 1}, TotalMatches: 1})
	agg.Add(ctx, &MatchRecord{URL: "https://site.example/2", Hits: map[string]int{"literal": 1}, TotalMatches: 1})
	agg.Finalize(ctx, 2, time.Now())

	if len(sink.appended) != 2 {
		t.Errorf("sink saw %d appends, want 2", len(sink.appended))
	}
	if sink.finalized == nil {
		t.Fatal("sink never finalized")
	}
	if sink.finalized.Metadata.ScanID != "scan-1" {
		t.Errorf("finalized scan id = %q", sink.finalized.Metadata.ScanID)
	}
}

func TestAggregator_SinkFailureDoesNotDropRecords(t *testing.T) {
	sink := &recordingSink{appendErr: errors.New("disk full")}
	agg := NewAggregator(testMeta(), sink, nil)
	ctx := context.Background()

	agg.Add(ctx, &MatchRecord{URL: "https://site.example/1", Hits: map[string]int{"literal": 1}, TotalMatches: 1})

	result := agg.Finalize(ctx, 1, time.Now())
	if len(result.Records) != 1 {
		t.Errorf("in-memory result lost a record on sink failure: %d records", len(result.Records))
	}
}
