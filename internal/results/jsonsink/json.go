// Package jsonsink persists match records as newline-delimited JSON. The
// append-only layout means a crashed scan leaves behind every record emitted
// up to the crash.
package jsonsink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FranksOps/blight/internal/results"
)

var _ results.Sink = (*jsonSink)(nil)

// envelope is one NDJSON line: either a record or a closing summary.
type envelope struct {
	ScanID  string               `json:"scan_id"`
	Record  *results.MatchRecord `json:"record,omitempty"`
	Summary *results.Metadata    `json:"summary,omitempty"`
}

type jsonSink struct {
	mu   sync.Mutex
	file *os.File
}

// New opens (or creates) an NDJSON sink at filePath.
func New(filePath string) (results.Sink, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open result file: %w", err)
	}
	return &jsonSink{file: f}, nil
}

func (s *jsonSink) Append(ctx context.Context, scanID string, rec *results.MatchRecord) error {
	return s.writeLine(envelope{ScanID: scanID, Record: rec})
}

func (s *jsonSink) Finalize(ctx context.Context, result *results.ScanResult) error {
	meta := result.Metadata
	return s.writeLine(envelope{ScanID: meta.ScanID, Summary: &meta})
}

func (s *jsonSink) writeLine(env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal result line: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append result line: %w", err)
	}
	return nil
}

func (s *jsonSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Read reconstructs a scan's result from an NDJSON file, including partial
// results of an interrupted run (in which case the metadata carries no
// completion timestamp).
func Read(filePath, scanID string) (*results.ScanResult, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open result file: %w", err)
	}
	defer f.Close()
	return read(f, scanID)
}

func read(r io.Reader, scanID string) (*results.ScanResult, error) {
	result := &results.ScanResult{Metadata: results.Metadata{ScanID: scanID}}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return nil, fmt.Errorf("decode result line: %w", err)
		}
		if env.ScanID != scanID {
			continue
		}
		if env.Record != nil {
			result.Records = append(result.Records, env.Record)
		}
		if env.Summary != nil {
			result.Metadata = *env.Summary
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	return result, nil
}
