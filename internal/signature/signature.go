// Package signature isolates the minimal substring of an example page that
// represents a rendering defect, such as a serialized object leaking into
// visible text.
package signature

import (
	"errors"
	"log/slog"
)

// ErrNotFound indicates that no extraction strategy produced a signature.
// Callers recover by supplying an operator-provided signature instead.
var ErrNotFound = errors.New("signature: no extraction strategy matched")

// Signature is the extracted defect text plus the context needed to
// synthesize tolerant match patterns from it. Immutable once created.
type Signature struct {
	// Text is the minimal span representing the defect.
	Text string
	// Strategy names the extraction strategy that produced Text.
	Strategy string
	// NonASCII lists the distinct non-ASCII code points observed in Text,
	// in order of first appearance. Drives quote-variant tolerance downstream.
	NonASCII []rune
}

// New builds a Signature from raw text, tagging it with the given strategy
// name. Used for operator-supplied overrides as well as by the extractor.
func New(text, strategy string) *Signature {
	return &Signature{
		Text:     text,
		Strategy: strategy,
		NonASCII: nonASCII(text),
	}
}

// Config adjusts extraction heuristics.
type Config struct {
	// MinTokenLength is the threshold for the anomalous-token fallback
	// strategy. Zero selects the default of 60.
	MinTokenLength int
}

// Extractor applies an ordered chain of detection strategies to page content.
// The first strategy returning a non-empty span wins.
type Extractor struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewExtractor creates an Extractor with the default strategy chain.
func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = 60
	}
	return &Extractor{
		strategies: defaultStrategies(cfg),
		logger:     logger,
	}
}

// Extract runs the strategy chain over the page content and returns the first
// signature found. Returns ErrNotFound when every strategy comes up empty.
func (e *Extractor) Extract(content string) (*Signature, error) {
	for _, s := range e.strategies {
		span := s.Find(content)
		if span == "" {
			continue
		}
		e.logger.Debug("signature extracted", "strategy", s.Name, "len", len(span))
		return New(span, s.Name), nil
	}
	return nil, ErrNotFound
}

func nonASCII(s string) []rune {
	seen := make(map[rune]struct{})
	var runes []rune
	for _, r := range s {
		if r < 128 {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		runes = append(runes, r)
	}
	return runes
}
