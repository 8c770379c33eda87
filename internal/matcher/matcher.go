// Package matcher evaluates a synthesized pattern set against fetched page
// content and produces per-page match records.
package matcher

import (
	"strings"
	"unicode/utf8"

	"github.com/FranksOps/blight/internal/pattern"
	"github.com/FranksOps/blight/internal/results"
)

// DefaultExcerptRadius is the context kept on each side of a representative
// match, in bytes (adjusted to rune boundaries).
const DefaultExcerptRadius = 120

// Evaluate applies every pattern to the page content independently; patterns
// never short-circuit one another, since permissive patterns drive recall
// while the strict ones drive triage priority. Occurrences are counted
// non-overlapping per pattern. Returns nil when no pattern hits.
func Evaluate(pageURL, content string, patterns []pattern.Pattern, excerptRadius int) *results.MatchRecord {
	if excerptRadius <= 0 {
		excerptRadius = DefaultExcerptRadius
	}

	hits := make(map[string]int, len(patterns))
	total := 0

	// Track the first match of the strictest pattern that hit anything; its
	// surroundings make the most useful excerpt for operator review.
	excerptAt := -1
	excerptEnd := -1
	excerptRank := -1

	for _, p := range patterns {
		locs := p.Regexp().FindAllStringIndex(content, -1)
		if len(locs) == 0 {
			continue
		}
		hits[p.Name] = len(locs)
		total += len(locs)
		if p.Strictness > excerptRank {
			excerptRank = p.Strictness
			excerptAt = locs[0][0]
			excerptEnd = locs[0][1]
		}
	}

	if total == 0 {
		return nil
	}

	return &results.MatchRecord{
		URL:          pageURL,
		Hits:         hits,
		TotalMatches: total,
		Excerpt:      excerpt(content, excerptAt, excerptEnd, excerptRadius),
	}
}

// excerpt returns the content around [start,end) padded by radius bytes on
// each side, snapped to rune boundaries and whitespace-collapsed.
func excerpt(content string, start, end, radius int) string {
	if start < 0 || end > len(content) {
		return ""
	}

	lo := start - radius
	if lo < 0 {
		lo = 0
	}
	for lo > 0 && !utf8.RuneStart(content[lo]) {
		lo--
	}

	hi := end + radius
	if hi > len(content) {
		hi = len(content)
	}
	for hi < len(content) && !utf8.RuneStart(content[hi]) {
		hi++
	}

	return strings.Join(strings.Fields(content[lo:hi]), " ")
}
