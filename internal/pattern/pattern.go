// Package pattern expands an extracted defect signature into an ordered set
// of regular-expression variants of increasing strictness. Permissive
// patterns drive recall; strict patterns drive precision.
package pattern

import (
	"errors"
	"regexp"
)

// ErrInvalidSignature indicates a signature that cannot be turned into any
// valid pattern. The scan cannot proceed without a usable pattern set.
var ErrInvalidSignature = errors.New("pattern: signature yields no valid patterns")

// Pattern is one synthesized match rule. Immutable once generated: the
// expression is compiled and validated at synthesis time, so the matcher
// never sees a pattern that does not compile.
type Pattern struct {
	Name       string
	Expression string
	// Strictness ranks patterns from most permissive (0) upward.
	Strictness int

	re *regexp.Regexp
}

// Regexp returns the compiled expression.
func (p Pattern) Regexp() *regexp.Regexp {
	return p.re
}

// MatchString reports whether the pattern matches s.
func (p Pattern) MatchString(s string) bool {
	return p.re.MatchString(s)
}

// Names returns the pattern names in strictness order.
func Names(patterns []Pattern) []string {
	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = p.Name
	}
	return names
}
