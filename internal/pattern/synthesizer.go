package pattern

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/FranksOps/blight/internal/signature"
)

// canonicalQuotes covers ASCII quotes plus the typographic variants that
// CMS pipelines substitute during re-encoding: left/right single and double
// quotation marks, prime, and double prime. Patterns generated from one
// encoding must still match pages using another.
var canonicalQuotes = []rune{'"', '\'', '‘', '’', '“', '”', '′', '″'}

// Synthesizer turns a Signature into an ordered pattern set.
type Synthesizer struct {
	logger *slog.Logger
	// proximity bounds the distance between co-occurring fields in the
	// multi-field pattern.
	proximity int
	// maxSpan caps the complete-span pattern so a malformed page cannot
	// trigger catastrophic over-matching.
	maxSpan int
	// maxKeys caps how many per-field patterns are emitted.
	maxKeys int
}

// Config adjusts synthesis bounds. Zero values select defaults.
type Config struct {
	Proximity int
	MaxSpan   int
}

// NewSynthesizer creates a Synthesizer with the given bounds.
func NewSynthesizer(cfg Config, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Proximity <= 0 {
		cfg.Proximity = 256
	}
	if cfg.MaxSpan <= 0 {
		cfg.MaxSpan = 2048
	}
	return &Synthesizer{
		logger:    logger,
		proximity: cfg.Proximity,
		maxSpan:   cfg.MaxSpan,
		maxKeys:   4,
	}
}

// Synthesize expands sig into patterns ordered from most permissive to most
// strict. Every returned pattern is compiled and has been re-run against the
// signature's own text; a pattern failing its self-check is dropped with a
// warning rather than silently kept. Synthesis is deterministic for a given
// signature.
func (s *Synthesizer) Synthesize(sig *signature.Signature) ([]Pattern, error) {
	if sig == nil || strings.TrimSpace(sig.Text) == "" {
		return nil, fmt.Errorf("empty signature: %w", ErrInvalidSignature)
	}

	quotes := quoteClass(sig.NonASCII)
	keys := keyTokens(sig.Text, quotes, s.maxKeys)
	opening := openingRun(sig.Text)
	closing := closingRun(sig.Text, opening)

	type draft struct {
		name string
		expr string
	}
	var drafts []draft

	if opening != "" {
		drafts = append(drafts, draft{"opening-structure", bracketExpr(opening)})
	}
	for _, key := range keys {
		drafts = append(drafts, draft{"field-" + key, fieldExpr(key, quotes)})
	}
	if len(keys) >= 2 {
		expr := fieldExpr(keys[0], quotes) + fmt.Sprintf(`[\s\S]{0,%d}?`, s.proximity) + fieldExpr(keys[1], quotes)
		drafts = append(drafts, draft{"multi-field", expr})
	}
	if opening != "" && closing != "" {
		expr := bracketExpr(opening) + fmt.Sprintf(`[\s\S]{0,%d}?`, s.maxSpan) + bracketExpr(closing)
		drafts = append(drafts, draft{"complete-span", expr})
	}
	drafts = append(drafts, draft{"literal", literalExpr(sig.Text, quotes)})

	patterns := make([]Pattern, 0, len(drafts))
	for _, d := range drafts {
		re, err := regexp.Compile(d.expr)
		if err != nil {
			// Fail fast rather than hand the matcher a broken pattern.
			return nil, fmt.Errorf("pattern %q does not compile: %v: %w", d.name, err, ErrInvalidSignature)
		}
		if !re.MatchString(sig.Text) {
			s.logger.Warn("dropping pattern that fails to match its own signature",
				"pattern", d.name, "expression", d.expr)
			continue
		}
		patterns = append(patterns, Pattern{
			Name:       d.name,
			Expression: d.expr,
			Strictness: len(patterns),
			re:         re,
		})
	}

	if len(patterns) == 0 {
		return nil, fmt.Errorf("all candidate patterns failed self-check: %w", ErrInvalidSignature)
	}
	return patterns, nil
}

// quoteClass builds a character-class alternation covering the full canonical
// quote set plus any quote-like code points actually observed in the
// signature.
func quoteClass(observed []rune) string {
	var b strings.Builder
	b.WriteByte('[')
	seen := make(map[rune]struct{})
	write := func(r rune) {
		if _, ok := seen[r]; ok {
			return
		}
		seen[r] = struct{}{}
		switch r {
		case '\\', ']', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	for _, r := range canonicalQuotes {
		write(r)
	}
	for _, r := range observed {
		if isQuoteLike(r) {
			write(r)
		}
	}
	b.WriteByte(']')
	return b.String()
}

func isQuoteLike(r rune) bool {
	for _, q := range canonicalQuotes {
		if r == q {
			return true
		}
	}
	return unicode.In(r, unicode.Pi, unicode.Pf)
}

// keyTokens finds quoted field identifiers ("fid": ...) in the signature, in
// order of first appearance.
func keyTokens(text, quotes string, limit int) []string {
	re := regexp.MustCompile(quotes + `([A-Za-z_][A-Za-z0-9_-]*)` + quotes + `\s*:`)
	seen := make(map[string]struct{})
	var keys []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		key := m[1]
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
		if len(keys) == limit {
			break
		}
	}
	return keys
}

func fieldExpr(key, quotes string) string {
	return quotes + regexp.QuoteMeta(key) + quotes + `\s*:`
}

// openingRun returns the leading bracket/brace run of the signature.
func openingRun(text string) string {
	var run []rune
	for _, r := range text {
		switch r {
		case '[', '{':
			run = append(run, r)
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return string(run)
		}
	}
	return string(run)
}

// closingRun returns the trailing bracket/brace run, falling back to the
// mirror of the opening run when the signature was cut short.
func closingRun(text, opening string) string {
	var run []rune
	rs := []rune(text)
	for i := len(rs) - 1; i >= 0; i-- {
		switch rs[i] {
		case ']', '}':
			run = append([]rune{rs[i]}, run...)
		case ' ', '\t', '\n', '\r':
			continue
		default:
			i = -1
		}
		if i < 0 {
			break
		}
	}
	if len(run) > 0 {
		return string(run)
	}
	mirrored := make([]rune, 0, len(opening))
	for i := len(opening) - 1; i >= 0; i-- {
		switch opening[i] {
		case '[':
			mirrored = append(mirrored, ']')
		case '{':
			mirrored = append(mirrored, '}')
		}
	}
	return string(mirrored)
}

// bracketExpr escapes a bracket run and tolerates whitespace between the
// characters, which minifiers and pretty-printers both produce.
func bracketExpr(run string) string {
	parts := make([]string, 0, len(run))
	for _, r := range run {
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	return strings.Join(parts, `\s*`)
}

// literalExpr renders the whole signature as a quote-tolerant,
// whitespace-flexible expression. The strictest pattern in the set.
func literalExpr(text, quotes string) string {
	var b strings.Builder
	space := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space {
			b.WriteString(`\s+`)
			space = false
		}
		if isQuoteLike(r) {
			b.WriteString(quotes)
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	if space {
		b.WriteString(`\s+`)
	}
	return b.String()
}
