package signature

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy is one detection heuristic. Find returns the smallest span
// satisfying the strategy's structural test, or "" when nothing qualifies.
// Returning the smallest span matters: over-capturing produces brittle
// patterns downstream.
type Strategy struct {
	Name string
	Find func(content string) string
}

const (
	StrategyDoubleBracket  = "double-bracket"
	StrategyDoubleBrace    = "double-brace"
	StrategyJSONInText     = "json-in-text"
	StrategyEscaped        = "escaped"
	StrategyAnomalousToken = "anomalous-token"
	StrategyOverride       = "override"
)

// maxSpanLen guards against pathological pages where a delimiter never
// closes until megabytes later.
const maxSpanLen = 4096

func defaultStrategies(cfg Config) []Strategy {
	return []Strategy{
		{Name: StrategyDoubleBracket, Find: findDoubleBracket},
		{Name: StrategyDoubleBrace, Find: findDoubleBrace},
		{Name: StrategyJSONInText, Find: findJSONInText},
		{Name: StrategyEscaped, Find: findEscaped},
		{Name: StrategyAnomalousToken, Find: anomalousTokenFinder(cfg.MinTokenLength)},
	}
}

func findDoubleBracket(content string) string {
	return balancedSpan(content, "[[", "]]")
}

func findDoubleBrace(content string) string {
	return balancedSpan(content, "{{", "}}")
}

// balancedSpan returns the smallest balanced span delimited by open/close,
// including the delimiters themselves.
func balancedSpan(content, open, close string) string {
	best := ""
	for from := 0; ; {
		idx := strings.Index(content[from:], open)
		if idx < 0 {
			break
		}
		start := from + idx
		depth := 0
		end := -1
		for i := start; i < len(content); {
			switch {
			case strings.HasPrefix(content[i:], open):
				depth++
				i += len(open)
			case strings.HasPrefix(content[i:], close):
				depth--
				i += len(close)
				if depth <= 0 {
					end = i
				}
			default:
				i++
			}
			if end >= 0 {
				break
			}
		}
		if end > start && end-start <= maxSpanLen {
			span := content[start:end]
			if best == "" || len(span) < len(best) {
				best = span
			}
		}
		from = start + len(open)
	}
	return best
}

// kvSpanRe matches the innermost brace-delimited span containing at least one
// quoted key:value pair. Quote variants are accepted so pages that re-encode
// quotes typographically still trigger the strategy.
var kvSpanRe = regexp.MustCompile(`\{[^{}]*["'\x{2018}\x{2019}\x{201C}\x{201D}\x{2032}\x{2033}][\w-]+["'\x{2018}\x{2019}\x{201C}\x{201D}\x{2032}\x{2033}]\s*:[^{}]*\}`)

// findJSONInText looks for JSON-shaped substrings inside textual containers,
// the tell of a template failing to render its data.
func findJSONInText(content string) string {
	best := ""
	for _, text := range textContainers(content) {
		for _, m := range kvSpanRe.FindAllString(text, -1) {
			if len(m) > maxSpanLen {
				continue
			}
			if best == "" || len(m) < len(best) {
				best = m
			}
		}
	}
	return best
}

var percentTokenRe = regexp.MustCompile(`[^\s"'<>]*%[0-9A-Fa-f]{2}[^\s"'<>]*`)

// findEscaped decodes percent-escaped and entity-escaped substrings and
// re-runs the structural finders over the raw form.
func findEscaped(content string) string {
	best := ""
	consider := func(decoded string) {
		span := structuralSpan(decoded)
		if span == "" {
			return
		}
		if best == "" || len(span) < len(best) {
			best = span
		}
	}

	for _, tok := range percentTokenRe.FindAllString(content, -1) {
		decoded, err := url.QueryUnescape(tok)
		if err != nil || decoded == tok {
			continue
		}
		consider(decoded)
	}

	if strings.Contains(content, "&") {
		if decoded := html.UnescapeString(content); decoded != content {
			consider(decoded)
		}
	}
	return best
}

// structuralSpan applies the higher-priority finders to already-decoded text.
func structuralSpan(text string) string {
	if span := findDoubleBracket(text); span != "" {
		return span
	}
	if span := findDoubleBrace(text); span != "" {
		return span
	}
	if m := kvSpanRe.FindString(text); m != "" && len(m) <= maxSpanLen {
		return m
	}
	return ""
}

// anomalousTokenFinder is the fallback heuristic: an unbroken token of
// implausible length sitting inside narrative text.
func anomalousTokenFinder(minLen int) func(string) string {
	return func(content string) string {
		best := ""
		for _, text := range textContainers(content) {
			for _, tok := range strings.Fields(text) {
				if len(tok) < minLen || len(tok) > maxSpanLen {
					continue
				}
				if best == "" || len(tok) < len(best) {
					best = tok
				}
			}
		}
		return best
	}
}

// textContainers returns the text of narrative elements in the page. When the
// content is not parseable HTML the whole input is treated as one container.
func textContainers(content string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return []string{content}
	}
	var texts []string
	doc.Find("p, li, td, blockquote, figcaption, article, section, div").Each(func(_ int, sel *goquery.Selection) {
		// Skip wrappers; only leaf-ish containers hold narrative text.
		if sel.Children().Length() > 0 && sel.Is("div, article, section") {
			return
		}
		if t := strings.TrimSpace(sel.Text()); t != "" {
			texts = append(texts, t)
		}
	})
	if len(texts) == 0 {
		if t := strings.TrimSpace(doc.Text()); t != "" {
			texts = append(texts, t)
		} else {
			texts = append(texts, content)
		}
	}
	return texts
}
