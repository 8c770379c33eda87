package report

import (
	"io"
	"sort"
	"strconv"

	"github.com/FranksOps/blight/internal/results"
	"github.com/nao1215/markdown"
)

// WriteMarkdown writes a GitHub-flavored markdown report, suitable for
// pasting into an issue tracker.
func WriteMarkdown(w io.Writer, result *results.ScanResult) error {
	summary := GenerateSummary(result)
	md := markdown.NewMarkdown(w)

	md.H1("Blight Scan Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Scan ID", "`" + summary.ScanID + "`"},
			{"Example page", summary.ExampleURL},
			{"Site root", summary.SiteRoot},
			{"Started", summary.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Duration", summary.Duration.String()},
			{"Pages scanned", strconv.Itoa(summary.PagesScanned)},
			{"Matched pages", strconv.Itoa(summary.MatchedPages)},
			{"Total matches", strconv.Itoa(summary.TotalMatches)},
		},
	})
	md.PlainText("")

	md.H2("Hits by Pattern")
	md.PlainText("")
	names := make([]string, 0, len(summary.HitsByPattern))
	for name := range summary.HitsByPattern {
		names = append(names, name)
	}
	sort.Strings(names)
	patternRows := make([][]string, 0, len(names))
	for _, name := range names {
		patternRows = append(patternRows, []string{name, strconv.Itoa(summary.HitsByPattern[name])})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Pattern", "Count"},
		Rows:   patternRows,
	})
	md.PlainText("")

	md.H2("Affected Pages")
	md.PlainText("")
	recordRows := make([][]string, 0, len(result.Records))
	for _, rec := range result.Records {
		recordRows = append(recordRows, []string{rec.URL, strconv.Itoa(rec.TotalMatches)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Matches"},
		Rows:   recordRows,
	})

	return md.Build()
}
