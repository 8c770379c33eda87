// Package report renders scan results for operators. Every writer is a pure
// projection of the persisted result schema and carries no logic of its own.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/blight/internal/results"
)

// Summary contains aggregated metrics about one scan.
type Summary struct {
	ScanID        string
	ExampleURL    string
	SiteRoot      string
	PagesScanned  int
	MatchedPages  int
	TotalMatches  int
	HitsByPattern map[string]int
	StartedAt     time.Time
	CompletedAt   time.Time
	Duration      time.Duration
}

// GenerateSummary folds a scan result into summary metrics.
func GenerateSummary(result *results.ScanResult) Summary {
	meta := result.Metadata
	s := Summary{
		ScanID:        meta.ScanID,
		ExampleURL:    meta.ExampleURL,
		SiteRoot:      meta.SiteRoot,
		PagesScanned:  meta.PagesScanned,
		MatchedPages:  len(result.Records),
		HitsByPattern: make(map[string]int),
		StartedAt:     meta.StartedAt,
		CompletedAt:   meta.CompletedAt,
		Duration:      meta.CompletedAt.Sub(meta.StartedAt),
	}
	for _, rec := range result.Records {
		s.TotalMatches += rec.TotalMatches
		for name, count := range rec.Hits {
			s.HitsByPattern[name] += count
		}
	}
	return s
}

// WriteJSON writes the full result in indented JSON.
func WriteJSON(w io.Writer, result *results.ScanResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// WriteText writes a human-readable summary and record list.
func WriteText(w io.Writer, result *results.ScanResult) error {
	const textTmpl = `Blight Scan Report
------------------
Scan:           {{.Summary.ScanID}}
Example page:   {{.Summary.ExampleURL}}
Site root:      {{.Summary.SiteRoot}}
Time:           {{.Summary.StartedAt.Format "2006-01-02 15:04:05"}} - {{.Summary.CompletedAt.Format "2006-01-02 15:04:05"}} ({{.Summary.Duration}})
Pages scanned:  {{.Summary.PagesScanned}}
Matched pages:  {{.Summary.MatchedPages}}
Total matches:  {{.Summary.TotalMatches}}

Hits by pattern:
{{- range $name, $count := .Summary.HitsByPattern}}
  {{$name}}: {{$count}}
{{- else}}
  None
{{- end}}

Affected pages:
{{- range .Records}}
  {{.URL}} ({{.TotalMatches}} matches)
{{- else}}
  None
{{- end}}
`
	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}
	data := struct {
		Summary Summary
		Records []*results.MatchRecord
	}{GenerateSummary(result), result.Records}
	if err := t.Execute(w, data); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}
	return nil
}

// WriteHTML writes a basic standalone HTML report.
func WriteHTML(w io.Writer, result *results.ScanResult) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Blight Scan Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
  .excerpt { font-family: monospace; font-size: 12px; color: #666; }
</style>
</head>
<body>
  <h1>Blight Scan Report</h1>
  <p><strong>Example:</strong> {{.Summary.ExampleURL}}<br>
     <strong>Site:</strong> {{.Summary.SiteRoot}}<br>
     <strong>Time:</strong> {{.Summary.StartedAt.Format "2006-01-02 15:04:05"}} to {{.Summary.CompletedAt.Format "2006-01-02 15:04:05"}} ({{.Summary.Duration}})</p>

  <div class="stat-card">
    <div>Pages Scanned</div>
    <div class="stat-val">{{.Summary.PagesScanned}}</div>
  </div>
  <div class="stat-card">
    <div>Matched Pages</div>
    <div class="stat-val" style="color: {{if gt .Summary.MatchedPages 0}}red{{else}}green{{end}};">{{.Summary.MatchedPages}}</div>
  </div>
  <div class="stat-card">
    <div>Total Matches</div>
    <div class="stat-val">{{.Summary.TotalMatches}}</div>
  </div>

  <h3>Hits By Pattern</h3>
  <table>
    <tr><th>Pattern</th><th>Count</th></tr>
    {{- range $name, $count := .Summary.HitsByPattern}}
    <tr><td>{{$name}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Affected Pages</h3>
  <table>
    <tr><th>URL</th><th>Matches</th><th>Excerpt</th></tr>
    {{- range .Records}}
    <tr><td>{{.URL}}</td><td>{{.TotalMatches}}</td><td class="excerpt">{{.Excerpt}}</td></tr>
    {{- else}}
    <tr><td colspan="3">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}
	data := struct {
		Summary Summary
		Records []*results.MatchRecord
	}{GenerateSummary(result), result.Records}
	if err := t.Execute(w, data); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}
