package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/FranksOps/blight/internal/results"
)

// csvHeader defines the CSV column order.
var csvHeader = []string{"url", "total_matches", "hits_json", "excerpt"}

// WriteCSV writes one row per match record.
func WriteCSV(w io.Writer, result *results.ScanResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, rec := range result.Records {
		hits, err := json.Marshal(rec.Hits)
		if err != nil {
			return fmt.Errorf("marshal hits for %s: %w", rec.URL, err)
		}
		row := []string{
			rec.URL,
			strconv.Itoa(rec.TotalMatches),
			string(hits),
			rec.Excerpt,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
