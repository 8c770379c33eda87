package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FranksOps/blight/internal/fingerprint"
	"github.com/FranksOps/blight/internal/history"
	"github.com/FranksOps/blight/internal/metrics"
	"github.com/FranksOps/blight/internal/report"
	"github.com/FranksOps/blight/internal/results"
	"github.com/FranksOps/blight/internal/results/jsonsink"
	"github.com/FranksOps/blight/internal/results/postgres"
	"github.com/FranksOps/blight/internal/results/sqlitesink"
	"github.com/FranksOps/blight/internal/scan"
	"github.com/FranksOps/blight/internal/scanner"
	"github.com/FranksOps/blight/pkg/proxy"
	"github.com/FranksOps/blight/pkg/ratelimit"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan a site for pages exhibiting the example page's defect",
		Long: `Scan extracts a defect signature from the example page, synthesizes match
patterns, and crawls the site breadth-first reporting every matching page.

Examples:
  # Scan a site using a known-bad page as the example
  blight scan --example https://site.example/bad-page --root https://site.example

  # Persist records incrementally so partial results survive interruption
  blight scan --example https://site.example/bad-page --root https://site.example \
      --sink ndjson --sink-path results.ndjson

  # The extractor found nothing; supply the defect text yourself
  blight scan --root https://site.example --override '[[{"fid":"1101026"}]]'`,
		RunE: runScanCmd,
	}

	cmd.Flags().String("example", "", "URL of the known-bad example page")
	cmd.Flags().String("root", "", "site root to crawl (required)")
	cmd.Flags().Int("max-pages", 100, "page budget: maximum successfully fetched pages")
	cmd.Flags().String("override", "", "explicit signature text, skips extraction")
	cmd.Flags().Int("concurrency", 4, "concurrent fetch workers")
	cmd.Flags().Duration("timeout", 30*time.Second, "per-page fetch timeout")
	cmd.Flags().Bool("robots", false, "respect robots.txt")
	cmd.Flags().Float64("rps", 0, "max requests per second (0 = unlimited)")
	cmd.Flags().Float64("jitter", 0, "rate limiter jitter factor (0.0-1.0)")
	cmd.Flags().Bool("sitemap", false, "pre-seed the crawl from sitemap.xml")
	cmd.Flags().String("fingerprint", "chrome", "TLS fingerprint profile (chrome|firefox|safari|go|random)")
	cmd.Flags().String("proxy-file", "", "file with one proxy URL per line")
	cmd.Flags().String("sink", "", "incremental record sink (ndjson|sqlite|postgres)")
	cmd.Flags().String("sink-path", "blight-results.ndjson", "path or DSN for the sink")
	cmd.Flags().String("format", "text", "report format (text|json|html|csv|markdown)")
	cmd.Flags().StringP("output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().String("history-db", "", "SQLite file recording scan history")
	cmd.Flags().Int("metrics-port", 0, "expose Prometheus metrics on this port (0 = off)")

	_ = cmd.MarkFlagRequired("root")
	_ = viper.BindPFlags(cmd.Flags())

	return cmd
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := newLogger(verbose)

	exampleURL := viper.GetString("example")
	override := viper.GetString("override")
	if exampleURL == "" && override == "" {
		return errors.New("either --example or --override is required")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *proxy.Pool
	if path := viper.GetString("proxy-file"); path != "" {
		pool = proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(path); err != nil {
			return err
		}
		logger.Info("proxy pool loaded", "proxies", pool.Size())
	}

	fetcher, err := scanner.NewFetcher(scanner.FetchConfig{
		Timeout:     viper.GetDuration("timeout"),
		Fingerprint: fingerprint.Profile(viper.GetString("fingerprint")),
		ProxyPool:   pool,
		Limiter:     ratelimit.NewLimiter(viper.GetFloat64("rps"), viper.GetFloat64("jitter")),
	})
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}

	sink, err := openSink(ctx)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
	}

	if port := viper.GetInt("metrics-port"); port > 0 {
		srv := metrics.Start(port)
		defer func() { _ = srv.Stop(context.Background()) }()
	}

	result, err := scan.New(fetcher, logger).Run(ctx, scan.Options{
		ExampleURL:        exampleURL,
		SiteRoot:          viper.GetString("root"),
		MaxPages:          viper.GetInt("max-pages"),
		SignatureOverride: override,
		Concurrency:       viper.GetInt("concurrency"),
		RespectRobots:     viper.GetBool("robots"),
		RequestsPerSecond: viper.GetFloat64("rps"),
		Jitter:            viper.GetFloat64("jitter"),
		SeedFromSitemap:   viper.GetBool("sitemap"),
		Sink:              sink,
	})
	if err != nil && result == nil {
		if errors.Is(err, scan.ErrNoSignature) {
			return fmt.Errorf("%w (use --override to supply the defect text)", err)
		}
		return err
	}
	if err != nil {
		logger.Warn("scan interrupted, reporting partial results", "err", err)
	}

	if dbPath := viper.GetString("history-db"); dbPath != "" {
		store, err := history.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Save(ctx, result); err != nil {
			logger.Error("failed to record scan history", "err", err)
		}
	}

	return writeReport(result, viper.GetString("format"), viper.GetString("output"))
}

func openSink(ctx context.Context) (results.Sink, error) {
	path := viper.GetString("sink-path")
	switch viper.GetString("sink") {
	case "":
		return nil, nil
	case "ndjson":
		return jsonsink.New(path)
	case "sqlite":
		return sqlitesink.New(path)
	case "postgres":
		return postgres.New(ctx, path)
	default:
		return nil, fmt.Errorf("unknown sink %q", viper.GetString("sink"))
	}
}

func writeReport(result *results.ScanResult, format, output string) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("create report file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "json":
		return report.WriteJSON(w, result)
	case "html":
		return report.WriteHTML(w, result)
	case "csv":
		return report.WriteCSV(w, result)
	case "markdown", "md":
		return report.WriteMarkdown(w, result)
	case "text", "":
		return report.WriteText(w, result)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
