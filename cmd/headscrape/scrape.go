package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/headscrape/internal/config"
	"github.com/nao1215/headscrape/internal/model"
	"github.com/nao1215/headscrape/internal/report"
	"github.com/nao1215/headscrape/internal/scrape"
)

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [profile-url...]",
		Short: "Scrape adventurer profiles",
		Long: `Scrape renders every target in headless Chromium and prints the
extracted profile fields.

Targets given as arguments replace the targets of the configuration file.
Flags override the corresponding configuration values.

Examples:
  # Scrape the targets listed in headscrape.yaml
  headscrape scrape

  # Scrape one profile with a visible browser window
  headscrape scrape --headful "https://www.naeu.playblackdesert.com/en-US/Adventure/Profile?profileTarget=..."

  # JSON lines for jq, archived for 'headscrape history'
  headscrape scrape --json --save

  # Markdown report written to a file, metrics served during the run
  headscrape scrape -m -o report.md --metrics-addr :9090`,
		Args: cobra.ArbitraryArgs,
		RunE: runScrapeCmd,
	}

	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of pages rendered at once")
	cmd.Flags().IntP("retries", "r", config.DefaultRetries,
		"Retries after the first render call")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Limit for a single page render")
	cmd.Flags().Duration("global-timeout", 0,
		"Limit for the whole run (0 disables)")
	cmd.Flags().Float64("rate-limit", 0,
		"Render calls per second across all targets (0 disables)")
	cmd.Flags().Bool("headful", false,
		"Show the browser window")
	cmd.Flags().Bool("no-sandbox", false,
		"Disable the Chromium sandbox (needed as root in containers)")
	cmd.Flags().String("browser-bin", "",
		"Chromium binary (default: find or download one)")

	cmd.Flags().BoolP("json", "j", false,
		"Output one JSON object per result (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output a Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write the report to a file (creates directories if needed)")

	cmd.Flags().Bool("save", false,
		"Archive the results for 'headscrape history'")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the results archive")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address during the run")

	return cmd
}

func runScrapeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)
	if cfg.ConfigFilePath != "" {
		logger.Debug("configuration loaded", "path", cfg.ConfigFilePath)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, closeOut, err := openOutput(cfg.ReportFile, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeOut()

	started := time.Now()
	results, err := scrape.Run(ctx, cfg,
		scrape.WithLogger(logger),
		scrape.WithReportWriter(newReportWriter(cfg, out)),
	)
	if err != nil {
		return err
	}

	summary := model.Summarize(results)
	logger.Info("scrape completed",
		"targets", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d target(s) failed", summary.Failed, summary.Total)
	}
	return nil
}

// buildConfig loads the configuration file and applies command-line
// overrides. Only flags the user actually set override file values.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.Load(getStringFlag(cmd, "config"))
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("retries") {
		if cfg.Retries, err = flags.GetInt("retries"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("global-timeout") {
		if cfg.GlobalTimeout, err = flags.GetDuration("global-timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("rate-limit") {
		if cfg.RateLimit, err = flags.GetFloat64("rate-limit"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("headful") {
		headful, err := flags.GetBool("headful")
		if err != nil {
			return nil, err
		}
		cfg.Headless = !headful
	}
	if flags.Changed("no-sandbox") {
		if cfg.NoSandbox, err = flags.GetBool("no-sandbox"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("browser-bin") {
		if cfg.BrowserBin, err = flags.GetString("browser-bin"); err != nil {
			return nil, err
		}
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.SaveToDB, err = flags.GetBool("save"); err != nil {
		return nil, err
	}
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}

	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	if len(args) > 0 {
		cfg.Targets = args
	}

	return cfg, nil
}

// openOutput returns the report destination: path when set, stdout
// otherwise.
func openOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Profiles are personal data; keep the report owner-readable only.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// newReportWriter selects the report format.
func newReportWriter(cfg *config.Config, out io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(out)
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(out)
	default:
		return report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
}
