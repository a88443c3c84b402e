package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/headscrape/internal/config"
	"github.com/nao1215/headscrape/internal/report"
)

// writeConfig writes content to a headscrape.yaml in a fresh directory
// and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), config.DefaultConfigFile)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestNewScrapeCmd(t *testing.T) {
	t.Parallel()

	cmd := NewScrapeCmd()

	if !strings.HasPrefix(cmd.Use, "scrape") {
		t.Errorf("unexpected use %q", cmd.Use)
	}

	tests := []struct {
		name      string
		shorthand string
		defValue  string
	}{
		{"concurrency", "n", "3"},
		{"retries", "r", "8"},
		{"timeout", "t", "25s"},
		{"global-timeout", "", "0s"},
		{"rate-limit", "", "0"},
		{"headful", "", "false"},
		{"json", "j", "false"},
		{"markdown", "m", "false"},
		{"output", "o", ""},
		{"save", "", "false"},
		{"metrics-addr", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := cmd.Flags().Lookup(tt.name)
			if f == nil {
				t.Fatalf("expected %s flag", tt.name)
			}
			if f.Shorthand != tt.shorthand {
				t.Errorf("expected shorthand %q, got %q", tt.shorthand, f.Shorthand)
			}
			if f.DefValue != tt.defValue {
				t.Errorf("expected default %q, got %q", tt.defValue, f.DefValue)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, `
browser:
  concurrency: 5
  timeout_ms: 10000
scrape:
  retries: 2
targets:
  - https://example.com/from-file
`)

	t.Run("file values without overrides", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		cmd, _, err := root.Find([]string{"scrape"})
		if err != nil {
			t.Fatal(err)
		}
		if err := cmd.ParseFlags([]string{"--config", cfgPath}); err != nil {
			t.Fatal(err)
		}

		cfg, err := buildConfig(cmd, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Concurrency != 5 || cfg.Retries != 2 || cfg.Timeout != 10*time.Second {
			t.Errorf("file values not applied: %+v", cfg)
		}
		if len(cfg.Targets) != 1 || cfg.Targets[0] != "https://example.com/from-file" {
			t.Errorf("unexpected targets: %v", cfg.Targets)
		}
		if !cfg.Headless {
			t.Error("expected headless by default")
		}
		if cfg.ConfigFilePath != cfgPath {
			t.Errorf("expected config path %s, got %s", cfgPath, cfg.ConfigFilePath)
		}
	})

	t.Run("flags and arguments override the file", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		cmd, _, err := root.Find([]string{"scrape"})
		if err != nil {
			t.Fatal(err)
		}
		err = cmd.ParseFlags([]string{
			"--config", cfgPath,
			"-n", "1",
			"--retries", "0",
			"--headful",
			"--global-timeout", "1m",
			"--rate-limit", "0.5",
			"--json",
			"--save",
			"--db-dir", "/tmp/archive",
			"-v",
		})
		if err != nil {
			t.Fatal(err)
		}

		cfg, err := buildConfig(cmd, []string{"https://example.com/a", "https://example.com/b"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Concurrency != 1 || cfg.Retries != 0 {
			t.Errorf("overrides not applied: concurrency=%d retries=%d", cfg.Concurrency, cfg.Retries)
		}
		if cfg.Timeout != 10*time.Second {
			t.Errorf("unset flag must keep file value, got %v", cfg.Timeout)
		}
		if cfg.Headless {
			t.Error("expected --headful to disable headless mode")
		}
		if cfg.GlobalTimeout != time.Minute || cfg.RateLimit != 0.5 {
			t.Errorf("unexpected limits: %v %v", cfg.GlobalTimeout, cfg.RateLimit)
		}
		if !cfg.JSONReport || !cfg.SaveToDB || cfg.DBDir != "/tmp/archive" || !cfg.Verbose {
			t.Errorf("unexpected output settings: %+v", cfg)
		}
		if len(cfg.Targets) != 2 || cfg.Targets[0] != "https://example.com/a" {
			t.Errorf("arguments must replace file targets, got %v", cfg.Targets)
		}
	})

	t.Run("missing explicit config file", func(t *testing.T) {
		t.Parallel()

		root := NewRootCmd()
		cmd, _, err := root.Find([]string{"scrape"})
		if err != nil {
			t.Fatal(err)
		}
		missing := filepath.Join(t.TempDir(), "nope.yaml")
		if err := cmd.ParseFlags([]string{"--config", missing}); err != nil {
			t.Fatal(err)
		}

		if _, err := buildConfig(cmd, nil); !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

func TestRunScrapeCmdValidation(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, "targets: []\n")

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{
			name:    "no targets",
			args:    []string{"scrape", "--config", cfgPath},
			wantErr: config.ErrNoTarget,
		},
		{
			name:    "json and markdown together",
			args:    []string{"scrape", "--config", cfgPath, "-j", "-m", "https://example.com/p"},
			wantErr: config.ErrConflictingReportFormats,
		},
		{
			name:    "zero concurrency",
			args:    []string{"scrape", "--config", cfgPath, "-n", "0", "https://example.com/p"},
			wantErr: config.ErrInvalidConcurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			cmd := NewRootCmd()
			cmd.SetOut(&buf)
			cmd.SetErr(&buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if !strings.Contains(err.Error(), "configuration error") {
				t.Errorf("expected configuration error prefix, got %v", err)
			}
		})
	}
}

func TestOpenOutput(t *testing.T) {
	t.Parallel()

	t.Run("stdout when no path", func(t *testing.T) {
		t.Parallel()

		var stdout bytes.Buffer
		w, closeFn, err := openOutput("", &stdout)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer closeFn()
		if w != &stdout {
			t.Error("expected stdout writer")
		}
	})

	t.Run("creates file and directories", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "reports", "out.md")
		w, closeFn, err := openOutput(path, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := w.Write([]byte("report")); err != nil {
			t.Fatal(err)
		}
		closeFn()

		data, err := os.ReadFile(path) //nolint:gosec // test path
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != "report" {
			t.Errorf("unexpected content %q", data)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected mode 0600, got %o", info.Mode().Perm())
		}
	})
}

func TestNewReportWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*config.Config)
		check func(report.Writer) bool
	}{
		{
			name:  "simple by default",
			setup: func(*config.Config) {},
			check: func(w report.Writer) bool { _, ok := w.(*report.SimpleWriter); return ok },
		},
		{
			name:  "json",
			setup: func(c *config.Config) { c.JSONReport = true },
			check: func(w report.Writer) bool { _, ok := w.(*report.JSONWriter); return ok },
		},
		{
			name:  "markdown",
			setup: func(c *config.Config) { c.MarkdownReport = true },
			check: func(w report.Writer) bool { _, ok := w.(*report.MarkdownWriter); return ok },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.NewConfig()
			tt.setup(cfg)
			if w := newReportWriter(cfg, &bytes.Buffer{}); !tt.check(w) {
				t.Errorf("unexpected writer type %T", w)
			}
		})
	}
}
