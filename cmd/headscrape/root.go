package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	applog "github.com/nao1215/headscrape/internal/log"
)

// NewRootCmd creates the root command for headscrape.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "headscrape",
		Short: "Scrape adventurer profiles through rotating proxy layers",
		Long: `headscrape renders adventurer profile pages in headless Chromium and
extracts the profile fields: region, family name, community activities,
life skills and created characters.

Each page is fetched through the configured proxy layers in order. Failed
attempts are retried with exponential backoff and move on to the next layer;
when every layer is exhausted the page is fetched directly.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: headscrape.yaml in the current or XDG config directory)")

	cmd.AddCommand(NewScrapeCmd())
	cmd.AddCommand(NewProxiesCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// getBoolFlag reads a flag from the command or the root's persistent set.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// getStringFlag reads a string flag the same way as getBoolFlag.
func getStringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// setupLogger builds the process logger from the global flags and makes
// it the slog default.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	opts := applog.Options{Verbose: getBoolFlag(cmd, "verbose")}
	if getBoolFlag(cmd, "log-json") {
		opts.Format = applog.FormatJSON
	}
	logger := applog.New(cmd.ErrOrStderr(), opts)
	slog.SetDefault(logger)
	return logger
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
