package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/headscrape/internal/config"
	"github.com/nao1215/headscrape/internal/database"
	"github.com/nao1215/headscrape/internal/model"
	"github.com/nao1215/headscrape/internal/profile"
)

const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [profile-url]",
		Short: "Show archived scrape results",
		Long: `History reads the archive written by 'headscrape scrape --save'.

Without arguments it lists every archived target with its latest result.
With a target it lists that target's results, newest first, and marks the
runs where the profile changed since the previous successful scrape.

Examples:
  # List archived targets
  headscrape history

  # Show the last five results of one profile
  headscrape history --limit 5 "https://www.naeu.playblackdesert.com/en-US/Adventure/Profile?profileTarget=..."`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().String("db-dir", config.XDGDataDir(), "Directory of the results archive")
	cmd.Flags().IntP("limit", "l", defaultHistoryLimit, "Maximum number of results to show (0 for all)")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")

	return cmd
}

// historyRow is one archived result as printed.
type historyRow struct {
	Target   string            `json:"target"`
	RunID    string            `json:"run_id"`
	Time     time.Time         `json:"time"`
	Status   string            `json:"status"`
	Family   string            `json:"family_name,omitempty"`
	Reason   string            `json:"reason,omitempty"`
	Attempts int               `json:"attempts"`
	Layer    string            `json:"proxy_layer,omitempty"`
	Changed  bool              `json:"changed"`
	Fields   map[string]string `json:"fields,omitempty"`
}

func newHistoryRow(e database.Entry) historyRow {
	return historyRow{
		Target:   e.Target,
		RunID:    e.RunID,
		Time:     e.FinishedAt,
		Status:   string(e.Status),
		Family:   e.Fields[profile.FieldFamilyName],
		Reason:   e.Reason,
		Attempts: e.Attempts,
		Layer:    e.Layer,
		Changed:  e.Changed(),
		Fields:   e.Fields,
	}
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	archive, err := database.Open(dbDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		if errors.Is(err, database.ErrArchiveMissing) {
			return fmt.Errorf("%w (run 'headscrape scrape --save' first)", err)
		}
		return err
	}
	defer archive.Close()

	ctx := commandContext(cmd)
	var rows []historyRow

	if len(args) == 0 {
		targets, err := archive.Targets(ctx)
		if err != nil {
			return err
		}
		for _, target := range targets {
			latest, err := archive.Latest(ctx, target)
			if err != nil {
				return err
			}
			rows = append(rows, newHistoryRow(*latest))
		}
		if limit > 0 && len(rows) > limit {
			rows = rows[:limit]
		}
	} else {
		entries, err := archive.History(ctx, args[0], limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("%w: %s", database.ErrNotFound, args[0])
		}
		for _, e := range entries {
			rows = append(rows, newHistoryRow(e))
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "The archive is empty.")
		return nil
	}
	return writeHistoryTable(out, rows, len(args) == 0)
}

func writeHistoryTable(w io.Writer, rows []historyRow, withTarget bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if withTarget {
		fmt.Fprintln(tw, "TARGET\tTIME\tSTATUS\tFAMILY\tATTEMPTS\tLAYER")
	} else {
		fmt.Fprintln(tw, "TIME\tSTATUS\tFAMILY\tATTEMPTS\tLAYER\tCHANGED")
	}

	for _, r := range rows {
		status := r.Status
		if r.Status == string(model.StatusFailure) {
			status = r.Reason
		}
		when := "-"
		if !r.Time.IsZero() {
			when = r.Time.Local().Format("2006-01-02 15:04:05")
		}
		family := r.Family
		if family == "" {
			family = "-"
		}

		if withTarget {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.Target, when, status, family, r.Attempts, r.Layer)
			continue
		}
		changed := ""
		if r.Changed {
			changed = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", when, status, family, r.Attempts, r.Layer, changed)
	}
	return tw.Flush()
}
