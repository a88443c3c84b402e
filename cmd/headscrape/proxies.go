package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/headscrape/internal/config"
	"github.com/nao1215/headscrape/internal/proxy"
)

const defaultProbeConcurrency = 8

// NewProxiesCmd creates the proxies command group.
func NewProxiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxies",
		Short: "Inspect the configured proxy layers",
	}
	cmd.AddCommand(newProxiesCheckCmd())
	return cmd
}

func newProxiesCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe every configured proxy",
		Long: `Check connects to every proxy of every layer and reports whether it
can tunnel to the probe target.

SOCKS5 proxies are checked with a SOCKS handshake and HTTP proxies with a
CONNECT request. Passwords are never printed.

Embedded Tor layers are started on demand by 'headscrape scrape' and are
not probed here.`,
		Args: cobra.NoArgs,
		RunE: runProxiesCheckCmd,
	}

	cmd.Flags().DurationP("timeout", "t", 5*time.Second, "Timeout per proxy")
	cmd.Flags().String("target", proxy.DefaultProbeTarget, "host:port to tunnel to")
	cmd.Flags().IntP("concurrency", "n", defaultProbeConcurrency, "Proxies probed at once")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")

	return cmd
}

// probeRow is one line of the check output.
type probeRow struct {
	Layer   string `json:"layer"`
	Proxy   string `json:"proxy"`
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

func runProxiesCheckCmd(cmd *cobra.Command, _ []string) error {
	logger := setupLogger(cmd)

	cfg, err := config.Load(getStringFlag(cmd, "config"))
	if err != nil {
		return err
	}

	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}
	target, err := cmd.Flags().GetString("target")
	if err != nil {
		return err
	}
	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	for _, l := range cfg.ProxyLayers {
		if l.EmbeddedTor {
			logger.Info("skipping embedded Tor layer", "layer", l.Name)
		}
	}

	layers, err := proxy.NewLayerSet(cfg.Layers())
	if err != nil {
		return fmt.Errorf("invalid proxy layers: %w", err)
	}
	candidates := layers.All()
	if len(candidates) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No proxies configured; every target is fetched directly.")
		return nil
	}

	prober := proxy.NewProber(proxy.WithProbeTarget(target), proxy.WithProbeTimeout(timeout))
	results := prober.CheckAll(commandContext(cmd), candidates, concurrency)

	rows := make([]probeRow, len(results))
	var failed int
	for i, r := range results {
		rows[i] = probeRow{
			Layer:  r.Candidate.Layer,
			Proxy:  r.Candidate.String(),
			Status: r.Status.String(),
		}
		if r.Status == proxy.StatusOK {
			rows[i].Latency = r.Latency.Round(time.Millisecond).String()
		} else {
			failed++
		}
		if r.Err != nil {
			rows[i].Error = r.Err.Error()
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(rows); err != nil {
			return err
		}
	} else if err := writeProbeTable(cmd.OutOrStdout(), rows); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d proxies unusable", failed, len(rows))
	}
	return nil
}

func writeProbeTable(w io.Writer, rows []probeRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LAYER\tPROXY\tSTATUS\tLATENCY")
	for _, r := range rows {
		latency := r.Latency
		if latency == "" {
			latency = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Layer, r.Proxy, r.Status, latency)
	}
	return tw.Flush()
}
