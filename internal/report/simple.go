package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/headscrape/internal/model"
)

// Metadata keys appended to every printed profile.
const (
	KeyProxyLayer = "_proxy_layer"
	KeyProxy      = "_proxy"
)

// SimpleWriter outputs human-readable text.
// Each success is printed as a PROFILE block of sorted "key: value" lines.
// Each failure is a single ERROR line.
type SimpleWriter struct {
	baseWriter

	// summary enables the closing tally written by WriteSummary.
	summary bool

	// verbose adds the attempt count and duration to profiles.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithSummary enables the closing tally line.
func WithSummary(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.summary = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		summary:    true,
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write prints one result.
func (w *SimpleWriter) Write(result model.ScrapeResult) (int, error) {
	var sb strings.Builder

	if result.OK() {
		w.writeProfile(&sb, result)
	} else {
		w.writeError(&sb, result)
	}

	return io.WriteString(w.output, sb.String())
}

// WriteSummary prints the batch tally.
func (w *SimpleWriter) WriteSummary(results []model.ScrapeResult) (int, error) {
	if !w.summary {
		return 0, nil
	}

	s := model.Summarize(results)
	line := fmt.Sprintf("\n%d target(s): %d succeeded, %d failed", s.Total, s.Succeeded, s.Failed)
	if s.Cancelled > 0 {
		line += fmt.Sprintf(" (%d cancelled)", s.Cancelled)
	}
	return io.WriteString(w.output, line+"\n")
}

func (w *SimpleWriter) writeProfile(sb *strings.Builder, result model.ScrapeResult) {
	sb.WriteString("\n==== PROFILE ====\n")
	for _, key := range result.FieldKeys() {
		fmt.Fprintf(sb, "%s: %s\n", key, result.Fields[key])
	}
	fmt.Fprintf(sb, "%s: %s\n", KeyProxyLayer, result.Layer)
	fmt.Fprintf(sb, "%s: %s\n", KeyProxy, proxyLabel(result))

	if w.verbose {
		fmt.Fprintf(sb, "_attempts: %d\n", result.Attempts)
		if d := result.Duration(); d > 0 {
			fmt.Fprintf(sb, "_duration: %s\n", d.Round(time.Millisecond))
		}
	}
}

func (w *SimpleWriter) writeError(sb *strings.Builder, result model.ScrapeResult) {
	fmt.Fprintf(sb, "ERROR: %s: %s after %d attempts", result.Target, result.Reason, result.Attempts)
	if result.Message != "" {
		fmt.Fprintf(sb, ": %s", result.Message)
	}
	sb.WriteString("\n")
}

// proxyLabel is the printable proxy of a result. Direct connections have
// no proxy URI.
func proxyLabel(result model.ScrapeResult) string {
	if result.Proxy == "" {
		return "direct"
	}
	return result.Proxy
}
