package report

import (
	"io"
	"strconv"

	"github.com/nao1215/headscrape/internal/model"
	"github.com/nao1215/headscrape/internal/profile"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter renders a whole batch as one Markdown document.
// Write is a no-op; everything is rendered by WriteSummary so the
// document can open with the totals.
type MarkdownWriter struct {
	baseWriter

	// title is the H1 heading of the document.
	title string
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithTitle replaces the default document heading.
func WithTitle(title string) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.title = title
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		title:      "Headscrape Report",
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write does nothing. See WriteSummary.
func (w *MarkdownWriter) Write(model.ScrapeResult) (int, error) {
	return 0, nil
}

// WriteSummary renders the document for results.
func (w *MarkdownWriter) WriteSummary(results []model.ScrapeResult) (int, error) {
	md := markdown.NewMarkdown(w.output)
	summary := model.Summarize(results)

	w.writeHeader(md, summary)
	w.writeOutcomeChart(md, results)
	w.writeAlert(md, summary)
	w.writeResults(md, results)
	w.writeProfiles(md, results)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s model.Summary) {
	md.H1(w.title)
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"Targets", strconv.Itoa(s.Total)},
			{"Succeeded", strconv.Itoa(s.Succeeded)},
			{"Failed", strconv.Itoa(s.Failed)},
			{"Cancelled", strconv.Itoa(s.Cancelled)},
		},
	})
	md.PlainText("")
}

// writeOutcomeChart writes a mermaid pie chart of successes and failure
// reasons.
func (w *MarkdownWriter) writeOutcomeChart(md *markdown.Markdown, results []model.ScrapeResult) {
	if len(results) == 0 {
		return
	}

	counts := make(map[string]uint64)
	var labels []string
	for _, r := range results {
		label := string(model.StatusSuccess)
		if !r.OK() {
			label = r.Reason.String()
		}
		if counts[label] == 0 {
			labels = append(labels, label)
		}
		counts[label]++
	}

	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Outcomes"),
		piechart.WithShowData(true),
	)
	for _, label := range labels {
		chart.LabelAndIntValue(label, counts[label])
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s model.Summary) {
	switch {
	case s.Total == 0:
		md.Note("No targets were scraped.")
	case s.Succeeded == 0:
		md.Cautionf("All %d target(s) failed.", s.Total)
	case s.Failed > 0:
		md.Warningf("%d of %d target(s) failed.", s.Failed, s.Total)
	default:
		md.Tip("Every target was scraped successfully.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeResults(md *markdown.Markdown, results []model.ScrapeResult) {
	md.H2("Results")
	md.PlainText("")

	if len(results) == 0 {
		md.PlainText("No results.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(results))
	for i, r := range results {
		status := "✅ success"
		detail := dash(r.Fields[profile.FieldFamilyName])
		if !r.OK() {
			status = "❌ " + r.Reason.String()
			detail = truncateString(dash(r.Message), 60)
		}
		rows[i] = []string{
			"`" + r.Target + "`",
			status,
			detail,
			strconv.Itoa(r.Attempts),
			dash(r.Layer),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Target", "Status", "Family / Error", "Attempts", "Proxy Layer"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeProfiles writes the extracted fields of each success.
func (w *MarkdownWriter) writeProfiles(md *markdown.Markdown, results []model.ScrapeResult) {
	var written bool
	for _, r := range results {
		if !r.OK() {
			continue
		}
		if !written {
			md.H2("Profiles")
			md.PlainText("")
			written = true
		}

		md.H3(dash(r.Fields[profile.FieldFamilyName]))
		md.PlainText("")

		keys := r.FieldKeys()
		rows := make([][]string, 0, len(keys)+1)
		for _, k := range keys {
			rows = append(rows, []string{k, r.Fields[k]})
		}
		rows = append(rows, []string{KeyProxy, proxyLabel(r)})

		md.Table(markdown.TableSet{
			Header: []string{"Field", "Value"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by headscrape*")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
