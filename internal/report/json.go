package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/headscrape/internal/model"
)

// JSONWriter outputs results as JSON, one object per result.
// Compact output is newline-delimited so it streams into jq and log
// pipelines.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string

	// summary enables the trailing summary object.
	summary bool
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with default indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithJSONSummary appends a summary object after the last result.
func WithJSONSummary(show bool) JSONWriterOption {
	return func(w *JSONWriter) {
		w.summary = show
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs one result object.
func (w *JSONWriter) Write(result model.ScrapeResult) (int, error) {
	return w.writeJSON(result)
}

// WriteSummary outputs {"summary": {...}} when enabled.
func (w *JSONWriter) WriteSummary(results []model.ScrapeResult) (int, error) {
	if !w.summary {
		return 0, nil
	}
	return w.writeJSON(NewJSONSummary(results))
}

// writeJSON marshals the given value to JSON and writes it to the output.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var data []byte
	var err error

	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return 0, err
	}

	data = append(data, '\n')

	return w.output.Write(data)
}

// JSONSummary wraps the batch tally.
type JSONSummary struct {
	Summary SummaryCounts `json:"summary"`
}

// SummaryCounts is the JSON form of model.Summary.
type SummaryCounts struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// NewJSONSummary tallies results.
func NewJSONSummary(results []model.ScrapeResult) *JSONSummary {
	s := model.Summarize(results)
	return &JSONSummary{
		Summary: SummaryCounts{
			Total:     s.Total,
			Succeeded: s.Succeeded,
			Failed:    s.Failed,
			Cancelled: s.Cancelled,
		},
	}
}
