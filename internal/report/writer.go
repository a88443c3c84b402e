package report

import (
	"io"

	"github.com/nao1215/headscrape/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs a single result as soon as its target resolves.
	// Returns the number of bytes written and any error encountered.
	Write(result model.ScrapeResult) (int, error)

	// WriteSummary outputs the closing section for a finished batch.
	// results are in target order.
	WriteSummary(results []model.ScrapeResult) (int, error)
}

// MultiWriter writes to multiple Writers in order.
// Our Writer writes results rather than bytes, so io.MultiWriter does
// not apply.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the result to all configured Writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(result model.ScrapeResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteSummary outputs the summary to all configured Writers.
func (m *MultiWriter) WriteSummary(results []model.ScrapeResult) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteSummary(results)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
