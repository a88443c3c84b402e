package model

import (
	"sort"
	"time"
)

// ResultStatus tags the ScrapeResult variant.
type ResultStatus string

const (
	// StatusSuccess marks a result carrying extracted fields.
	StatusSuccess ResultStatus = "success"

	// StatusFailure marks a result carrying a failure reason.
	StatusFailure ResultStatus = "failure"
)

// ScrapeResult is the outcome of one target.
// It is produced exactly once per target and never modified afterwards.
type ScrapeResult struct {
	// Status selects which variant fields are meaningful.
	Status ResultStatus `json:"status"`

	// Target is the URL that was scraped.
	Target string `json:"target"`

	// Fields holds the extracted profile fields. Success only.
	Fields map[string]string `json:"fields,omitempty"`

	// Reason is the last error kind. Failure only.
	Reason ErrorKind `json:"reason,omitempty"`

	// Message is the last error message. Failure only.
	Message string `json:"message,omitempty"`

	// Attempts is the number of render calls made for this target.
	Attempts int `json:"attempts"`

	// Layer is the proxy layer used by the last render call.
	Layer string `json:"proxy_layer,omitempty"`

	// Proxy is the redacted proxy URI used by the last render call.
	// Empty for direct connections.
	Proxy string `json:"proxy,omitempty"`

	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the attempt reached a terminal state.
	FinishedAt time.Time `json:"finished_at"`
}

// NewSuccess builds a success result.
func NewSuccess(target string, fields map[string]string, attempts int) ScrapeResult {
	return ScrapeResult{
		Status:   StatusSuccess,
		Target:   target,
		Fields:   fields,
		Attempts: attempts,
	}
}

// NewFailure builds a failure result.
func NewFailure(target string, reason ErrorKind, attempts int, err error) ScrapeResult {
	r := ScrapeResult{
		Status:   StatusFailure,
		Target:   target,
		Reason:   reason,
		Attempts: attempts,
	}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// NewCancelled builds the failure result for a target that never resolved
// because the operation was cancelled.
func NewCancelled(target string, attempts int) ScrapeResult {
	return ScrapeResult{
		Status:   StatusFailure,
		Target:   target,
		Reason:   KindCancelled,
		Message:  "operation cancelled",
		Attempts: attempts,
	}
}

// OK reports whether the result is a success.
func (r ScrapeResult) OK() bool {
	return r.Status == StatusSuccess
}

// Duration returns how long the attempt took.
func (r ScrapeResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// FieldKeys returns the field names in sorted order.
func (r ScrapeResult) FieldKeys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Summary counts successes and failures in a batch.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
}

// Summarize counts the outcomes in results.
func Summarize(results []ScrapeResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.OK():
			s.Succeeded++
		case r.Reason == KindCancelled:
			s.Cancelled++
			s.Failed++
		default:
			s.Failed++
		}
	}
	return s
}
