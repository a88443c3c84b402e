package model

import "time"

// AttemptRecord is the mutable state of one fetch attempt.
// It is created when the attempt begins, mutated only by that attempt,
// and discarded once the attempt terminates.
type AttemptRecord struct {
	// Target is the URL being fetched.
	Target string

	// AttemptNumber counts retries made so far. The first render call runs
	// with AttemptNumber 0.
	AttemptNumber int

	// RenderCalls counts render invocations.
	RenderCalls int

	// CurrentLayerIndex is the proxy layer the next render call selects from.
	CurrentLayerIndex int

	// LayerFailures counts consecutive retryable failures within the
	// current layer.
	LayerFailures int

	// LastError is the kind of the most recent failure.
	LastError ErrorKind

	// LastErr is the most recent failure itself.
	LastErr error

	// LastLayer and LastProxy describe the candidate used by the most
	// recent render call. LastProxy is redacted.
	LastLayer string
	LastProxy string

	// StartedAt and FinishedAt bound the attempt.
	StartedAt  time.Time
	FinishedAt time.Time
}

// NewAttemptRecord starts a record for target.
func NewAttemptRecord(target string, now time.Time) *AttemptRecord {
	return &AttemptRecord{
		Target:    target,
		StartedAt: now,
	}
}

// Result converts the terminal record into a ScrapeResult.
// fields is nil for failures.
func (a *AttemptRecord) Result(fields map[string]string) ScrapeResult {
	var r ScrapeResult
	if fields != nil {
		r = NewSuccess(a.Target, fields, a.RenderCalls)
	} else {
		r = NewFailure(a.Target, a.LastError, a.RenderCalls, a.LastErr)
	}
	r.Layer = a.LastLayer
	r.Proxy = a.LastProxy
	r.StartedAt = a.StartedAt
	r.FinishedAt = a.FinishedAt
	return r
}
