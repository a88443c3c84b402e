package fetch

import (
	"time"

	"github.com/nao1215/headscrape/internal/model"
)

// State is a FetchAttempt state.
type State int

const (
	// StatePending is the initial state.
	StatePending State = iota
	// StateRendering means a render call is in flight.
	StateRendering
	// StateRetrying means the attempt is waiting out a backoff delay.
	StateRetrying
	// StateSucceeded is terminal: fields were extracted.
	StateSucceeded
	// StateExhausted is terminal: the retry budget ran out.
	StateExhausted
	// StatePermanentlyFailed is terminal: the failure cannot be retried.
	StatePermanentlyFailed
	// StateCancelled is terminal: the context ended first.
	StateCancelled
)

var stateNames = [...]string{
	StatePending:           "pending",
	StateRendering:         "rendering",
	StateRetrying:          "retrying",
	StateSucceeded:         "succeeded",
	StateExhausted:         "exhausted",
	StatePermanentlyFailed: "permanently_failed",
	StateCancelled:         "cancelled",
}

// String returns the state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateExhausted, StatePermanentlyFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Transition describes one state change of one attempt.
type Transition struct {
	Target string
	From   State
	To     State

	// RenderCalls is the number of render calls made so far.
	RenderCalls int

	// Layer and Proxy identify the candidate of the current render call.
	// Proxy is redacted.
	Layer string
	Proxy string

	// Kind and Err describe the failure that caused the transition.
	Kind model.ErrorKind
	Err  error

	// Delay is the backoff before the next render call. Retrying only.
	Delay time.Duration

	// Elapsed is the time since the attempt started.
	Elapsed time.Duration
}

// Observer receives every state transition. Observers are called
// synchronously from the goroutine running the attempt and must be safe
// for concurrent use across attempts.
type Observer interface {
	OnTransition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

// OnTransition calls f.
func (f ObserverFunc) OnTransition(t Transition) {
	f(t)
}
