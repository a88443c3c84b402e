package model

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies why a fetch attempt failed.
// The classification decides whether re-attempting the same target could
// plausibly succeed.
type ErrorKind int

const (
	// KindNone means no error has been recorded.
	KindNone ErrorKind = iota

	// KindTimeout is a navigation or render timeout.
	KindTimeout

	// KindConnectionRefused means the target or the proxy refused the connection.
	KindConnectionRefused

	// KindProxyAuth means the proxy rejected the supplied credentials.
	KindProxyAuth

	// KindProxyUnreachable means the proxy could not be reached or could not
	// tunnel to the target.
	KindProxyUnreachable

	// KindBadStatus is a non-2xx navigation response.
	KindBadStatus

	// KindDOMNotReady means the page loaded but the DOM did not settle in time.
	KindDOMNotReady

	// KindNetwork is any other transport failure (DNS, reset, aborted).
	KindNetwork

	// KindInvalidTarget is a malformed or rejected target URL.
	KindInvalidTarget

	// KindSchemaMismatch means the page rendered but the expected fields were
	// absent. This signals a site layout change, not a network issue.
	KindSchemaMismatch

	// KindConfig is a configuration error surfaced while fetching.
	KindConfig

	// KindCancelled means the overall operation was cancelled before the
	// target resolved.
	KindCancelled
)

var kindNames = map[ErrorKind]string{
	KindNone:              "none",
	KindTimeout:           "timeout",
	KindConnectionRefused: "connection_refused",
	KindProxyAuth:         "proxy_auth",
	KindProxyUnreachable:  "proxy_unreachable",
	KindBadStatus:         "bad_status",
	KindDOMNotReady:       "dom_not_ready",
	KindNetwork:           "network",
	KindInvalidTarget:     "invalid_target",
	KindSchemaMismatch:    "schema_mismatch",
	KindConfig:            "config",
	KindCancelled:         "cancelled",
}

// String returns the snake_case name of the kind.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ErrorKind) UnmarshalText(text []byte) error {
	parsed, err := ParseErrorKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseErrorKind converts a kind name back into an ErrorKind.
func ParseErrorKind(name string) (ErrorKind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindNone, fmt.Errorf("unknown error kind %q", name)
}

// Retryable reports whether a failure of this kind is transient.
// Permanent kinds and cancellation are never retryable.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindTimeout, KindConnectionRefused, KindProxyAuth, KindProxyUnreachable,
		KindBadStatus, KindDOMNotReady, KindNetwork:
		return true
	default:
		return false
	}
}

// Permanent reports whether a failure of this kind must not be retried
// regardless of the remaining retry budget.
func (k ErrorKind) Permanent() bool {
	switch k {
	case KindInvalidTarget, KindSchemaMismatch, KindConfig:
		return true
	default:
		return false
	}
}

// KindError is an error tagged with its ErrorKind.
type KindError struct {
	// Kind is the failure classification.
	Kind ErrorKind

	// Err is the underlying cause. It may be nil.
	Err error
}

// NewKindError wraps err with the given kind.
func NewKindError(kind ErrorKind, err error) *KindError {
	return &KindError{Kind: kind, Err: err}
}

// Errorf builds a KindError from a format string.
func Errorf(kind ErrorKind, format string, args ...any) *KindError {
	return &KindError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface.
func (e *KindError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *KindError) Unwrap() error {
	return e.Err
}

// KindOf extracts the ErrorKind from err.
// Errors without a KindError in their chain are classified as cancellation
// when they stem from the context, and as KindNetwork otherwise.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindNetwork
}
