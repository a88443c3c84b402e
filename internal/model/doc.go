// Package model defines the data structures shared by the fetch core,
// the render and extract backends, and the report writers.
//
// This package contains the following main types:
//   - ErrorKind: the failure taxonomy (retryable, permanent, cancellation)
//   - KindError: an error tagged with its ErrorKind
//   - AttemptRecord: the mutable per-target state of one fetch attempt
//   - ScrapeResult: the immutable per-target outcome (success or failure)
//
// The types carry no behaviour beyond classification helpers so that every
// other package can depend on them without import cycles.
package model
