// Package retry decides whether a failed fetch is retried and how long to
// wait before the next render call.
//
// A Policy is pure apart from its optional jitter source: ShouldRetry
// depends only on the attempt number and the error kind, and DelayFor
// grows exponentially from BaseDelay up to MaxDelay.
package retry
