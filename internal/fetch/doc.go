// Package fetch runs one target through render and extract with retries.
//
// A Fetcher owns no per-target state. Every call to Fetch creates an
// AttemptRecord and walks it through the attempt state machine:
//
//	Pending -> Rendering -> Succeeded
//	                     -> Retrying -> Rendering
//	                     -> Exhausted
//	                     -> PermanentlyFailed
//	any non-terminal     -> Cancelled
//
// Proxy candidates come from a proxy.LayerSet. After a configurable number
// of consecutive retryable failures the attempt moves to the next layer,
// ending on the direct layer, where it stays.
//
// The render and extract steps are interfaces so the browser and the page
// parser can be swapped; see the render and profile packages for the
// production implementations.
package fetch
