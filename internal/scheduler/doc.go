// Package scheduler runs fetch attempts for a batch of targets with
// bounded concurrency.
//
// The scheduler never retries on its own and never aborts the batch
// because one target failed: retries belong to the fetch attempt, and
// every target yields exactly one result. Results are returned in input
// order.
package scheduler
