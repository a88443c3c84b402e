package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/headscrape/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of concurrent attempts when none is set.
// Three pages matches what one Chromium handles comfortably on a laptop.
const DefaultConcurrency = 3

// Fetcher runs one target to completion.
//
// Fetch must always return exactly one result and must not return until
// the attempt is terminal. Failures are results, not errors, so the
// scheduler never has to decide whether to retry.
type Fetcher interface {
	Fetch(ctx context.Context, target string) model.ScrapeResult
}

// Callback receives a result together with the target's index in the
// input.
type Callback func(result model.ScrapeResult, index int)

// Scheduler dispatches targets to a Fetcher with bounded concurrency.
//
// A worker runs one attempt to completion before it picks up the next
// pending target, so at most Concurrency render calls are in flight at
// any moment. That bound is what keeps memory flat: every attempt owns a
// browser context while it runs.
//
// Design decision: the scheduler is deliberately thin. Retries, layer
// advancement and backoff all live in the fetch attempt, which knows why
// a render failed. The scheduler only knows that a target finished, so it
// never retries and never aborts the batch because one target failed.
//
// Design decision: results are stored by input index rather than appended
// as they complete. The returned slice is therefore in input order
// regardless of which page loaded first, and duplicate targets each keep
// their own slot.
type Scheduler struct {
	fetcher     Fetcher
	concurrency int
	logger      *slog.Logger
	callback    Callback

	// inOrder delays the callback until every earlier target has
	// resolved.
	inOrder bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithConcurrency sets the maximum number of concurrent attempts.
// Values below one are ignored.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithCallback streams results as they complete. The callback is never
// invoked concurrently with itself, so it may write to a shared
// io.Writer without locking.
func WithCallback(cb Callback) Option {
	return func(s *Scheduler) {
		s.callback = cb
	}
}

// WithInOrder makes the callback observe results in input order.
//
// A result that completes early is held until every target before it has
// resolved, then the whole ready prefix is flushed at once. Output is
// reproducible between runs at the cost of latency: a slow first target
// delays everything printed after it. The slice returned by Run is in
// input order either way.
func WithInOrder() Option {
	return func(s *Scheduler) {
		s.inOrder = true
	}
}

// New creates a Scheduler.
func New(f Fetcher, opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:     f,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Concurrency returns the concurrency limit.
func (s *Scheduler) Concurrency() int {
	return s.concurrency
}

// Run fetches every target and returns one result per target, in input
// order.
//
// When ctx ends, targets that have not started resolve to cancelled
// failures without calling the Fetcher, and running attempts are expected
// to observe ctx and return cancelled failures themselves. Results that
// were already collected are kept. Run itself never fails.
func (s *Scheduler) Run(ctx context.Context, targets []string) []model.ScrapeResult {
	s.logger.Info("starting scrape",
		"targets", len(targets),
		"concurrency", s.concurrency,
	)
	start := time.Now()

	results := make([]model.ScrapeResult, len(targets))
	emit := s.emitter(results)

	// errgroup.Group without a context: one failed target must not
	// cancel its siblings.
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, target := range targets {
		// Checked before g.Go, which blocks while the pool is full, so
		// targets queued behind a long render resolve promptly.
		if ctx.Err() != nil {
			emit(model.NewCancelled(target, 0), i)
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				emit(model.NewCancelled(target, 0), i)
				return nil
			}

			s.logger.Debug("fetching target",
				"target", target,
				"index", i+1,
				"total", len(targets),
			)

			r := s.fetcher.Fetch(ctx, target)
			if r.OK() {
				s.logger.Info("scrape succeeded",
					"target", target,
					"attempts", r.Attempts,
					"layer", r.Layer,
				)
			} else {
				s.logger.Warn("scrape failed",
					"target", target,
					"reason", r.Reason.String(),
					"attempts", r.Attempts,
					"error", r.Message,
				)
			}
			emit(r, i)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	sum := model.Summarize(results)
	s.logger.Info("scrape complete",
		"targets", sum.Total,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"cancelled", sum.Cancelled,
		"elapsed", time.Since(start),
	)

	return results
}

// emitter returns the function workers use to publish a result. It stores
// the result at its index and invokes the callback, in completion order
// or, with WithInOrder, for the longest resolved prefix of the input.
// Storing and calling back share one mutex, so the callback is serialized
// and sees every slot it reads fully written.
func (s *Scheduler) emitter(results []model.ScrapeResult) func(model.ScrapeResult, int) {
	var (
		mu   sync.Mutex
		done = make([]bool, len(results))
		next int
	)

	return func(r model.ScrapeResult, i int) {
		mu.Lock()
		defer mu.Unlock()

		results[i] = r
		if s.callback == nil {
			return
		}
		if !s.inOrder {
			s.callback(r, i)
			return
		}

		done[i] = true
		for next < len(results) && done[next] {
			s.callback(results[next], next)
			next++
		}
	}
}
