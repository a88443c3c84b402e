package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/nao1215/headscrape/internal/model"
	"github.com/nao1215/headscrape/internal/proxy"
	"github.com/nao1215/headscrape/internal/retry"
	"golang.org/x/time/rate"
)

// DefaultLayerAdvanceAfter is the number of consecutive retryable failures
// after which an attempt leaves its current proxy layer.
const DefaultLayerAdvanceAfter = 1

// Fetcher runs fetch attempts. It is safe for concurrent use; the only
// state shared between attempts is the layer cursors and the limiter.
//
// Each call to Fetch drives one attempt through the states
// Pending -> Rendering -> {Succeeded, Retrying, Exhausted,
// PermanentlyFailed}, with Retrying -> Rendering after the backoff and
// Cancelled reachable from any non-terminal state. Every transition is
// reported to the registered observers, which is how metrics and debug
// logging follow an attempt without the state machine knowing about them.
//
// Design decision: failures are classified once, into a model.ErrorKind,
// and every later decision is made on the kind alone. Retryable kinds
// (timeouts, refused connections, proxy failures) consume retry budget and
// push the attempt towards the direct layer; permanent kinds (invalid
// target, schema mismatch, configuration) end the attempt after a single
// render call because no proxy can fix them.
//
// Design decision: a malformed target is rejected before any render call.
// It costs no browser context, no proxy traffic and no rate limiter token,
// and it is reported with zero attempts so the report shows it was never
// fetched.
//
// Design decision: an attempt that observes cancellation reports
// Cancelled even when a render call still returned a document. The run
// has already given up on that target and its result would arrive after
// the caller stopped waiting for it.
type Fetcher struct {
	layers    *proxy.LayerSet
	policy    *retry.Policy
	renderer  Renderer
	extractor Extractor

	renderOpts   Options
	advanceAfter int
	limiter      *rate.Limiter
	observers    []Observer
	logger       *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRenderOptions sets the options passed to every render call.
func WithRenderOptions(opts Options) Option {
	return func(f *Fetcher) {
		f.renderOpts = opts
	}
}

// WithLayerAdvanceAfter sets how many consecutive retryable failures
// within a layer move the attempt to the next layer.
func WithLayerAdvanceAfter(n int) Option {
	return func(f *Fetcher) {
		f.advanceAfter = n
	}
}

// WithLimiter makes every render call wait on l first. The limiter is
// shared by all attempts of the Fetcher.
func WithLimiter(l *rate.Limiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// WithObserver registers an observer for state transitions.
func WithObserver(o Observer) Option {
	return func(f *Fetcher) {
		if o != nil {
			f.observers = append(f.observers, o)
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// WithClock sets the time source used for attempt timestamps.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) {
		f.now = now
	}
}

// WithSleeper replaces the backoff sleep. It must return ctx.Err() when
// the context ends before the delay elapses.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) {
		f.sleep = sleep
	}
}

// New creates a Fetcher.
func New(layers *proxy.LayerSet, policy *retry.Policy, renderer Renderer, extractor Extractor, opts ...Option) (*Fetcher, error) {
	switch {
	case layers == nil:
		return nil, ErrNilLayerSet
	case policy == nil:
		return nil, ErrNilPolicy
	case renderer == nil:
		return nil, ErrNilRenderer
	case extractor == nil:
		return nil, ErrNilExtractor
	}

	f := &Fetcher{
		layers:       layers,
		policy:       policy,
		renderer:     renderer,
		extractor:    extractor,
		advanceAfter: DefaultLayerAdvanceAfter,
		now:          time.Now,
		sleep:        retry.Sleep,
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.advanceAfter < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLayerAdvance, f.advanceAfter)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f, nil
}

// attempt is one run of the state machine.
type attempt struct {
	f     *Fetcher
	rec   *model.AttemptRecord
	state State
}

func (a *attempt) transition(to State, kind model.ErrorKind, err error, delay time.Duration) {
	t := Transition{
		Target:      a.rec.Target,
		From:        a.state,
		To:          to,
		RenderCalls: a.rec.RenderCalls,
		Layer:       a.rec.LastLayer,
		Proxy:       a.rec.LastProxy,
		Kind:        kind,
		Err:         err,
		Delay:       delay,
		Elapsed:     a.f.now().Sub(a.rec.StartedAt),
	}
	a.state = to
	for _, o := range a.f.observers {
		o.OnTransition(t)
	}
}

// finish records a failure and moves to a terminal state.
func (a *attempt) finish(to State, kind model.ErrorKind, err error) model.ScrapeResult {
	a.rec.LastError = kind
	a.rec.LastErr = err
	a.rec.FinishedAt = a.f.now()
	a.transition(to, kind, err, 0)
	return a.rec.Result(nil)
}

// Fetch renders and extracts target, retrying as the policy allows.
// It always returns exactly one result; failures are results, not errors.
func (f *Fetcher) Fetch(ctx context.Context, target string) model.ScrapeResult {
	a := &attempt{
		f:     f,
		rec:   model.NewAttemptRecord(target, f.now()),
		state: StatePending,
	}

	if err := ValidateTarget(target); err != nil {
		return a.finish(StatePermanentlyFailed, model.KindInvalidTarget, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return a.finish(StateCancelled, model.KindCancelled, err)
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return a.finish(StateCancelled, model.KindCancelled, err)
			}
		}

		candidate, _ := f.layers.Next(a.rec.CurrentLayerIndex)
		a.rec.LastLayer = candidate.Layer
		a.rec.LastProxy = candidate.Redacted()
		a.rec.RenderCalls++
		a.transition(StateRendering, model.KindNone, nil, 0)

		fields, err := f.renderAndExtract(ctx, target, candidate)
		if err == nil && ctx.Err() != nil {
			// A render that ignored cancellation may still finish; its
			// result arrives too late to be reported.
			return a.finish(StateCancelled, model.KindCancelled, ctx.Err())
		}
		if err == nil {
			a.rec.FinishedAt = f.now()
			a.transition(StateSucceeded, model.KindNone, nil, 0)
			return a.rec.Result(fields)
		}

		kind := model.KindOf(err)
		if ctx.Err() != nil {
			kind = model.KindCancelled
		}

		switch {
		case kind == model.KindCancelled:
			return a.finish(StateCancelled, kind, err)
		case !kind.Retryable():
			return a.finish(StatePermanentlyFailed, kind, err)
		case !f.policy.ShouldRetry(a.rec.AttemptNumber, kind):
			return a.finish(StateExhausted, kind, err)
		}

		delay := f.policy.DelayFor(a.rec.AttemptNumber)
		a.rec.AttemptNumber++
		a.rec.LastError = kind
		a.rec.LastErr = err
		f.advanceLayer(a.rec)

		f.logger.Debug("render failed, retrying",
			"target", target,
			"layer", candidate.Layer,
			"proxy", candidate.Redacted(),
			"kind", kind.String(),
			"retry", a.rec.AttemptNumber,
			"delay", delay,
			"error", err,
		)
		a.transition(StateRetrying, kind, err, delay)

		if err := f.sleep(ctx, delay); err != nil {
			return a.finish(StateCancelled, model.KindCancelled, err)
		}
	}
}

// advanceLayer moves rec to the next layer once the current one has
// produced advanceAfter consecutive failures. The direct layer is never left.
func (f *Fetcher) advanceLayer(rec *model.AttemptRecord) {
	if rec.CurrentLayerIndex >= f.layers.DirectIndex() {
		return
	}
	rec.LayerFailures++
	if rec.LayerFailures >= f.advanceAfter {
		rec.CurrentLayerIndex++
		rec.LayerFailures = 0
	}
}

func (f *Fetcher) renderAndExtract(ctx context.Context, target string, candidate proxy.Candidate) (map[string]string, error) {
	renderCtx := ctx
	if f.renderOpts.Timeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, f.renderOpts.Timeout)
		defer cancel()
	}

	doc, err := f.renderer.Render(renderCtx, target, candidate, f.renderOpts)
	if err != nil {
		if ctx.Err() == nil && errors.Is(renderCtx.Err(), context.DeadlineExceeded) {
			var ke *model.KindError
			if !errors.As(err, &ke) {
				return nil, model.NewKindError(model.KindTimeout, err)
			}
		}
		return nil, err
	}
	if doc == nil {
		return nil, model.Errorf(model.KindDOMNotReady, "renderer returned no document for %s", target)
	}

	fields, err := f.extractor.Extract(doc)
	if err != nil {
		var ke *model.KindError
		if errors.As(err, &ke) {
			return nil, err
		}
		return nil, model.NewKindError(model.KindSchemaMismatch, err)
	}
	if fields == nil {
		fields = map[string]string{}
	}
	return fields, nil
}

// ValidateTarget checks that target is an absolute http or https URL.
func ValidateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("malformed target URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("target URL %q: scheme must be http or https", target)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("target URL %q: missing host", target)
	}
	return nil
}
