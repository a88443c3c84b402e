package scrape

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/nao1215/headscrape/internal/fetch"
	"github.com/nao1215/headscrape/internal/proxy"
	"github.com/nao1215/headscrape/internal/report"
)

// TorDaemon is a Tor process exposing a SOCKS proxy.
type TorDaemon interface {
	Start(ctx context.Context) error
	ProxyURI() (string, error)
	Stop() error
}

// options holds the collaborators of one Run.
type options struct {
	logger    *slog.Logger
	renderer  fetch.Renderer
	extractor fetch.Extractor
	writer    report.Writer
	observers []fetch.Observer
	rnd       *rand.Rand
	sleep     func(ctx context.Context, d time.Duration) error
	newTor    func(startupTimeout time.Duration) TorDaemon
}

// Option configures Run.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRenderer uses r instead of launching Chromium. The caller owns r.
func WithRenderer(r fetch.Renderer) Option {
	return func(o *options) {
		o.renderer = r
	}
}

// WithExtractor replaces the profile extractor.
func WithExtractor(e fetch.Extractor) Option {
	return func(o *options) {
		o.extractor = e
	}
}

// WithReportWriter streams results to w in target order, each as soon as
// every earlier target has resolved, and writes the summary once the batch
// is done.
func WithReportWriter(w report.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithObserver registers an observer for fetch state transitions.
func WithObserver(obs fetch.Observer) Option {
	return func(o *options) {
		o.observers = append(o.observers, obs)
	}
}

// WithRand sets the source for proxy shuffling and backoff jitter.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rnd = r
	}
}

// WithSleeper replaces the backoff sleep.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

// WithTorFactory replaces how embedded_tor layers get their daemon.
func WithTorFactory(newTor func(startupTimeout time.Duration) TorDaemon) Option {
	return func(o *options) {
		o.newTor = newTor
	}
}

func defaultTor(startupTimeout time.Duration) TorDaemon {
	return proxy.NewEmbeddedTor(proxy.WithTorStartupTimeout(startupTimeout))
}
