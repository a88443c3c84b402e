package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nao1215/headscrape/internal/fetch"
)

const namespace = "headscrape"

// outcomeOK labels a render call that produced fields.
const outcomeOK = "ok"

// Collector records fetch state transitions. It implements fetch.Observer.
type Collector struct {
	registry *prometheus.Registry

	renderCalls   *prometheus.CounterVec
	results       *prometheus.CounterVec
	inFlight      prometheus.Gauge
	backoff       prometheus.Histogram
	fetchDuration *prometheus.HistogramVec
}

// NewCollector registers the scrape metrics on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		renderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "render_calls_total",
				Help:      "Total number of render calls by proxy layer and outcome",
			},
			[]string{"layer", "outcome"},
		),
		results: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_total",
				Help:      "Total number of targets resolved by terminal state",
			},
			[]string{"state"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "renders_in_flight",
				Help:      "Number of render calls currently running",
			},
		),
		backoff: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backoff_seconds",
				Help:      "Backoff delay before each retry in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8),
			},
		),
		fetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Time from first render call to terminal state in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"state"},
		),
	}
}

// Registry returns the registry holding the scrape metrics.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// OnTransition updates the metrics for one state change.
func (c *Collector) OnTransition(t fetch.Transition) {
	if t.To == fetch.StateRendering {
		c.inFlight.Inc()
	}

	if t.From == fetch.StateRendering {
		c.inFlight.Dec()
		outcome := outcomeOK
		if t.To != fetch.StateSucceeded {
			outcome = t.Kind.String()
		}
		c.renderCalls.WithLabelValues(t.Layer, outcome).Inc()
	}

	if t.To == fetch.StateRetrying {
		c.backoff.Observe(t.Delay.Seconds())
	}

	if t.To.Terminal() {
		state := t.To.String()
		c.results.WithLabelValues(state).Inc()
		c.fetchDuration.WithLabelValues(state).Observe(t.Elapsed.Seconds())
	}
}
