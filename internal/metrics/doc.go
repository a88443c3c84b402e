// Package metrics exposes scrape progress as Prometheus metrics.
//
// A Collector subscribes to fetch state transitions and turns them into
// counters, gauges and histograms:
//   - headscrape_render_calls_total{layer,outcome}: render calls per proxy layer
//   - headscrape_results_total{state}: terminal attempt states
//   - headscrape_renders_in_flight: render calls currently running
//   - headscrape_backoff_seconds: backoff delays before retries
//   - headscrape_fetch_duration_seconds{state}: time from start to terminal state
//
// Each Collector owns its registry instead of the global default, so
// several runs in one process (and parallel tests) do not collide on
// registration. Server serves the registry on /metrics, next to a /health
// endpoint, for the lifetime of one scrape run.
package metrics
