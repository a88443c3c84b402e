// Package scrape wires configuration into a running scrape.
//
// Run validates the configuration, starts the optional embedded Tor
// daemon and metrics server, launches Chromium, and hands every target to
// the scheduler. Per-target failures are results; Run only returns an
// error when the run cannot start.
package scrape
