package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/headscrape/internal/config"
	"github.com/nao1215/headscrape/internal/database"
	"github.com/nao1215/headscrape/internal/fetch"
	"github.com/nao1215/headscrape/internal/metrics"
	"github.com/nao1215/headscrape/internal/model"
	"github.com/nao1215/headscrape/internal/profile"
	"github.com/nao1215/headscrape/internal/proxy"
	"github.com/nao1215/headscrape/internal/render"
	"github.com/nao1215/headscrape/internal/retry"
	"github.com/nao1215/headscrape/internal/scheduler"
)

// shutdownTimeout bounds stopping the metrics server.
const shutdownTimeout = 5 * time.Second

// Run scrapes every target in cfg and returns one result per target, in
// target order.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) ([]model.ScrapeResult, error) {
	o := options{newTor: defaultTor}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.rnd == nil {
		o.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // shuffling and jitter only
	}
	logger := o.logger

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	policy, err := retry.New(retry.Config{
		MaxRetries: cfg.Retries,
		BaseDelay:  cfg.Backoff,
		MaxDelay:   cfg.MaxBackoff,
		Jitter:     cfg.Jitter,
	}, retry.WithRand(o.rnd))
	if err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	var archive *database.Archive
	if cfg.SaveToDB {
		archive, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		defer archive.Close()
		logger.Debug("database opened", "path", archive.Path())
	}

	if cfg.GlobalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.GlobalTimeout)
		defer cancel()
	}

	layers, stopTor, err := resolveLayers(ctx, cfg, o, logger)
	if err != nil {
		return nil, err
	}
	defer stopTor()

	var layerOpts []proxy.Option
	if cfg.ShuffleProxies {
		layerOpts = append(layerOpts, proxy.WithShuffle(o.rnd))
	}
	layerSet, err := proxy.NewLayerSet(layers, layerOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy layers: %w", err)
	}

	fetchOpts := []fetch.Option{
		fetch.WithRenderOptions(cfg.RenderOptions()),
		fetch.WithLayerAdvanceAfter(cfg.LayerAdvanceAfter),
		fetch.WithLogger(logger),
	}
	if cfg.RateLimit > 0 {
		fetchOpts = append(fetchOpts, fetch.WithLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)))
	}
	if o.sleep != nil {
		fetchOpts = append(fetchOpts, fetch.WithSleeper(o.sleep))
	}
	for _, obs := range o.observers {
		fetchOpts = append(fetchOpts, fetch.WithObserver(obs))
	}

	if cfg.MetricsAddr != "" {
		collector := metrics.NewCollector()
		server := metrics.NewServer(collector, cfg.MetricsAddr, logger)
		if err := server.Start(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Stop(shutdownCtx); err != nil {
				logger.Warn("failed to stop metrics server", "error", err)
			}
		}()
		fetchOpts = append(fetchOpts, fetch.WithObserver(collector))
	}

	renderer := o.renderer
	if renderer == nil {
		browser, err := render.Launch(ctx, render.Config{
			Headless:  cfg.Headless,
			Bin:       cfg.BrowserBin,
			NoSandbox: cfg.NoSandbox,
		}, render.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		defer func() {
			if err := browser.Close(); err != nil {
				logger.Warn("failed to close browser", "error", err)
			}
		}()
		renderer = browser
	}

	extractor := o.extractor
	if extractor == nil {
		extractor = profile.NewExtractor(profile.WithRequiredFields(cfg.RequiredFields...))
	}

	fetcher, err := fetch.New(layerSet, policy, renderer, extractor, fetchOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetcher: %w", err)
	}

	schedOpts := []scheduler.Option{
		scheduler.WithConcurrency(cfg.Concurrency),
		scheduler.WithLogger(logger),
	}
	if o.writer != nil {
		// Input order keeps reports reproducible between runs.
		schedOpts = append(schedOpts, scheduler.WithInOrder(), scheduler.WithCallback(func(r model.ScrapeResult, _ int) {
			if _, err := o.writer.Write(r); err != nil {
				logger.Error("failed to write result", "target", r.Target, "error", err)
			}
		}))
	}

	logger.Info("proxy layers", "order", layerSet.Layers())
	startedAt := time.Now()
	results := scheduler.New(fetcher, schedOpts...).Run(ctx, cfg.Targets)
	finishedAt := time.Now()

	if o.writer != nil {
		if _, err := o.writer.WriteSummary(results); err != nil {
			logger.Error("failed to write summary", "error", err)
		}
	}

	if archive != nil {
		// The run context may be done; archiving still has to happen.
		runID, err := archive.SaveRun(context.WithoutCancel(ctx), startedAt, finishedAt, results)
		if err != nil {
			logger.Error("failed to archive results", "error", err)
		} else {
			logger.Info("results archived", "run", runID, "path", archive.Path())
		}
	}

	return results, nil
}

// resolveLayers turns the configured layers into proxy layers, starting
// one embedded Tor daemon shared by every embedded_tor layer.
func resolveLayers(ctx context.Context, cfg *config.Config, o options, logger *slog.Logger) ([]proxy.Layer, func(), error) {
	layers := make([]proxy.Layer, 0, len(cfg.ProxyLayers))
	var tor TorDaemon
	stop := func() {
		if tor == nil {
			return
		}
		logger.Info("stopping embedded Tor daemon")
		if err := tor.Stop(); err != nil {
			logger.Warn("failed to stop embedded Tor", "error", err)
		}
	}

	for _, l := range cfg.ProxyLayers {
		if !l.EmbeddedTor {
			layers = append(layers, proxy.Layer{Name: l.Name, Proxies: l.Proxies})
			continue
		}

		if tor == nil {
			logger.Info("starting embedded Tor daemon", "timeout", cfg.TorStartupTimeout)
			daemon := o.newTor(cfg.TorStartupTimeout)
			if err := daemon.Start(ctx); err != nil {
				return nil, stop, fmt.Errorf("failed to start embedded Tor: %w", err)
			}
			tor = daemon
		}

		uri, err := tor.ProxyURI()
		if err != nil {
			stop()
			return nil, func() {}, fmt.Errorf("embedded Tor layer %q: %w", l.Name, err)
		}
		logger.Info("embedded Tor ready", "layer", l.Name, "proxy", uri)
		layers = append(layers, proxy.Layer{Name: l.Name, Proxies: []string{uri}})
	}

	return layers, stop, nil
}
