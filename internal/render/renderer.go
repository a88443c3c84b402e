package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/nao1215/headscrape/internal/fetch"
	"github.com/nao1215/headscrape/internal/model"
	"github.com/nao1215/headscrape/internal/proxy"
)

// ErrClosed is returned by Render after Close.
var ErrClosed = errors.New("render: browser is closed")

// Config selects and launches the browser.
type Config struct {
	// Headless runs Chromium without a window.
	Headless bool

	// Bin is the Chromium binary. Empty lets go-rod find or download one.
	Bin string

	// NoSandbox disables the Chromium sandbox, needed when running as root
	// in containers.
	NoSandbox bool

	// ControlURL connects to an already running browser instead of
	// launching one.
	ControlURL string
}

// Renderer renders pages in a shared Chromium. It implements
// fetch.Renderer and is safe for concurrent use.
type Renderer struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = logger
	}
}

// Launch starts (or connects to) Chromium.
func Launch(ctx context.Context, cfg Config, opts ...Option) (*Renderer, error) {
	r := &Renderer{}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Context(ctx).Headless(cfg.Headless).NoSandbox(cfg.NoSandbox)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		r.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if r.launcher != nil {
			r.launcher.Kill()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	r.browser = browser

	r.logger.Debug("browser ready", "control_url", controlURL, "headless", cfg.Headless)
	return r, nil
}

// Close shuts the browser down. Further Render calls fail with ErrClosed.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	err := r.browser.Close()
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher.Cleanup()
	}
	return err
}

// Render navigates to target through candidate and returns the DOM.
func (r *Renderer) Render(ctx context.Context, target string, candidate proxy.Candidate, opts fetch.Options) (*fetch.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, model.NewKindError(model.KindConfig, ErrClosed)
	}

	doc, err := r.render(ctx, target, candidate, opts)
	return doc, Classify(err)
}

func (r *Renderer) render(ctx context.Context, target string, candidate proxy.Candidate, opts fetch.Options) (*fetch.Document, error) {
	b, dispose, err := r.newContext(candidate)
	if err != nil {
		return nil, err
	}
	defer dispose()

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	defer page.Close() //nolint:errcheck // the browser context is disposed anyway
	page = page.Context(pctx)

	if err := setupPage(page, opts); err != nil {
		return nil, err
	}

	var (
		statusMu sync.Mutex
		status   int
	)
	events := []any{
		func(e *proto.NetworkResponseReceived) {
			if e.Type != proto.NetworkResourceTypeDocument || e.Response == nil {
				return
			}
			statusMu.Lock()
			if status == 0 {
				status = e.Response.Status
			}
			statusMu.Unlock()
		},
	}
	if user, pass, ok := proxy.Credentials(candidate.URL); ok && !candidate.Direct {
		if err := (proto.FetchEnable{HandleAuthRequests: true}).Call(page); err != nil {
			return nil, fmt.Errorf("failed to enable proxy authentication: %w", err)
		}
		events = append(events, authHandlers(page, user, pass)...)
	}
	go page.EachEvent(events...)()

	waitNav := page.WaitNavigation(lifecycleEvent(opts.WaitUntil))
	if err := page.Navigate(target); err != nil {
		return nil, err
	}
	waitNav()
	if err := pctx.Err(); err != nil {
		return nil, err
	}

	if err := settle(pctx, opts.Settle); err != nil {
		return nil, err
	}

	statusMu.Lock()
	code := status
	statusMu.Unlock()
	if err := statusError(target, code); err != nil {
		return nil, err
	}

	html, err := page.HTML()
	if err != nil {
		return nil, model.NewKindError(model.KindDOMNotReady, fmt.Errorf("failed to read DOM: %w", err))
	}

	doc := &fetch.Document{URL: target, FinalURL: target, Status: code, HTML: html}
	if info, err := page.Info(); err == nil && info.URL != "" {
		doc.FinalURL = info.URL
	}
	return doc, nil
}

// newContext creates an isolated browser context routed through candidate.
func (r *Renderer) newContext(candidate proxy.Candidate) (*rod.Browser, func(), error) {
	req := proto.TargetCreateBrowserContext{DisposeOnDetach: true}
	if !candidate.Direct && candidate.URL != nil {
		if candidate.URL.User != nil && candidate.URL.Scheme != proxy.SchemeHTTP && candidate.URL.Scheme != proxy.SchemeHTTPS {
			return nil, nil, model.Errorf(model.KindProxyAuth,
				"chromium cannot authenticate to %s proxies", candidate.URL.Scheme)
		}
		req.ProxyServer = proxy.ServerAddress(candidate.URL)
		req.ProxyBypassList = "<-loopback>"
	}

	res, err := req.Call(r.browser)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	b := *r.browser
	b.BrowserContextID = res.BrowserContextID

	dispose := func() {
		err := proto.TargetDisposeBrowserContext{BrowserContextID: res.BrowserContextID}.Call(r.browser)
		if err != nil {
			r.logger.Debug("failed to dispose browser context", "error", err)
		}
	}
	return &b, dispose, nil
}

func setupPage(page *rod.Page, opts fetch.Options) error {
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Viewport.Width,
			Height:            opts.Viewport.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			return fmt.Errorf("failed to set viewport: %w", err)
		}
	}
	if opts.UserAgent != "" {
		err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      opts.UserAgent,
			AcceptLanguage: opts.Locale,
		})
		if err != nil {
			return fmt.Errorf("failed to set user agent: %w", err)
		}
	}
	if opts.Locale != "" {
		if err := (proto.EmulationSetLocaleOverride{Locale: opts.Locale}).Call(page); err != nil {
			return fmt.Errorf("failed to set locale: %w", err)
		}
	}
	if opts.TimezoneID != "" {
		if err := (proto.EmulationSetTimezoneOverride{TimezoneID: opts.TimezoneID}).Call(page); err != nil {
			return model.NewKindError(model.KindConfig, fmt.Errorf("failed to set timezone %q: %w", opts.TimezoneID, err))
		}
	}
	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("failed to enable network events: %w", err)
	}
	return nil
}

// authHandlers answers proxy authentication challenges for one page.
// With HandleAuthRequests enabled every request pauses and must be continued.
func authHandlers(page *rod.Page, user, pass string) []any {
	return []any{
		func(e *proto.FetchRequestPaused) {
			_ = proto.FetchContinueRequest{RequestID: e.RequestID}.Call(page) //nolint:errcheck // page may be closing
		},
		func(e *proto.FetchAuthRequired) {
			resp := proto.FetchAuthChallengeResponseResponseProvideCredentials
			if e.AuthChallenge != nil && e.AuthChallenge.Source != proto.FetchAuthChallengeSourceProxy {
				resp = proto.FetchAuthChallengeResponseResponseCancelAuth
			}
			_ = proto.FetchContinueWithAuth{ //nolint:errcheck // page may be closing
				RequestID: e.RequestID,
				AuthChallengeResponse: &proto.FetchAuthChallengeResponse{
					Response: resp,
					Username: user,
					Password: pass,
				},
			}.Call(page)
		},
	}
}

func lifecycleEvent(w fetch.WaitCondition) proto.PageLifecycleEventName {
	switch w {
	case fetch.WaitLoad:
		return proto.PageLifecycleEventNameLoad
	case fetch.WaitNetworkIdle:
		return proto.PageLifecycleEventNameNetworkIdle
	default:
		return proto.PageLifecycleEventNameDOMContentLoaded
	}
}

func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
