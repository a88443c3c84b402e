package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // timezone_id validation must not depend on the host zoneinfo

	"github.com/adrg/xdg"
	"github.com/nao1215/headscrape/internal/fetch"
	"github.com/nao1215/headscrape/internal/proxy"
	"golang.org/x/text/language"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "headscrape"

	// DefaultTimeout bounds one render call. Profile pages pull a lot of
	// script, and slow proxies add to that.
	DefaultTimeout = 25 * time.Second

	// DefaultNavigationWait is the navigation milestone to wait for.
	DefaultNavigationWait = string(fetch.WaitDOMContentLoaded)

	// DefaultConcurrency is the number of pages rendered at once.
	DefaultConcurrency = 3

	// DefaultViewportWidth and DefaultViewportHeight size the browser window.
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720

	// DefaultLocale is the browser locale.
	DefaultLocale = "en-US"

	// DefaultTimezoneID is the browser timezone.
	DefaultTimezoneID = "Europe/London"

	// DefaultUserAgent is sent when headers.user_agent is not set.
	DefaultUserAgent = "Mozilla/5.0"

	// DefaultSettle is the pause after navigation for client-side hydration.
	DefaultSettle = 250 * time.Millisecond

	// DefaultRetries is the number of retries after the first render call.
	DefaultRetries = 8

	// DefaultBackoff is the delay before the first retry.
	DefaultBackoff = 1200 * time.Millisecond

	// DefaultMaxBackoff caps the exponential backoff.
	DefaultMaxBackoff = 10 * time.Second

	// DefaultLayerAdvanceAfter is the number of consecutive failures after
	// which an attempt moves to the next proxy layer.
	DefaultLayerAdvanceAfter = fetch.DefaultLayerAdvanceAfter

	// DefaultTorStartupTimeout bounds bootstrap of the embedded Tor daemon.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// ProxyLayer is a validated proxy layer definition.
type ProxyLayer struct {
	// Name identifies the layer.
	Name string

	// Proxies are the layer's proxy URIs.
	Proxies []string

	// EmbeddedTor makes the layer a single proxy backed by an embedded
	// Tor daemon, started on demand.
	EmbeddedTor bool
}

// Config holds all configuration options for headscrape.
// It is built from defaults, then the config file, then command-line flags,
// and passed through the application rather than kept in global state.
type Config struct {
	// Headless runs Chromium without a window.
	Headless bool

	// Timeout bounds a single render call.
	Timeout time.Duration

	// NavigationWait is load, domcontentloaded or networkidle.
	NavigationWait string

	// Concurrency is the maximum number of targets in flight.
	Concurrency int

	// ViewportWidth and ViewportHeight size the browser window.
	ViewportWidth  int
	ViewportHeight int

	// Locale is the BCP 47 browser locale.
	Locale string

	// TimezoneID is the IANA timezone emulated by the browser.
	TimezoneID string

	// Settle is the extra wait after navigation.
	Settle time.Duration

	// BrowserBin is the Chromium binary. Empty lets go-rod locate one.
	BrowserBin string

	// NoSandbox disables the Chromium sandbox.
	NoSandbox bool

	// UserAgent is sent with every navigation.
	UserAgent string

	// Retries is the number of retries after the first render call.
	Retries int

	// Backoff is the delay before the first retry; it doubles per retry
	// up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// Jitter randomizes backoff delays.
	Jitter bool

	// LayerAdvanceAfter is the number of consecutive retryable failures
	// after which an attempt moves to the next proxy layer.
	LayerAdvanceAfter int

	// RateLimit caps render calls per second across all targets. 0 means
	// unlimited.
	RateLimit float64

	// GlobalTimeout bounds the whole run. 0 means no limit.
	GlobalTimeout time.Duration

	// RequiredFields must be present in every extracted profile.
	RequiredFields []string

	// ShuffleProxies shuffles each layer once at startup.
	ShuffleProxies bool

	// ProxyLayers are consulted in order before the direct connection.
	ProxyLayers []ProxyLayer

	// TorStartupTimeout bounds bootstrap of an embedded_tor layer.
	TorStartupTimeout time.Duration

	// Targets are the profile URLs to scrape.
	Targets []string

	// ConfigFilePath is the file the configuration was loaded from.
	ConfigFilePath string

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool

	// JSONReport and MarkdownReport select the report format. They are
	// mutually exclusive; neither means the plain text report.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// SaveToDB archives results in the SQLite database under DBDir.
	SaveToDB bool

	// DBDir is the directory of the results database.
	DBDir string

	// MetricsAddr serves Prometheus metrics during the run when set.
	MetricsAddr string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Headless:          true,
		Timeout:           DefaultTimeout,
		NavigationWait:    DefaultNavigationWait,
		Concurrency:       DefaultConcurrency,
		ViewportWidth:     DefaultViewportWidth,
		ViewportHeight:    DefaultViewportHeight,
		Locale:            DefaultLocale,
		TimezoneID:        DefaultTimezoneID,
		Settle:            DefaultSettle,
		UserAgent:         DefaultUserAgent,
		Retries:           DefaultRetries,
		Backoff:           DefaultBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		LayerAdvanceAfter: DefaultLayerAdvanceAfter,
		ShuffleProxies:    true,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
	}
}

// Apply overlays the values set in f onto c.
func (c *Config) Apply(f *File) {
	if f == nil {
		return
	}

	b := f.Browser
	if b.Headless != nil {
		c.Headless = *b.Headless
	}
	if b.TimeoutMS != nil {
		c.Timeout = time.Duration(*b.TimeoutMS) * time.Millisecond
	}
	if b.NavigationWait != "" {
		c.NavigationWait = b.NavigationWait
	}
	if b.Concurrency != nil {
		c.Concurrency = *b.Concurrency
	}
	if b.Viewport != nil {
		c.ViewportWidth = b.Viewport.Width
		c.ViewportHeight = b.Viewport.Height
	}
	if b.Locale != "" {
		c.Locale = b.Locale
	}
	if b.TimezoneID != "" {
		c.TimezoneID = b.TimezoneID
	}
	if b.SettleMS != nil {
		c.Settle = time.Duration(*b.SettleMS) * time.Millisecond
	}
	if b.Bin != "" {
		c.BrowserBin = b.Bin
	}
	c.NoSandbox = c.NoSandbox || b.NoSandbox

	if f.Headers.UserAgent != "" {
		c.UserAgent = f.Headers.UserAgent
	}

	s := f.Scrape
	if s.Retries != nil {
		c.Retries = *s.Retries
	}
	if s.BackoffSeconds != nil {
		c.Backoff = seconds(*s.BackoffSeconds)
	}
	if s.MaxBackoffSeconds != nil {
		c.MaxBackoff = seconds(*s.MaxBackoffSeconds)
	}
	c.Jitter = c.Jitter || s.Jitter
	if s.LayerAdvanceAfter != nil {
		c.LayerAdvanceAfter = *s.LayerAdvanceAfter
	}
	if s.RateLimit != 0 {
		c.RateLimit = s.RateLimit
	}
	if s.GlobalTimeoutSeconds != 0 {
		c.GlobalTimeout = seconds(s.GlobalTimeoutSeconds)
	}
	if len(s.RequiredFields) > 0 {
		c.RequiredFields = append([]string(nil), s.RequiredFields...)
	}
	if s.Shuffle != nil {
		c.ShuffleProxies = *s.Shuffle
	}

	if len(f.ProxyLayers) > 0 {
		c.ProxyLayers = make([]ProxyLayer, 0, len(f.ProxyLayers))
		for _, l := range f.ProxyLayers {
			c.ProxyLayers = append(c.ProxyLayers, ProxyLayer{
				Name:        strings.TrimSpace(l.Name),
				Proxies:     append([]string(nil), l.Proxies...),
				EmbeddedTor: l.EmbeddedTor,
			})
		}
	}
	if len(f.Targets) > 0 {
		c.Targets = append([]string(nil), f.Targets...)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// RenderOptions returns the per-call render options.
func (c *Config) RenderOptions() fetch.Options {
	wait, err := fetch.ParseWaitCondition(c.NavigationWait)
	if err != nil {
		wait = fetch.WaitDOMContentLoaded
	}
	return fetch.Options{
		Timeout:    c.Timeout,
		WaitUntil:  wait,
		Locale:     c.Locale,
		TimezoneID: c.TimezoneID,
		Viewport:   fetch.Viewport{Width: c.ViewportWidth, Height: c.ViewportHeight},
		UserAgent:  c.UserAgent,
		Settle:     c.Settle,
	}
}

// XDGDataDir returns the XDG data directory for headscrape.
// On Linux: ~/.local/share/headscrape
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for headscrape.
// On Linux: ~/.config/headscrape
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
// It runs before any target is scheduled.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, c.Concurrency)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTimeout, c.Timeout)
	}
	if c.GlobalTimeout < 0 {
		return fmt.Errorf("%w: global timeout %s", ErrInvalidTimeout, c.GlobalTimeout)
	}
	if c.Retries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetries, c.Retries)
	}
	if c.Backoff <= 0 || c.MaxBackoff < c.Backoff {
		return fmt.Errorf("%w: backoff %s, max %s", ErrInvalidBackoff, c.Backoff, c.MaxBackoff)
	}
	if _, err := fetch.ParseWaitCondition(c.NavigationWait); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidNavigationWait, c.NavigationWait)
	}
	if _, err := language.Parse(c.Locale); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLocale, c.Locale)
	}
	if _, err := time.LoadLocation(c.TimezoneID); err != nil || c.TimezoneID == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, c.TimezoneID)
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidViewport, c.ViewportWidth, c.ViewportHeight)
	}
	if c.Settle < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSettle, c.Settle)
	}
	if c.LayerAdvanceAfter < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidLayerAdvance, c.LayerAdvanceAfter)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: %g", ErrInvalidRateLimit, c.RateLimit)
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return c.validateLayers()
}

func (c *Config) validateLayers() error {
	seen := make(map[string]bool, len(c.ProxyLayers))
	for i, l := range c.ProxyLayers {
		if l.Name == "" {
			return fmt.Errorf("%w: layer %d has no name", ErrInvalidProxy, i+1)
		}
		if strings.EqualFold(l.Name, proxy.DirectLayerName) {
			return fmt.Errorf("%w: %q is reserved", ErrInvalidProxy, l.Name)
		}
		if seen[l.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateLayer, l.Name)
		}
		seen[l.Name] = true

		if l.EmbeddedTor && len(l.Proxies) > 0 {
			return fmt.Errorf("%w: layer %q sets both embedded_tor and proxies", ErrInvalidProxy, l.Name)
		}
		for _, p := range l.Proxies {
			if strings.TrimSpace(p) == "" {
				continue
			}
			if _, err := proxy.ParseURI(p); err != nil {
				return fmt.Errorf("%w: layer %q: %w", ErrInvalidProxy, l.Name, err)
			}
		}
	}
	return nil
}

// Layers converts the static proxy layers for proxy.NewLayerSet.
// Embedded Tor layers are resolved by the caller once the daemon runs.
func (c *Config) Layers() []proxy.Layer {
	out := make([]proxy.Layer, 0, len(c.ProxyLayers))
	for _, l := range c.ProxyLayers {
		out = append(out, proxy.Layer{Name: l.Name, Proxies: append([]string(nil), l.Proxies...)})
	}
	return out
}
