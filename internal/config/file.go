package config

// File is the shape of headscrape.yaml. Pointer fields distinguish
// "not set" from an explicit zero so that defaults survive.
type File struct {
	Browser     BrowserSection `yaml:"browser"`
	Headers     HeaderSection  `yaml:"headers"`
	Scrape      ScrapeSection  `yaml:"scrape"`
	ProxyLayers []LayerSection `yaml:"proxy_layers"`
	Targets     []string       `yaml:"targets"`
}

// BrowserSection configures Chromium and navigation.
type BrowserSection struct {
	Headless       *bool           `yaml:"headless"`
	TimeoutMS      *int            `yaml:"timeout_ms"`
	NavigationWait string          `yaml:"navigation_wait"`
	Concurrency    *int            `yaml:"concurrency"`
	Viewport       *ViewportConfig `yaml:"viewport"`
	Locale         string          `yaml:"locale"`
	TimezoneID     string          `yaml:"timezone_id"`
	SettleMS       *int            `yaml:"settle_ms"`
	Bin            string          `yaml:"bin"`
	NoSandbox      bool            `yaml:"no_sandbox"`
}

// ViewportConfig is the browser window size.
type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// HeaderSection holds request header overrides.
type HeaderSection struct {
	UserAgent string `yaml:"user_agent"`
}

// ScrapeSection configures retries, pacing and required fields.
type ScrapeSection struct {
	Retries              *int     `yaml:"retries"`
	BackoffSeconds       *float64 `yaml:"backoff_seconds"`
	MaxBackoffSeconds    *float64 `yaml:"max_backoff_seconds"`
	Jitter               bool     `yaml:"jitter"`
	LayerAdvanceAfter    *int     `yaml:"layer_advance_after"`
	RateLimit            float64  `yaml:"rate_limit"`
	GlobalTimeoutSeconds float64  `yaml:"global_timeout_seconds"`
	RequiredFields       []string `yaml:"required_fields"`
	Shuffle              *bool    `yaml:"shuffle_proxies"`
}

// LayerSection is one proxy layer. A layer either lists proxies or sets
// embedded_tor, which starts a Tor daemon and uses its SOCKS port.
type LayerSection struct {
	Name        string   `yaml:"name"`
	Proxies     []string `yaml:"proxies"`
	EmbeddedTor bool     `yaml:"embedded_tor"`
}
