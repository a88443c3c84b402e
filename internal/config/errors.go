package config

import "errors"

// Configuration validation errors.
// Validate returns these wrapped with the offending value, so callers can
// match them with errors.Is.
var (
	// ErrNoTarget is returned when neither the file nor the command line
	// names a target.
	ErrNoTarget = errors.New("no target specified: list targets in the config file or pass them as arguments")

	// ErrInvalidConcurrency is returned when concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidTimeout is returned when the render timeout is not positive
	// or the global timeout is negative.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetries is returned when retries is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidBackoff is returned when the backoff is not positive or the
	// maximum backoff is below it.
	ErrInvalidBackoff = errors.New("invalid backoff: base must be positive and not exceed the maximum")

	// ErrInvalidNavigationWait is returned for an unknown navigation_wait.
	ErrInvalidNavigationWait = errors.New("invalid navigation_wait: must be load, domcontentloaded or networkidle")

	// ErrInvalidLocale is returned when the locale is not a BCP 47 tag.
	ErrInvalidLocale = errors.New("invalid locale: must be a BCP 47 language tag")

	// ErrInvalidTimezone is returned when timezone_id is not an IANA zone.
	ErrInvalidTimezone = errors.New("invalid timezone_id: must be an IANA time zone")

	// ErrInvalidViewport is returned when a viewport dimension is not positive.
	ErrInvalidViewport = errors.New("invalid viewport: width and height must be positive")

	// ErrInvalidLayerAdvance is returned when layer_advance_after is below one.
	ErrInvalidLayerAdvance = errors.New("invalid layer_advance_after: must be at least 1")

	// ErrInvalidRateLimit is returned when rate_limit is negative.
	ErrInvalidRateLimit = errors.New("invalid rate_limit: must be non-negative")

	// ErrInvalidSettle is returned when settle_ms is negative.
	ErrInvalidSettle = errors.New("invalid settle_ms: must be non-negative")

	// ErrInvalidProxy is returned when a proxy layer entry cannot be used.
	ErrInvalidProxy = errors.New("invalid proxy layer")

	// ErrDuplicateLayer is returned when two proxy layers share a name.
	ErrDuplicateLayer = errors.New("duplicate proxy layer name")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
