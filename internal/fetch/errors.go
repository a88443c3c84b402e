package fetch

import "errors"

// Construction errors.
var (
	// ErrNilLayerSet is returned when no proxy layer set is supplied.
	ErrNilLayerSet = errors.New("fetch: layer set is required")

	// ErrNilPolicy is returned when no retry policy is supplied.
	ErrNilPolicy = errors.New("fetch: retry policy is required")

	// ErrNilRenderer is returned when no renderer is supplied.
	ErrNilRenderer = errors.New("fetch: renderer is required")

	// ErrNilExtractor is returned when no extractor is supplied.
	ErrNilExtractor = errors.New("fetch: extractor is required")

	// ErrInvalidLayerAdvance is returned when the layer advance threshold
	// is below one.
	ErrInvalidLayerAdvance = errors.New("fetch: layer advance threshold must be at least 1")
)
