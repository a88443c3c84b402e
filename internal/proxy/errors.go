package proxy

import "errors"

// Proxy configuration errors.
var (
	// ErrInvalidProxyURI is returned when a proxy entry cannot be parsed.
	ErrInvalidProxyURI = errors.New("invalid proxy URI: expected scheme://[user:pass@]host:port")

	// ErrUnsupportedScheme is returned for proxy schemes other than
	// http, https, socks5 and socks5h.
	ErrUnsupportedScheme = errors.New("unsupported proxy scheme")

	// ErrEmptyLayerName is returned when a layer has no name.
	ErrEmptyLayerName = errors.New("proxy layer name must not be empty")

	// ErrDuplicateLayer is returned when two layers share a name.
	ErrDuplicateLayer = errors.New("duplicate proxy layer name")

	// ErrReservedLayerName is returned when a layer is named "direct".
	ErrReservedLayerName = errors.New("proxy layer name \"direct\" is reserved")

	// ErrTorNotRunning is returned when the embedded Tor daemon is used
	// before it has started.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)
