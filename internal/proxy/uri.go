package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Supported proxy URI schemes.
const (
	SchemeHTTP    = "http"
	SchemeHTTPS   = "https"
	SchemeSOCKS5  = "socks5"
	SchemeSOCKS5H = "socks5h"
)

// ParseURI parses and validates a proxy entry.
// A bare "host:port" is read as an HTTP proxy.
func ParseURI(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidProxyURI
	}
	if !strings.Contains(raw, "://") {
		raw = SchemeHTTP + "://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProxyURI, Redact(raw))
	}

	u.Scheme = strings.ToLower(u.Scheme)
	switch u.Scheme {
	case SchemeHTTP, SchemeHTTPS, SchemeSOCKS5, SchemeSOCKS5H:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil || host == "" || port == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProxyURI, u.Redacted())
	}
	if u.Path != "" && u.Path != "/" {
		return nil, fmt.Errorf("%w: unexpected path in %s", ErrInvalidProxyURI, u.Redacted())
	}
	u.Path = ""

	return u, nil
}

// Redact masks the password of a proxy URI for logs and reports.
// Strings that do not parse are returned with everything before the last
// '@' masked.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if i := strings.LastIndex(raw, "@"); i >= 0 {
			return "xxxxx" + raw[i:]
		}
		return raw
	}
	return u.Redacted()
}

// ServerAddress returns the proxy URI without credentials, in the form
// Chromium accepts for --proxy-server and per-context proxies.
// socks5h is reported as socks5 because Chromium always resolves names
// through a SOCKS proxy.
func ServerAddress(u *url.URL) string {
	scheme := u.Scheme
	if scheme == SchemeSOCKS5H {
		scheme = SchemeSOCKS5
	}
	return scheme + "://" + u.Host
}

// Credentials returns the username and password embedded in u.
// A nil u has no credentials.
func Credentials(u *url.URL) (username, password string, ok bool) {
	if u == nil || u.User == nil {
		return "", "", false
	}
	password, _ = u.User.Password()
	return u.User.Username(), password, true
}
