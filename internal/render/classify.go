package render

import (
	"context"
	"errors"
	"strings"

	"github.com/nao1215/headscrape/internal/model"
)

// chromeErrorKinds maps Chromium net error codes onto error kinds.
// Codes not listed fall back to KindNetwork.
var chromeErrorKinds = []struct {
	code string
	kind model.ErrorKind
}{
	{"ERR_TIMED_OUT", model.KindTimeout},
	{"ERR_CONNECTION_TIMED_OUT", model.KindTimeout},
	{"ERR_CONNECTION_REFUSED", model.KindConnectionRefused},
	{"ERR_PROXY_AUTH_UNSUPPORTED", model.KindProxyAuth},
	{"ERR_PROXY_AUTH_REQUESTED", model.KindProxyAuth},
	{"ERR_INVALID_AUTH_CREDENTIALS", model.KindProxyAuth},
	{"ERR_PROXY_CONNECTION_FAILED", model.KindProxyUnreachable},
	{"ERR_TUNNEL_CONNECTION_FAILED", model.KindProxyUnreachable},
	{"ERR_SOCKS_CONNECTION_FAILED", model.KindProxyUnreachable},
	{"ERR_SOCKS_CONNECTION_HOST_UNREACHABLE", model.KindProxyUnreachable},
	{"ERR_PROXY_CERTIFICATE_INVALID", model.KindProxyUnreachable},
	{"ERR_NO_SUPPORTED_PROXIES", model.KindProxyUnreachable},
	{"ERR_MANDATORY_PROXY_CONFIGURATION_FAILED", model.KindProxyUnreachable},
	{"ERR_INVALID_URL", model.KindInvalidTarget},
	{"ERR_UNSAFE_PORT", model.KindInvalidTarget},
	{"ERR_DISALLOWED_URL_SCHEME", model.KindInvalidTarget},
	{"ERR_UNKNOWN_URL_SCHEME", model.KindInvalidTarget},
}

// Classify tags err with an error kind. Errors that already carry a kind
// are returned unchanged; nil stays nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var ke *model.KindError
	if errors.As(err, &ke) {
		return err
	}
	return model.NewKindError(classifyKind(err), err)
}

func classifyKind(err error) model.ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.KindTimeout
	case errors.Is(err, context.Canceled):
		return model.KindCancelled
	}

	msg := strings.ToUpper(err.Error())
	for _, e := range chromeErrorKinds {
		if strings.Contains(msg, e.code) {
			return e.kind
		}
	}
	if strings.Contains(msg, "CONTEXT DEADLINE EXCEEDED") {
		return model.KindTimeout
	}
	return model.KindNetwork
}

// statusError classifies a main document HTTP status. Zero means the
// status was not observed and is accepted.
func statusError(target string, status int) error {
	if status == 0 || (status >= 200 && status < 300) {
		return nil
	}
	return model.Errorf(model.KindBadStatus, "%s answered HTTP %d", target, status)
}
