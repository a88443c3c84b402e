package fetch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/headscrape/internal/proxy"
)

// WaitCondition is the navigation milestone render waits for.
type WaitCondition string

const (
	// WaitLoad waits for the load event.
	WaitLoad WaitCondition = "load"
	// WaitDOMContentLoaded waits for DOMContentLoaded.
	WaitDOMContentLoaded WaitCondition = "domcontentloaded"
	// WaitNetworkIdle waits until the network has been idle briefly.
	WaitNetworkIdle WaitCondition = "networkidle"
)

// ParseWaitCondition parses a navigation wait condition, case-insensitively.
func ParseWaitCondition(s string) (WaitCondition, error) {
	switch w := WaitCondition(strings.ToLower(strings.TrimSpace(s))); w {
	case WaitLoad, WaitDOMContentLoaded, WaitNetworkIdle:
		return w, nil
	default:
		return "", fmt.Errorf("unknown navigation wait condition %q", s)
	}
}

// Viewport is the browser window size in CSS pixels.
type Viewport struct {
	Width  int
	Height int
}

// Options are the per-call render parameters.
type Options struct {
	// Timeout bounds one render call, navigation included.
	Timeout time.Duration

	// WaitUntil is the navigation milestone to wait for.
	WaitUntil WaitCondition

	// Locale is the BCP 47 browser locale, e.g. "en-US".
	Locale string

	// TimezoneID is the IANA timezone, e.g. "Europe/London".
	TimezoneID string

	// Viewport is the emulated window size.
	Viewport Viewport

	// UserAgent overrides the browser user agent when set.
	UserAgent string

	// Settle is an extra pause after navigation for client-side hydration.
	Settle time.Duration
}

// Document is a rendered page.
type Document struct {
	// URL is the requested target.
	URL string

	// FinalURL is the URL after redirects.
	FinalURL string

	// Status is the HTTP status of the main document, 0 if unknown.
	Status int

	// HTML is the serialized DOM after rendering.
	HTML string
}

// Renderer renders a target through a proxy candidate.
// Errors should be *model.KindError so they can be classified; other
// errors are treated as network failures.
type Renderer interface {
	Render(ctx context.Context, target string, candidate proxy.Candidate, opts Options) (*Document, error)
}

// Extractor turns a rendered document into named fields.
// A document that lacks required fields yields a schema mismatch error.
type Extractor interface {
	Extract(doc *Document) (map[string]string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, target string, candidate proxy.Candidate, opts Options) (*Document, error)

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, target string, candidate proxy.Candidate, opts Options) (*Document, error) {
	return f(ctx, target, candidate, opts)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(doc *Document) (map[string]string, error)

// Extract calls f.
func (f ExtractorFunc) Extract(doc *Document) (map[string]string, error) {
	return f(doc)
}
