package proxy

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
)

// DirectLayerName names the terminal pseudo-layer that uses no proxy.
const DirectLayerName = "direct"

// Layer is a named, ordered pool of proxy URIs as loaded from configuration.
type Layer struct {
	// Name identifies the layer in logs and results.
	Name string

	// Proxies are the proxy URIs of this layer, in configured order.
	Proxies []string
}

// Candidate is one proxy selection.
type Candidate struct {
	// Layer is the name of the layer the candidate came from.
	Layer string

	// URL is the parsed proxy URI. Nil for the direct layer.
	URL *url.URL

	// Direct is true for the direct pseudo-layer.
	Direct bool
}

// String returns the redacted proxy URI, or "direct".
func (c Candidate) String() string {
	if c.Direct || c.URL == nil {
		return DirectLayerName
	}
	return c.URL.Redacted()
}

// Redacted returns the redacted proxy URI, or "" for direct connections.
func (c Candidate) Redacted() string {
	if c.Direct || c.URL == nil {
		return ""
	}
	return c.URL.Redacted()
}

// layer is the immutable, validated form of Layer plus its cursor.
type layer struct {
	name    string
	proxies []*url.URL
	cursor  *Cursor
}

// LayerSet is the ordered set of proxy layers followed by the direct layer.
// The layer list is read-only after construction; the per-layer cursors are
// the only mutable state and are safe for concurrent use.
//
// Layers are usually ordered from most to least trusted (for example
// residential, then datacenter, then Tor). An attempt starts at the first
// layer and only moves down when its current layer keeps failing, so
// cheap or noisy pools are used only after the preferred ones failed.
//
// Design decision: the direct layer is implicit and always last. Next
// never fails: any index past the configured layers yields the direct
// candidate, indefinitely. A fetch attempt therefore needs no "out of
// proxies" branch, and a configuration with no proxies at all simply
// fetches every target directly.
//
// Design decision: the cursor belongs to the layer, not to the attempt.
// Concurrent attempts that sit on the same layer share one rotation, so
// load spreads across its proxies instead of every attempt starting at
// index 0.
type LayerSet struct {
	layers []layer
}

// Option configures a LayerSet.
type Option func(*layerSetOptions)

type layerSetOptions struct {
	shuffle *rand.Rand
}

// WithShuffle shuffles each layer's proxies once at construction time, so
// separate runs do not always start at the first configured proxy.
func WithShuffle(r *rand.Rand) Option {
	return func(o *layerSetOptions) {
		o.shuffle = r
	}
}

// NewLayerSet validates layers and builds a LayerSet.
// Layers with no proxies are skipped. Layer names must be unique and must
// not collide with the direct layer.
func NewLayerSet(layers []Layer, opts ...Option) (*LayerSet, error) {
	var o layerSetOptions
	for _, opt := range opts {
		opt(&o)
	}

	seen := make(map[string]bool, len(layers))
	set := &LayerSet{layers: make([]layer, 0, len(layers))}

	for _, l := range layers {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			return nil, ErrEmptyLayerName
		}
		if strings.EqualFold(name, DirectLayerName) {
			return nil, ErrReservedLayerName
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateLayer, name)
		}
		seen[name] = true

		proxies := make([]*url.URL, 0, len(l.Proxies))
		for _, raw := range l.Proxies {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			u, err := ParseURI(raw)
			if err != nil {
				return nil, fmt.Errorf("layer %q: %w", name, err)
			}
			proxies = append(proxies, u)
		}
		if len(proxies) == 0 {
			continue
		}

		if o.shuffle != nil {
			o.shuffle.Shuffle(len(proxies), func(i, j int) {
				proxies[i], proxies[j] = proxies[j], proxies[i]
			})
		}

		set.layers = append(set.layers, layer{
			name:    name,
			proxies: proxies,
			cursor:  &Cursor{},
		})
	}

	return set, nil
}

// Next selects a candidate from the layer at layerIndex and reports whether
// that candidate is the direct layer. Any index at or beyond the configured
// layers selects the direct layer; negative indexes select the first layer.
func (s *LayerSet) Next(layerIndex int) (Candidate, bool) {
	if layerIndex < 0 {
		layerIndex = 0
	}
	if layerIndex >= len(s.layers) {
		return Candidate{Layer: DirectLayerName, Direct: true}, true
	}

	l := s.layers[layerIndex]
	return Candidate{Layer: l.name, URL: l.proxies[l.cursor.Next(len(l.proxies))]}, false
}

// Len returns the number of proxy layers, not counting direct.
func (s *LayerSet) Len() int {
	return len(s.layers)
}

// DirectIndex returns the layer index that selects the direct layer.
func (s *LayerSet) DirectIndex() int {
	return len(s.layers)
}

// Layers returns the layer names in selection order, ending with "direct".
func (s *LayerSet) Layers() []string {
	names := make([]string, 0, len(s.layers)+1)
	for _, l := range s.layers {
		names = append(names, l.name)
	}
	return append(names, DirectLayerName)
}

// All returns every configured proxy as a candidate, in layer order,
// without moving any cursor.
func (s *LayerSet) All() []Candidate {
	var out []Candidate
	for _, l := range s.layers {
		for _, u := range l.proxies {
			out = append(out, Candidate{Layer: l.name, URL: u})
		}
	}
	return out
}
