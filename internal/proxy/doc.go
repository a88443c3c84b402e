// Package proxy provides layered proxy selection for the fetch core.
//
// A LayerSet holds the configured proxy layers in order, followed by the
// implicit "direct" layer that means "connect without a proxy". Within a
// layer proxies are handed out round-robin through a Cursor shared by every
// concurrent fetch attempt, so attempts interleave instead of all starting
// at the first proxy.
//
// # Selection
//
//	set, err := proxy.NewLayerSet([]proxy.Layer{
//	    {Name: "residential", Proxies: []string{"http://u:p@10.0.0.1:8080"}},
//	})
//	c, last := set.Next(0) // residential proxy, last == false
//	c, last = set.Next(7)  // direct, last == true
//
// Any layer index past the configured layers yields the direct layer, so a
// caller advancing through layers always has a candidate.
//
// # Probing
//
// Prober checks that a proxy accepts tunnels (SOCKS5 handshake or HTTP
// CONNECT) without involving the browser. EmbeddedTor launches a Tor daemon
// through tornago and exposes its SOCKS port as an ordinary proxy URI.
package proxy
