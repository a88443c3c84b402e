package proxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/nao1215/headscrape/internal/model"
	xproxy "golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
)

// DefaultProbeTarget is the host:port a proxy is asked to tunnel to.
const DefaultProbeTarget = "www.google.com:443"

// defaultProbeTimeout bounds a single probe, handshake included.
const defaultProbeTimeout = 5 * time.Second

// Status is the outcome of probing one proxy.
type Status int

const (
	// StatusOK means the proxy accepted a tunnel to the probe target.
	StatusOK Status = iota
	// StatusWrongType means something answered but did not speak the
	// protocol the URI scheme promised.
	StatusWrongType
	// StatusCannotConnect means no TCP connection to the proxy was possible.
	StatusCannotConnect
	// StatusTimeout means the proxy did not answer in time.
	StatusTimeout
	// StatusAuthFailed means the proxy rejected the credentials.
	StatusAuthFailed
	// StatusRejected means the proxy refused to tunnel to the probe target.
	StatusRejected
)

// String returns a human-readable description of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWrongType:
		return "wrong type"
	case StatusCannotConnect:
		return "cannot connect"
	case StatusTimeout:
		return "timeout"
	case StatusAuthFailed:
		return "auth failed"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Kind maps the status onto the fetch error taxonomy.
func (s Status) Kind() model.ErrorKind {
	switch s {
	case StatusOK:
		return model.KindNone
	case StatusTimeout:
		return model.KindTimeout
	case StatusAuthFailed:
		return model.KindProxyAuth
	case StatusCannotConnect:
		return model.KindConnectionRefused
	default:
		return model.KindProxyUnreachable
	}
}

// ProbeResult is the outcome of probing one candidate.
type ProbeResult struct {
	Candidate Candidate
	Status    Status
	Latency   time.Duration
	Err       error
}

// Prober checks proxies without starting a browser.
//
// A probe asks the proxy to open a tunnel to a fixed host:port and stops
// as soon as the tunnel is up; no request is sent through it. That is
// enough to separate dead, misconfigured and unauthorized proxies from
// working ones in a few seconds, before a scrape run spends its retry
// budget discovering the same thing through Chromium.
//
// Design decision: the probe speaks the proxy protocol itself (a SOCKS5
// handshake or an HTTP CONNECT) instead of issuing an HTTP request via
// http.Transport. A transport would hide which step failed, and the
// distinction between "cannot connect", "auth failed" and "rejected" is
// the whole point of the report.
//
// A Prober holds only configuration and is safe for concurrent use.
type Prober struct {
	target  string
	timeout time.Duration
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithProbeTarget sets the host:port the proxy is asked to tunnel to.
func WithProbeTarget(target string) ProberOption {
	return func(p *Prober) {
		p.target = target
	}
}

// WithProbeTimeout sets the per-proxy timeout.
func WithProbeTimeout(d time.Duration) ProberOption {
	return func(p *Prober) {
		p.timeout = d
	}
}

// NewProber creates a Prober.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		target:  DefaultProbeTarget,
		timeout: defaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check probes a single candidate. Direct candidates are always OK.
//
// The timeout covers the whole probe, TCP connect and handshake included,
// and Latency is measured over the same span. A failed probe carries the
// underlying error in Err alongside the classified Status.
func (p *Prober) Check(ctx context.Context, c Candidate) ProbeResult {
	res := ProbeResult{Candidate: c}
	if c.Direct || c.URL == nil {
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	var err error
	switch c.URL.Scheme {
	case SchemeSOCKS5, SchemeSOCKS5H:
		res.Status, err = p.checkSOCKS5(ctx, c)
	default:
		res.Status, err = p.checkHTTPConnect(ctx, c)
	}
	res.Latency = time.Since(start)
	res.Err = err
	return res
}

// CheckAll probes candidates concurrently. Results are in input order.
//
// At most concurrency probes run at once; values below one probe
// sequentially. A probe never fails the batch, so every candidate gets a
// result even when ctx ends early (those results report a timeout).
func (p *Prober) CheckAll(ctx context.Context, candidates []Candidate, concurrency int) []ProbeResult {
	results := make([]ProbeResult, len(candidates))
	if concurrency < 1 {
		concurrency = 1
	}

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			results[i] = p.Check(ctx, c)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	return results
}

// checkSOCKS5 performs a SOCKS5 handshake, authenticating when the URI
// carries credentials, and asks for a CONNECT to the probe target.
// socks5h is dialed as socks5: x/net/proxy always sends the hostname and
// lets the proxy resolve it, which is exactly what socks5h means.
func (p *Prober) checkSOCKS5(ctx context.Context, c Candidate) (Status, error) {
	u := *c.URL
	if u.Scheme == SchemeSOCKS5H {
		u.Scheme = SchemeSOCKS5
	}

	d, err := xproxy.FromURL(&u, &net.Dialer{Timeout: p.timeout})
	if err != nil {
		return StatusWrongType, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	cd, ok := d.(xproxy.ContextDialer)
	if !ok {
		return StatusWrongType, errors.New("SOCKS5 dialer does not support contexts")
	}

	conn, err := cd.DialContext(ctx, "tcp", p.target)
	if err != nil {
		return classifyProbeError(ctx, err), err
	}
	_ = conn.Close() //nolint:errcheck // probe connection only

	return StatusOK, nil
}

// checkHTTPConnect sends a CONNECT request to an HTTP or HTTPS proxy and
// classifies the status line. Credentials go in Proxy-Authorization as
// Basic auth, the same way Chromium answers the proxy's challenge, so a
// 407 here predicts a proxy_auth failure during the scrape.
func (p *Prober) checkHTTPConnect(ctx context.Context, c Candidate) (Status, error) {
	var (
		conn net.Conn
		err  error
	)
	if c.URL.Scheme == SchemeHTTPS {
		d := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: p.timeout},
			Config:    &tls.Config{ServerName: c.URL.Hostname(), MinVersion: tls.VersionTLS12},
		}
		conn, err = d.DialContext(ctx, "tcp", c.URL.Host)
	} else {
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", c.URL.Host)
	}
	if err != nil {
		return classifyProbeError(ctx, err), err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return StatusCannotConnect, err
		}
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", p.target, p.target)
	if user, pass, ok := Credentials(c.URL); ok {
		token := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
		req += "Proxy-Authorization: Basic " + token + "\r\n"
	}
	req += "\r\n"

	if _, err := conn.Write([]byte(req)); err != nil {
		return classifyProbeError(ctx, err), err
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return StatusTimeout, err
		}
		return StatusWrongType, fmt.Errorf("unexpected CONNECT reply: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return StatusOK, nil
	case resp.StatusCode == http.StatusProxyAuthRequired:
		return StatusAuthFailed, fmt.Errorf("proxy answered %s", resp.Status)
	default:
		return StatusRejected, fmt.Errorf("proxy answered %s", resp.Status)
	}
}

// classifyProbeError maps a dial or handshake error to a Status.
// Typed errors are checked first. x/net/proxy reports SOCKS failures only
// as formatted strings, so the remaining cases fall back to matching the
// message. Anything unrecognized is reported as rejected: something
// answered, but the tunnel was not established.
func classifyProbeError(ctx context.Context, err error) Status {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		return StatusTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return StatusTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return StatusCannotConnect
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "authentication failed"),
		strings.Contains(msg, "no acceptable authentication methods"):
		return StatusAuthFailed
	case strings.Contains(msg, "unexpected protocol version"):
		return StatusWrongType
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"):
		return StatusCannotConnect
	default:
		return StatusRejected
	}
}
