package proxy

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/nao1215/headscrape/internal/model"
)

// serve accepts connections on a loopback listener and hands each to handle.
func serve(t *testing.T, handle func(net.Conn)) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()

	return ln.Addr().String()
}

// connectProxy answers CONNECT requests, requiring basic auth when user is set.
func connectProxy(user, pass string) func(net.Conn) {
	return func(conn net.Conn) {
		req, err := http.ReadRequest(bufio.NewReader(conn))
		if err != nil {
			return
		}
		if req.Method != http.MethodConnect {
			_, _ = io.WriteString(conn, "HTTP/1.1 405 Method Not Allowed\r\n\r\n")
			return
		}
		if user != "" {
			want := "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
			if req.Header.Get("Proxy-Authorization") != want {
				_, _ = io.WriteString(conn, "HTTP/1.1 407 Proxy Authentication Required\r\n\r\n")
				return
			}
		}
		_, _ = io.WriteString(conn, "HTTP/1.1 200 Connection established\r\n\r\n")
	}
}

// socks5Server speaks just enough SOCKS5 to accept one CONNECT.
func socks5Server(user, pass string) func(net.Conn) {
	return func(conn net.Conn) {
		r := bufio.NewReader(conn)

		head := make([]byte, 2)
		if _, err := io.ReadFull(r, head); err != nil || head[0] != 0x05 {
			return
		}
		methods := make([]byte, head[1])
		if _, err := io.ReadFull(r, methods); err != nil {
			return
		}

		if user == "" {
			_, _ = conn.Write([]byte{0x05, 0x00})
		} else {
			_, _ = conn.Write([]byte{0x05, 0x02})
			ver := make([]byte, 2)
			if _, err := io.ReadFull(r, ver); err != nil {
				return
			}
			u := make([]byte, ver[1])
			if _, err := io.ReadFull(r, u); err != nil {
				return
			}
			plen, err := r.ReadByte()
			if err != nil {
				return
			}
			p := make([]byte, plen)
			if _, err := io.ReadFull(r, p); err != nil {
				return
			}
			if string(u) != user || string(p) != pass {
				_, _ = conn.Write([]byte{0x01, 0x01})
				return
			}
			_, _ = conn.Write([]byte{0x01, 0x00})
		}

		req := make([]byte, 4)
		if _, err := io.ReadFull(r, req); err != nil {
			return
		}
		switch req[3] {
		case 0x01:
			_, _ = io.ReadFull(r, make([]byte, 4+2))
		case 0x03:
			n, err := r.ReadByte()
			if err != nil {
				return
			}
			_, _ = io.ReadFull(r, make([]byte, int(n)+2))
		case 0x04:
			_, _ = io.ReadFull(r, make([]byte, 16+2))
		}
		_, _ = conn.Write([]byte{0x05, 0x00, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	}
}

func candidate(t *testing.T, raw string) Candidate {
	t.Helper()

	u, err := ParseURI(raw)
	if err != nil {
		t.Fatalf("ParseURI(%q): %v", raw, err)
	}
	return Candidate{Layer: "test", URL: u}
}

func TestProberCheck(t *testing.T) {
	t.Parallel()

	httpOpen := serve(t, connectProxy("", ""))
	httpAuth := serve(t, connectProxy("alice", "pw"))
	socksOpen := serve(t, socks5Server("", ""))
	socksAuth := serve(t, socks5Server("alice", "pw"))
	notAProxy := serve(t, func(conn net.Conn) {
		if _, err := http.ReadRequest(bufio.NewReader(conn)); err != nil {
			return
		}
		_, _ = io.WriteString(conn, "SSH-2.0-OpenSSH_9.0\r\n")
	})

	// A listener that is closed immediately leaves a port nobody answers on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closedAddr := ln.Addr().String()
	_ = ln.Close()

	testCases := []struct {
		name string
		uri  string
		want Status
	}{
		{"http proxy without auth", "http://" + httpOpen, StatusOK},
		{"http proxy with good credentials", "http://alice:pw@" + httpAuth, StatusOK},
		{"http proxy with bad credentials", "http://alice:nope@" + httpAuth, StatusAuthFailed},
		{"socks5 without auth", "socks5://" + socksOpen, StatusOK},
		{"socks5h without auth", "socks5h://" + socksOpen, StatusOK},
		{"socks5 with good credentials", "socks5://alice:pw@" + socksAuth, StatusOK},
		{"socks5 with bad credentials", "socks5://alice:nope@" + socksAuth, StatusAuthFailed},
		{"http scheme on a non proxy", "http://" + notAProxy, StatusWrongType},
		{"nothing listening", "http://" + closedAddr, StatusCannotConnect},
	}

	p := NewProber(WithProbeTarget("example.com:443"), WithProbeTimeout(2*time.Second))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			res := p.Check(context.Background(), candidate(t, tc.uri))
			if res.Status != tc.want {
				t.Errorf("Check(%s) = %v (err: %v), expected %v", Redact(tc.uri), res.Status, res.Err, tc.want)
			}
			if tc.want == StatusOK && res.Err != nil {
				t.Errorf("unexpected error: %v", res.Err)
			}
		})
	}
}

func TestProberCheckDirect(t *testing.T) {
	t.Parallel()

	res := NewProber().Check(context.Background(), Candidate{Layer: DirectLayerName, Direct: true})
	if res.Status != StatusOK || res.Err != nil {
		t.Errorf("direct probe = %v, %v; expected OK", res.Status, res.Err)
	}
}

func TestProberCheckAllKeepsOrder(t *testing.T) {
	t.Parallel()

	good := serve(t, connectProxy("", ""))
	bad := serve(t, connectProxy("alice", "pw"))

	cs := []Candidate{
		candidate(t, "http://"+bad),
		candidate(t, "http://"+good),
		candidate(t, "http://"+bad),
	}
	results := NewProber(WithProbeTarget("example.com:443")).CheckAll(context.Background(), cs, 2)

	want := []Status{StatusAuthFailed, StatusOK, StatusAuthFailed}
	for i, res := range results {
		if res.Status != want[i] {
			t.Errorf("results[%d].Status = %v, expected %v", i, res.Status, want[i])
		}
		if res.Candidate.URL.Host != cs[i].URL.Host {
			t.Errorf("results[%d] is for %s, expected %s", i, res.Candidate.URL.Host, cs[i].URL.Host)
		}
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		status Status
		str    string
		kind   model.ErrorKind
	}{
		{StatusOK, "OK", model.KindNone},
		{StatusWrongType, "wrong type", model.KindProxyUnreachable},
		{StatusCannotConnect, "cannot connect", model.KindConnectionRefused},
		{StatusTimeout, "timeout", model.KindTimeout},
		{StatusAuthFailed, "auth failed", model.KindProxyAuth},
		{StatusRejected, "rejected", model.KindProxyUnreachable},
		{Status(99), "unknown", model.KindProxyUnreachable},
	}
	for _, tc := range testCases {
		if got := tc.status.String(); got != tc.str {
			t.Errorf("Status(%d).String() = %q, expected %q", tc.status, got, tc.str)
		}
		if got := tc.status.Kind(); got != tc.kind {
			t.Errorf("Status(%d).Kind() = %v, expected %v", tc.status, got, tc.kind)
		}
	}
}

func TestEmbeddedTorNotRunning(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor(WithTorStartupTimeout(time.Second))
	if e.IsRunning() {
		t.Fatal("new EmbeddedTor reports running")
	}
	if _, err := e.ProxyURI(); err != ErrTorNotRunning {
		t.Errorf("ProxyURI() error = %v, expected ErrTorNotRunning", err)
	}
	if err := e.Stop(); err != nil {
		t.Errorf("Stop() on unstarted instance = %v", err)
	}
}
