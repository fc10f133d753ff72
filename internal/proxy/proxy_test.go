package proxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/die-net/socksd/internal/config"
	"github.com/die-net/socksd/internal/dialer"
	"github.com/die-net/socksd/internal/logging"
	"github.com/die-net/socksd/internal/resolver"
)

type staticResolver map[string]netip.Addr

func (r staticResolver) LookupIP(_ context.Context, host string) (netip.Addr, error) {
	if ip, ok := r[host]; ok {
		return ip, nil
	}
	return netip.Addr{}, resolver.ErrNotFound
}

func testConfig() Config {
	return Config{
		NegotiationTimeout: 5 * time.Second,
		Dialer:             dialer.New(dialer.Config{DialTimeout: 2 * time.Second, AcceptTimeout: 5 * time.Second}),
		Resolver:           staticResolver{"echo.test": netip.MustParseAddr("127.0.0.1")},
	}
}

type serverOptions struct {
	allowSOCKS4 bool
	allowSOCKS5 bool
	maxSessions int
}

func defaultOptions() serverOptions {
	return serverOptions{allowSOCKS4: true, allowSOCKS5: true}
}

// startServer runs a Server on a loopback listener and returns its address.
func startServer(t *testing.T, opts serverOptions) string {
	t.Helper()
	return startServerWithConfig(t, testConfig(), opts)
}

func startServerWithConfig(t *testing.T, cfg Config, opts serverOptions) string {
	t.Helper()

	c := config.Default()
	c.Listen = []string{"127.0.0.1:0"}
	c.AllowSOCKS4 = opts.allowSOCKS4
	c.AllowSOCKS5 = opts.allowSOCKS5
	snap, err := c.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	pool := NewPool(opts.maxSessions)
	srv := NewServer(t.Context(), cfg, config.NewStore(snap), pool, logging.Discard())

	ln, err := ListenTCP("127.0.0.1:0", snap.Backlog, net.KeepAliveConfig{})
	if err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
	})

	return ln.Addr().String()
}

func dialProxy(t *testing.T, addr string) net.Conn {
	t.Helper()

	c, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	_ = c.SetDeadline(time.Now().Add(10 * time.Second))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func mustWrite(t *testing.T, w io.Writer, b []byte) {
	t.Helper()

	if _, err := w.Write(b); err != nil {
		t.Fatal(err)
	}
}

func expectBytes(t *testing.T, r io.Reader, want []byte) {
	t.Helper()

	got := make([]byte, len(want))
	if _, err := io.ReadFull(r, got); err != nil {
		t.Fatalf("read %d bytes: %v", len(want), err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}

// expectClosed asserts the server closes c without sending anything more.
func expectClosed(t *testing.T, c net.Conn) {
	t.Helper()

	var b [1]byte
	n, err := c.Read(b[:])
	if n != 0 || err == nil {
		t.Fatalf("expected closed connection, got %d bytes, err %v", n, err)
	}
}

// unusedPort returns a loopback address nothing is listening on.
func unusedPort(t *testing.T) netip.AddrPort {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ap := ln.Addr().(*net.TCPAddr).AddrPort()
	_ = ln.Close()
	return ap
}

func addrPort(t *testing.T, a net.Addr) netip.AddrPort {
	t.Helper()

	ap := tcpAddrPort(a)
	if !ap.IsValid() {
		t.Fatalf("not a TCP address: %v", a)
	}
	return ap
}
