package dialer

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// Dialer opens outbound connections and BIND listeners from a chosen source
// address.
type Dialer struct {
	cfg Config
}

func New(cfg Config) *Dialer {
	return &Dialer{cfg: cfg}
}

// Dial connects to target from the source address SelectSource picks.
func (d *Dialer) Dial(ctx context.Context, sources []netip.Addr, target netip.AddrPort) (net.Conn, error) {
	src, err := SelectSource(sources, target.Addr())
	if err != nil {
		return nil, err
	}

	dd := net.Dialer{
		Timeout:         d.cfg.DialTimeout,
		KeepAliveConfig: d.cfg.KeepAlive,
	}
	if !src.IsUnspecified() {
		dd.LocalAddr = net.TCPAddrFromAddrPort(netip.AddrPortFrom(src, 0))
	}

	conn, err := dd.DialContext(ctx, "tcp", target.String())
	if err != nil {
		return nil, fmt.Errorf("dial %s from %s: %w", target, src, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	return conn, nil
}

// Bind opens a listener for a BIND request towards target. The suggested
// port is tried first; if it cannot be bound an ephemeral port is used.
func (d *Dialer) Bind(ctx context.Context, sources []netip.Addr, target netip.Addr, suggestedPort uint16) (*BindListener, error) {
	src, err := SelectSource(sources, target)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{KeepAliveConfig: d.cfg.KeepAlive}
	network := "tcp6"
	if src.Is4() {
		network = "tcp4"
	}

	var ln net.Listener
	if suggestedPort != 0 {
		ln, err = lc.Listen(ctx, network, netip.AddrPortFrom(src, suggestedPort).String())
	}
	if ln == nil {
		ln, err = lc.Listen(ctx, network, netip.AddrPortFrom(src, 0).String())
	}
	if err != nil {
		return nil, fmt.Errorf("bind %s for %s: %w", src, target, err)
	}

	timeout := d.cfg.AcceptTimeout
	if timeout <= 0 {
		timeout = BindAcceptTimeout
	}

	tl := ln.(*net.TCPListener)
	if err := tl.SetDeadline(time.Now().Add(timeout)); err != nil {
		_ = tl.Close()
		return nil, fmt.Errorf("bind %s: %w", tl.Addr(), err)
	}

	return &BindListener{TCPListener: tl}, nil
}

// BindListener is a listener that accepts exactly one connection before its
// deadline.
type BindListener struct {
	*net.TCPListener
}

// AddrPort returns the bound address and port.
func (l *BindListener) AddrPort() netip.AddrPort {
	ap := l.TCPListener.Addr().(*net.TCPAddr).AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// AcceptOne accepts a single connection and closes the listener.
func (l *BindListener) AcceptOne() (*net.TCPConn, error) {
	defer l.Close()

	conn, err := l.AcceptTCP()
	if err != nil {
		return nil, fmt.Errorf("accept on %s: %w", l.Addr(), err)
	}
	_ = conn.SetNoDelay(true)
	return conn, nil
}
