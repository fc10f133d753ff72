package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"runtime/debug"
	"time"

	"github.com/die-net/socksd/internal/config"
	"github.com/die-net/socksd/internal/dialer"
)

var (
	ErrAccessDenied   = errors.New("protocol disabled by configuration")
	ErrUnknownVersion = errors.New("unknown protocol version")

	errBindPeerMismatch = errors.New("bind: peer address does not match request")
	errHandshakePanic   = errors.New("handshake panicked")
)

// Session is one accepted client connection.
type Session struct {
	Conn    net.Conn
	Version byte

	// Snapshot is the configuration in effect when the session was accepted.
	Snapshot *config.Snapshot

	Log *slog.Logger

	// replied is set once a request reply has been written to Conn.
	replied bool
}

// Handler runs the handshake for one protocol version and relays the
// session. Handle owns sess.Conn and closes it before returning.
type Handler interface {
	Handle(ctx context.Context, sess *Session) error
}

// handshake opens or accepts the remote connection, having already sent the
// final success reply. On error it has closed anything it opened, but not the
// client.
type handshake func(ctx context.Context, sess *Session) (net.Conn, error)

// handle runs hs and relays the session. fail writes the protocol's general
// failure reply; it is used when hs panics before replying.
func handle(ctx context.Context, sess *Session, hs handshake, fail func(*Session), exec Executor) error {
	remote, err := runHandshake(ctx, sess, hs, fail)
	if err != nil {
		_ = sess.Conn.Close()
		return err
	}

	_ = sess.Conn.SetDeadline(time.Time{})

	log := sess.Log.With("remote", remote.RemoteAddr().String())
	log.Debug("tunnel established")
	Tunnel(sess.Conn, remote, exec, log)
	log.Debug("tunnel closed")
	return nil
}

func runHandshake(ctx context.Context, sess *Session, hs handshake, fail func(*Session)) (remote net.Conn, err error) {
	defer func() {
		if r := recover(); r != nil {
			sess.Log.Error("handshake panic", "panic", r, "stack", string(debug.Stack()))
			if !sess.replied {
				fail(sess)
			}
			remote, err = nil, fmt.Errorf("%w: %v", errHandshakePanic, r)
		}
	}()
	return hs(ctx, sess)
}

// bindAddr is the address a BIND reply advertises: the listener's own
// address, or the client-facing local IP when the listener is bound to a
// wildcard.
func bindAddr(bl *dialer.BindListener, client net.Conn) netip.AddrPort {
	ap := bl.AddrPort()
	if !ap.Addr().IsUnspecified() {
		return ap
	}
	if la, ok := client.LocalAddr().(*net.TCPAddr); ok {
		local := la.AddrPort().Addr().Unmap()
		if local.Is4() == ap.Addr().Is4() {
			return netip.AddrPortFrom(local, ap.Port())
		}
	}
	return ap
}

func tcpAddrPort(a net.Addr) netip.AddrPort {
	if ta, ok := a.(*net.TCPAddr); ok {
		ap := ta.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return netip.AddrPort{}
}
