package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/ginuerzh/gosocks4"

	"github.com/die-net/socksd/internal/socks4"
)

// Socks4Handler serves SOCKS4 and SOCKS4a CONNECT and BIND.
type Socks4Handler struct {
	cfg  Config
	exec Executor
}

func NewSocks4Handler(cfg Config, exec Executor) *Socks4Handler {
	return &Socks4Handler{cfg: cfg, exec: exec}
}

func (h *Socks4Handler) Handle(ctx context.Context, sess *Session) error {
	return handle(ctx, sess, h.handshake, h.fail, h.exec)
}

func (h *Socks4Handler) handshake(ctx context.Context, sess *Session) (net.Conn, error) {
	req, err := socks4.ReadRequest(sess.Conn)
	if err != nil {
		switch {
		case errors.Is(err, socks4.ErrIllegalCommand):
			_ = h.reply(sess, socks4.StatusRejected, netip.AddrPort{})
		case errors.Is(err, socks4.ErrProtocol):
			_ = h.reply(sess, socks4.StatusRejected, req.Addr())
		}
		return nil, err
	}

	target := req.Addr()
	if req.IsSOCKS4a() {
		sess.Log = sess.Log.With("target", fmt.Sprintf("%s:%d", req.Hostname, req.Port))
		ip, err := h.cfg.Resolver.LookupIP(ctx, req.Hostname)
		if err != nil {
			_ = h.reply(sess, socks4.StatusRejected, req.Addr())
			return nil, err
		}
		target = netip.AddrPortFrom(ip, req.Port)
	} else {
		sess.Log = sess.Log.With("target", target.String())
	}

	if req.Command == socks4.CmdBind {
		return h.bind(ctx, sess, req, target)
	}
	return h.connect(ctx, sess, req, target)
}

func (h *Socks4Handler) connect(ctx context.Context, sess *Session, req *socks4.Request, target netip.AddrPort) (net.Conn, error) {
	remote, err := h.cfg.Dialer.Dial(ctx, sess.Snapshot.OutgoingAddresses, target)
	if err != nil {
		_ = h.reply(sess, socks4.StatusRejected, req.Addr())
		return nil, err
	}

	if err := h.reply(sess, socks4.StatusGranted, tcpAddrPort(remote.RemoteAddr())); err != nil {
		_ = remote.Close()
		return nil, err
	}
	return remote, nil
}

func (h *Socks4Handler) bind(ctx context.Context, sess *Session, req *socks4.Request, target netip.AddrPort) (net.Conn, error) {
	bl, err := h.cfg.Dialer.Bind(ctx, sess.Snapshot.OutgoingAddresses, target.Addr(), target.Port())
	if err != nil {
		_ = h.reply(sess, socks4.StatusRejected, req.Addr())
		return nil, err
	}

	if err := h.reply(sess, socks4.StatusGranted, bindAddr(bl, sess.Conn)); err != nil {
		_ = bl.Close()
		return nil, err
	}
	sess.Log.Debug("bind listening", "bind", bl.AddrPort().String())

	_ = sess.Conn.SetDeadline(time.Time{})
	peer, err := bl.AcceptOne()
	if err != nil {
		_ = h.reply(sess, socks4.StatusRejected, req.Addr())
		return nil, err
	}

	peerAddr := tcpAddrPort(peer.RemoteAddr())
	if peerAddr.Addr() != target.Addr() {
		_ = h.reply(sess, socks4.StatusRejected, peerAddr)
		_ = peer.Close()
		return nil, fmt.Errorf("%w: got %s, want %s", errBindPeerMismatch, peerAddr.Addr(), target.Addr())
	}

	if err := h.reply(sess, socks4.StatusGranted, peerAddr); err != nil {
		_ = peer.Close()
		return nil, err
	}
	return peer, nil
}

// reply writes the eight-byte reply for addr. Addresses that are not IPv4
// are sent as 0.0.0.0.
func (h *Socks4Handler) reply(sess *Session, status byte, addr netip.AddrPort) error {
	ip := addr.Addr().Unmap()
	if !ip.Is4() {
		ip = netip.IPv4Unspecified()
	}
	sess.replied = true
	rep := gosocks4.NewReply(status, &gosocks4.Addr{Type: gosocks4.AddrIPv4, Host: ip.String(), Port: addr.Port()})
	if err := rep.Write(sess.Conn); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

func (h *Socks4Handler) fail(sess *Session) {
	_ = h.reply(sess, socks4.StatusRejected, netip.AddrPort{})
}
