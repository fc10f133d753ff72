package proxy

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/die-net/socksd/internal/dialer"
	"github.com/die-net/socksd/internal/socks5"
)

// Socks5Handler serves SOCKS5 CONNECT and BIND with no authentication.
type Socks5Handler struct {
	cfg  Config
	exec Executor
}

func NewSocks5Handler(cfg Config, exec Executor) *Socks5Handler {
	return &Socks5Handler{cfg: cfg, exec: exec}
}

func (h *Socks5Handler) Handle(ctx context.Context, sess *Session) error {
	return handle(ctx, sess, h.handshake, h.fail, h.exec)
}

func (h *Socks5Handler) handshake(ctx context.Context, sess *Session) (net.Conn, error) {
	if err := socks5.Negotiate(sess.Conn); err != nil {
		return nil, err
	}

	req, err := socks5.ReadRequest(sess.Conn)
	if err != nil {
		switch {
		case errors.Is(err, socks5.ErrProtocol), errors.Is(err, socks5.ErrIllegalCommand):
			_ = h.reply(sess, socks5.StatusCommandNotSupported, socks5.ZeroEndpoint(socks5.ATYPIPv4))
		case errors.Is(err, socks5.ErrIllegalAddressType):
			_ = h.reply(sess, socks5.StatusAddressTypeNotSupported, socks5.ZeroEndpoint(socks5.ATYPIPv4))
		}
		return nil, err
	}
	sess.Log = sess.Log.With("target", req.String())

	target, err := h.resolve(ctx, req.Endpoint)
	if err != nil {
		_ = h.reply(sess, socks5.StatusHostUnreachable, req.Endpoint)
		return nil, err
	}

	if req.Command == socks5.CmdBind {
		return h.bind(ctx, sess, req, target)
	}
	return h.connect(ctx, sess, req, target)
}

func (h *Socks5Handler) resolve(ctx context.Context, ep socks5.Endpoint) (netip.AddrPort, error) {
	if ip, ok := ep.IP(); ok {
		return netip.AddrPortFrom(ip, ep.Port), nil
	}
	ip, err := h.cfg.Resolver.LookupIP(ctx, ep.Domain())
	if err != nil {
		return netip.AddrPort{}, err
	}
	return netip.AddrPortFrom(ip, ep.Port), nil
}

func (h *Socks5Handler) connect(ctx context.Context, sess *Session, req *socks5.Request, target netip.AddrPort) (net.Conn, error) {
	remote, err := h.cfg.Dialer.Dial(ctx, sess.Snapshot.OutgoingAddresses, target)
	if err != nil {
		status := socks5.StatusHostUnreachable
		if errors.Is(err, dialer.ErrNoRouteAvailable) {
			status = socks5.StatusGeneralFailure
		}
		_ = h.reply(sess, status, req.Endpoint)
		return nil, err
	}

	// The reply carries the outbound socket's local address, or the
	// requested name with the local port.
	local := tcpAddrPort(remote.LocalAddr())
	bound := socks5.EndpointFromAddrPort(local)
	if req.AddrType == socks5.ATYPDomain {
		bound = socks5.Endpoint{AddrType: socks5.ATYPDomain, Addr: req.Addr, Port: local.Port()}
	}

	if err := h.reply(sess, socks5.StatusSucceeded, bound); err != nil {
		_ = remote.Close()
		return nil, err
	}
	return remote, nil
}

func (h *Socks5Handler) bind(ctx context.Context, sess *Session, req *socks5.Request, target netip.AddrPort) (net.Conn, error) {
	bl, err := h.cfg.Dialer.Bind(ctx, sess.Snapshot.OutgoingAddresses, target.Addr(), target.Port())
	if err != nil {
		_ = h.reply(sess, socks5.StatusGeneralFailure, req.Endpoint)
		return nil, err
	}

	if err := h.reply(sess, socks5.StatusSucceeded, socks5.EndpointFromAddrPort(bindAddr(bl, sess.Conn))); err != nil {
		_ = bl.Close()
		return nil, err
	}
	sess.Log.Debug("bind listening", "bind", bl.AddrPort().String())

	_ = sess.Conn.SetDeadline(time.Time{})
	peer, err := bl.AcceptOne()
	if err != nil {
		status := socks5.StatusGeneralFailure
		if errors.Is(err, os.ErrDeadlineExceeded) {
			status = socks5.StatusConnectionRefused
		}
		_ = h.reply(sess, status, req.Endpoint)
		return nil, err
	}

	if err := h.reply(sess, socks5.StatusSucceeded, socks5.EndpointFromAddrPort(tcpAddrPort(peer.RemoteAddr()))); err != nil {
		_ = peer.Close()
		return nil, err
	}
	return peer, nil
}

func (h *Socks5Handler) reply(sess *Session, status byte, ep socks5.Endpoint) error {
	sess.replied = true
	return socks5.WriteReply(sess.Conn, status, ep)
}

func (h *Socks5Handler) fail(sess *Session) {
	_ = h.reply(sess, socks5.StatusGeneralFailure, socks5.ZeroEndpoint(socks5.ATYPIPv4))
}
