package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"time"

	"github.com/die-net/socksd/internal/config"
	"github.com/die-net/socksd/internal/socks4"
	"github.com/die-net/socksd/internal/socks5"
)

// Server accepts client connections and routes each to the handler for its
// protocol version.
type Server struct {
	ctx   context.Context
	cfg   Config
	store *config.Store
	pool  *Pool
	log   *slog.Logger

	socks4 Handler
	socks5 Handler
}

// NewServer returns a Server whose sessions run on pool and read their
// configuration from store. Cancelling ctx does not interrupt sessions
// already running.
func NewServer(ctx context.Context, cfg Config, store *config.Store, pool *Pool, log *slog.Logger) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{
		ctx:    context.WithoutCancel(ctx),
		cfg:    cfg,
		store:  store,
		pool:   pool,
		log:    log,
		socks4: NewSocks4Handler(cfg, pool),
		socks5: NewSocks5Handler(cfg, pool),
	}
}

// Serve accepts connections on ln until it is closed, then returns nil.
// Other accept errors are retried with backoff.
func (s *Server) Serve(ln net.Listener) error {
	log := s.log.With("listener", ln.Addr().String())

	var delay time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			delay = min(max(2*delay, 5*time.Millisecond), time.Second)
			log.Warn("accept failed", "err", err, "retry", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		if !s.pool.Submit(func() { s.serveConn(c, log) }) {
			log.Warn("session limit reached, dropping client", "client", c.RemoteAddr().String())
			_ = c.Close()
		}
	}
}

func (s *Server) serveConn(conn net.Conn, log *slog.Logger) {
	sess := &Session{
		Conn:     conn,
		Snapshot: s.store.Load(),
		Log:      log.With("client", conn.RemoteAddr().String()),
	}
	defer func() {
		if r := recover(); r != nil {
			_ = conn.Close()
			sess.Log.Error("session panic", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	if s.cfg.NegotiationTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.NegotiationTimeout))
	}

	h, err := s.Dispatch(sess)
	if err != nil {
		_ = conn.Close()
		sess.Log.Info("rejected connection", "err", err)
		return
	}

	if err := h.Handle(s.ctx, sess); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			sess.Log.Debug("session ended during handshake", "err", err)
			return
		}
		sess.Log.Info("session failed", "err", err)
	}
}

// Dispatch reads the version byte from sess.Conn and returns the handler for
// it, recording the version on sess. It does not close the connection.
func (s *Server) Dispatch(sess *Session) (Handler, error) {
	var b [1]byte
	if _, err := io.ReadFull(sess.Conn, b[:]); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	sess.Version = b[0]

	switch b[0] {
	case socks4.Version:
		if !sess.Snapshot.AllowSOCKS4 {
			return nil, fmt.Errorf("%w: socks4", ErrAccessDenied)
		}
		sess.Log = sess.Log.With("version", 4)
		return s.socks4, nil
	case socks5.Version:
		if !sess.Snapshot.AllowSOCKS5 {
			return nil, fmt.Errorf("%w: socks5", ErrAccessDenied)
		}
		sess.Log = sess.Log.With("version", 5)
		return s.socks5, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownVersion, b[0])
	}
}
