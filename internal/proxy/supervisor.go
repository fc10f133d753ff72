package proxy

import (
	"errors"
	"log/slog"
	"net"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/socksd/internal/config"
)

// Supervisor keeps one accept loop running per configured listen address.
// A failure on one address is logged and does not affect the others.
type Supervisor struct {
	srv *Server
	log *slog.Logger

	mu        sync.Mutex
	listeners map[string]*supervised
	g         errgroup.Group
}

type supervised struct {
	ln      net.Listener
	backlog int
}

func NewSupervisor(srv *Server, log *slog.Logger) *Supervisor {
	return &Supervisor{srv: srv, log: log, listeners: make(map[string]*supervised)}
}

// Apply starts listeners for addresses in snap that are not yet served and
// stops those no longer present. A changed backlog restarts the listener.
// Sessions already accepted are unaffected. The returned error joins every
// listen failure.
func (s *Supervisor) Apply(snap *config.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for addr, l := range s.listeners {
		if slices.Contains(snap.Listen, addr) && l.backlog == snap.Backlog {
			continue
		}
		_ = l.ln.Close()
		delete(s.listeners, addr)
		s.log.Info("stopped listening", "listen", addr)
	}

	var errs []error
	for _, addr := range snap.Listen {
		if _, ok := s.listeners[addr]; ok {
			continue
		}

		ln, err := ListenTCP(addr, snap.Backlog, s.srv.cfg.KeepAlive)
		if err != nil {
			s.log.Error("listen failed", "listen", addr, "err", err)
			errs = append(errs, err)
			continue
		}
		s.listeners[addr] = &supervised{ln: ln, backlog: snap.Backlog}

		s.g.Go(func() error {
			if err := s.srv.Serve(ln); err != nil {
				s.log.Error("listener stopped", "listen", addr, "err", err)
			}
			return nil
		})
		s.log.Info("listening", "listen", addr, "addr", ln.Addr().String(), "backlog", snap.Backlog)
	}

	return errors.Join(errs...)
}

// Addrs returns the bound address of each running listener, keyed by its
// configured address.
func (s *Supervisor) Addrs() map[string]net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]net.Addr, len(s.listeners))
	for addr, l := range s.listeners {
		m[addr] = l.ln.Addr()
	}
	return m
}

// Close stops every listener and waits for the accept loops to return.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	for addr, l := range s.listeners {
		_ = l.ln.Close()
		delete(s.listeners, addr)
	}
	s.mu.Unlock()

	return s.g.Wait()
}
