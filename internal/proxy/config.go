package proxy

import (
	"net"
	"time"

	"github.com/die-net/socksd/internal/dialer"
	"github.com/die-net/socksd/internal/resolver"
)

type Config struct {
	// NegotiationTimeout bounds the handshake, from the version byte to the
	// final reply. Zero disables it.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	Dialer   *dialer.Dialer
	Resolver resolver.Resolver
}
