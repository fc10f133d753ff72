//go:build !linux

package proxy

import (
	"context"
	"net"
)

// listenBacklog ignores backlog; the platform default applies.
func listenBacklog(addr string, _ int) (net.Listener, error) {
	lc := net.ListenConfig{}
	return lc.Listen(context.Background(), "tcp", addr)
}
