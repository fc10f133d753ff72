package dialer

import (
	"net"
	"time"
)

// BindAcceptTimeout bounds how long a BIND listener waits for its single
// inbound connection.
const BindAcceptTimeout = 180 * time.Second

type Config struct {
	DialTimeout time.Duration
	KeepAlive   net.KeepAliveConfig

	// AcceptTimeout overrides BindAcceptTimeout when non-zero.
	AcceptTimeout time.Duration
}
