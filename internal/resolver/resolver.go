package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// ErrNotFound is returned when a hostname has no usable address.
var ErrNotFound = errors.New("host not found")

// Resolver resolves a hostname to a single IP address.
type Resolver interface {
	LookupIP(ctx context.Context, host string) (netip.Addr, error)
}

type Config struct {
	// Server is a DNS server address (host or host:port). Empty selects the
	// platform resolver.
	Server   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// New constructs the Resolver described by cfg.
func New(cfg Config) (Resolver, error) {
	var r Resolver
	if cfg.Server == "" {
		r = &systemResolver{timeout: cfg.Timeout, lookup: net.DefaultResolver.LookupNetIP}
	} else {
		d, err := newDNSResolver(cfg.Server, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		r = d
	}

	if cfg.CacheTTL > 0 {
		r = newCachingResolver(r, cfg.CacheTTL)
	}
	return r, nil
}

type systemResolver struct {
	timeout time.Duration
	lookup  func(ctx context.Context, network, host string) ([]netip.Addr, error)
}

func (r *systemResolver) LookupIP(ctx context.Context, host string) (netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return ip.Unmap(), nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ips, err := r.lookup(ctx, "ip", host)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return netip.Addr{}, fmt.Errorf("lookup %s: %w", host, ErrNotFound)
		}
		return netip.Addr{}, fmt.Errorf("lookup %s: %w", host, err)
	}
	if len(ips) == 0 {
		return netip.Addr{}, fmt.Errorf("lookup %s: %w", host, ErrNotFound)
	}
	return ips[0].Unmap(), nil
}
