package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

type dnsResolver struct {
	server string
	client *dns.Client
}

func newDNSResolver(server string, timeout time.Duration) (*dnsResolver, error) {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		return nil, fmt.Errorf("dns server %q: %w", server, err)
	}

	return &dnsResolver{
		server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}, nil
}

// LookupIP asks for A records first and falls back to AAAA.
func (r *dnsResolver) LookupIP(ctx context.Context, host string) (netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return ip.Unmap(), nil
	}

	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		ip, err := r.query(ctx, host, qtype)
		if err == nil {
			return ip, nil
		}
		lastErr = err
	}
	return netip.Addr{}, lastErr
}

func (r *dnsResolver) query(ctx context.Context, host string, qtype uint16) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("dns %s %s: %w", dns.TypeToString[qtype], host, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("dns %s %s: %s: %w", dns.TypeToString[qtype], host, dns.RcodeToString[in.Rcode], ErrNotFound)
	}

	for _, rr := range in.Answer {
		switch rr := rr.(type) {
		case *dns.A:
			if ip, ok := netip.AddrFromSlice(rr.A); ok {
				return ip.Unmap(), nil
			}
		case *dns.AAAA:
			if ip, ok := netip.AddrFromSlice(rr.AAAA); ok {
				return ip.Unmap(), nil
			}
		}
	}
	return netip.Addr{}, fmt.Errorf("dns %s %s: %w", dns.TypeToString[qtype], host, ErrNotFound)
}
