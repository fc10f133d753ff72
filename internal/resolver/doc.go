// Package resolver turns the hostnames carried by SOCKS4a and SOCKS5 DOMAIN
// requests into IP addresses.
//
// Lookups go either to the platform resolver or, when a server is configured,
// directly to that DNS server using github.com/miekg/dns. Results can be
// cached for a fixed TTL.
package resolver
