// Package socks4 implements the SOCKS4 and SOCKS4a wire format.
//
// The version byte is consumed by the dispatcher before ReadRequest is
// called, so a Request starts at the command byte. Replies are always eight
// bytes: a zero byte, the status, the port and an IPv4 address. They are
// encoded with github.com/ginuerzh/gosocks4.
package socks4
