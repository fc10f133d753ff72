// Package socks5 implements the SOCKS5 wire format used by socksd.
//
// It wraps the frame types in github.com/txthinking/socks5 for negotiation
// and reply encoding. Requests are parsed here so that each kind of failure
// can be answered with its own reply status.
//
// The dispatcher consumes the initial version byte, so Negotiate starts at
// the method count.
package socks5
