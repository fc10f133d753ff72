package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

// ErrMethodRejected is returned by ClientNegotiate when the server accepts
// none of the offered methods.
var ErrMethodRejected = errors.New("socks5: server rejected all methods")

// ClientNegotiate offers "no authentication" and checks that the server
// selected it. The version byte is written as part of the request.
func ClientNegotiate(rw io.ReadWriter) error {
	if _, err := txsocks5.NewNegotiationRequest([]byte{MethodNone}).WriteTo(rw); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(rw)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}
	switch neg.Method {
	case MethodNone:
		return nil
	case MethodNoAcceptable:
		return ErrMethodRejected
	default:
		return fmt.Errorf("unsupported negotiation method: 0x%02x", neg.Method)
	}
}

// ClientRequest sends cmd for address ("host:port") and reads one reply.
func ClientRequest(rw io.ReadWriter, cmd byte, address string) (status byte, bound Endpoint, err error) {
	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return 0, Endpoint{}, fmt.Errorf("parse address: %w", err)
	}
	if atyp == ATYPDomain {
		dstAddr = dstAddr[1:]
	}

	if _, err := txsocks5.NewRequest(cmd, atyp, dstAddr, dstPort).WriteTo(rw); err != nil {
		return 0, Endpoint{}, fmt.Errorf("write request: %w", err)
	}
	return ClientReadReply(rw)
}

// ClientReadReply reads one reply frame, as sent twice for BIND.
func ClientReadReply(r io.Reader) (status byte, bound Endpoint, err error) {
	rep, err := txsocks5.NewReplyFrom(r)
	if err != nil {
		return 0, Endpoint{}, fmt.Errorf("read reply: %w", err)
	}

	bound = Endpoint{AddrType: rep.Atyp, Addr: rep.BndAddr}
	if rep.Atyp == ATYPDomain && len(rep.BndAddr) > 0 {
		bound.Addr = rep.BndAddr[1:]
	}
	if len(rep.BndPort) == 2 {
		bound.Port = binary.BigEndian.Uint16(rep.BndPort)
	}
	return rep.Rep, bound, nil
}
