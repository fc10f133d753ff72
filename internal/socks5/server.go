package socks5

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	txsocks5 "github.com/txthinking/socks5"
)

// Request is a parsed SOCKS5 request.
type Request struct {
	Command byte
	Endpoint
}

// ReadMethods reads the method count and the offered methods.
func ReadMethods(r io.Reader) ([]byte, error) {
	var n [1]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return nil, fmt.Errorf("read method count: %w", err)
	}
	methods := make([]byte, int(n[0]))
	if _, err := io.ReadFull(r, methods); err != nil {
		return nil, fmt.Errorf("read methods: %w", err)
	}
	return methods, nil
}

// Negotiate runs method negotiation on a connection whose version byte has
// already been consumed. Only "no authentication" is accepted; otherwise the
// client is told no method is acceptable and ErrAuthNotSupported is returned.
func Negotiate(rw io.ReadWriter) error {
	methods, err := ReadMethods(rw)
	if err != nil {
		return err
	}

	if !bytes.Contains(methods, []byte{MethodNone}) {
		_, _ = txsocks5.NewNegotiationReply(MethodNoAcceptable).WriteTo(rw)
		return fmt.Errorf("%w: offered % x", ErrAuthNotSupported, methods)
	}
	if _, err := txsocks5.NewNegotiationReply(MethodNone).WriteTo(rw); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	return nil
}

// ReadRequest reads VER CMD RSV followed by the endpoint.
//
// Parsing stops at the first invalid field. For ErrIllegalCommand and
// ErrIllegalAddressType the returned Request holds what was read so far.
func ReadRequest(r io.Reader) (*Request, error) {
	var b [3]byte
	if _, err := io.ReadFull(r, b[:1]); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if b[0] != Version {
		return nil, fmt.Errorf("%w: unsupported version 0x%02x", ErrProtocol, b[0])
	}

	if _, err := io.ReadFull(r, b[1:2]); err != nil {
		return nil, fmt.Errorf("read command: %w", err)
	}
	req := &Request{Command: b[1]}
	if req.Command != CmdConnect && req.Command != CmdBind {
		return req, fmt.Errorf("%w: 0x%02x", ErrIllegalCommand, req.Command)
	}

	if _, err := io.ReadFull(r, b[2:3]); err != nil {
		return nil, fmt.Errorf("read reserved: %w", err)
	}

	ep, err := ReadEndpoint(r)
	req.Endpoint = ep
	if err != nil {
		return req, err
	}
	return req, nil
}

// WriteReply writes a reply frame carrying ep as the bound address.
func WriteReply(w io.Writer, status byte, ep Endpoint) error {
	if ep.Addr == nil {
		ep = ZeroEndpoint(ep.AddrType)
	}
	port := binary.BigEndian.AppendUint16(nil, ep.Port)
	if _, err := txsocks5.NewReply(status, ep.AddrType, ep.Addr, port).WriteTo(w); err != nil {
		return fmt.Errorf("write reply 0x%02x: %w", status, err)
	}
	return nil
}
