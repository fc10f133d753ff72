package socks4

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/netip"
)

// Request is a parsed SOCKS4 or SOCKS4a request.
type Request struct {
	Command byte
	Port    uint16
	IP      [4]byte
	UserID  []byte

	// Hostname is set for SOCKS4a requests, where IP is 0.0.0.x with x != 0.
	Hostname string
}

// IsSOCKS4a reports whether IP is the SOCKS4a sentinel 0.0.0.x, x != 0.
func (r *Request) IsSOCKS4a() bool {
	return r.IP[0] == 0 && r.IP[1] == 0 && r.IP[2] == 0 && r.IP[3] != 0
}

// Addr returns the literal destination address carried in the request.
func (r *Request) Addr() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(r.IP), r.Port)
}

// ReadRequest reads a request whose version byte has already been consumed.
//
// When the command is unknown the returned Request carries only the command
// and the error wraps ErrIllegalCommand; nothing past the command byte is
// read. Once the destination is parsed, a failure reading the user id or
// hostname returns the Request parsed so far; a malformed field wraps
// ErrProtocol.
func ReadRequest(r io.Reader) (*Request, error) {
	var hdr [7]byte
	if _, err := io.ReadFull(r, hdr[:1]); err != nil {
		return nil, fmt.Errorf("read command: %w", err)
	}

	req := &Request{Command: hdr[0]}
	if req.Command != CmdConnect && req.Command != CmdBind {
		return req, fmt.Errorf("%w: 0x%02x", ErrIllegalCommand, req.Command)
	}

	if _, err := io.ReadFull(r, hdr[1:]); err != nil {
		return nil, fmt.Errorf("read destination: %w", err)
	}
	req.Port = binary.BigEndian.Uint16(hdr[1:3])
	copy(req.IP[:], hdr[3:7])

	userID, err := readField(r)
	if err != nil {
		return req, fmt.Errorf("read user id: %w", err)
	}
	req.UserID = userID

	if req.IsSOCKS4a() {
		host, err := readField(r)
		if err != nil {
			return req, fmt.Errorf("read hostname: %w", err)
		}
		if len(host) == 0 {
			return req, fmt.Errorf("%w: empty hostname", ErrProtocol)
		}
		req.Hostname = string(host)
	}

	return req, nil
}

// readField reads a NUL-terminated field one byte at a time so that nothing
// beyond the terminator is consumed from r.
func readField(r io.Reader) ([]byte, error) {
	var (
		data []byte
		b    [1]byte
	)
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		if b[0] == 0 {
			return data, nil
		}
		if len(data) == maxFieldLen {
			return nil, fmt.Errorf("%w: field longer than %d bytes", ErrProtocol, maxFieldLen)
		}
		data = append(data, b[0])
	}
}
