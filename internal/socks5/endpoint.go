package socks5

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
)

// Endpoint is an address as it appears on the wire: an address type, the raw
// address bytes (4 or 16 for IP types, the name for ATYPDomain) and a port.
type Endpoint struct {
	AddrType byte
	Addr     []byte
	Port     uint16
}

// EndpointFromAddrPort encodes ap as an IPv4 or IPv6 endpoint.
func EndpointFromAddrPort(ap netip.AddrPort) Endpoint {
	ip := ap.Addr().Unmap()
	if ip.Is4() {
		b := ip.As4()
		return Endpoint{AddrType: ATYPIPv4, Addr: b[:], Port: ap.Port()}
	}
	b := ip.As16()
	return Endpoint{AddrType: ATYPIPv6, Addr: b[:], Port: ap.Port()}
}

// ZeroEndpoint returns the all-zero address for atyp. Unknown types fall back
// to IPv4, and domains are empty.
func ZeroEndpoint(atyp byte) Endpoint {
	switch atyp {
	case ATYPIPv6:
		return Endpoint{AddrType: ATYPIPv6, Addr: make([]byte, 16)}
	case ATYPDomain:
		return Endpoint{AddrType: ATYPDomain, Addr: []byte{}}
	default:
		return Endpoint{AddrType: ATYPIPv4, Addr: make([]byte, 4)}
	}
}

// IP returns the literal address for IP endpoints.
func (e Endpoint) IP() (netip.Addr, bool) {
	if e.AddrType == ATYPDomain {
		return netip.Addr{}, false
	}
	ip, ok := netip.AddrFromSlice(e.Addr)
	return ip.Unmap(), ok
}

// Domain returns the hostname of an ATYPDomain endpoint.
func (e Endpoint) Domain() string {
	if e.AddrType != ATYPDomain {
		return ""
	}
	return string(e.Addr)
}

func (e Endpoint) String() string {
	host := e.Domain()
	if ip, ok := e.IP(); ok {
		host = ip.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(int(e.Port)))
}

// ReadEndpoint reads ATYP, the address and the port. An unknown address type
// yields an error wrapping ErrIllegalAddressType and an Endpoint carrying only
// AddrType; nothing after the type byte is read.
func ReadEndpoint(r io.Reader) (Endpoint, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Endpoint{}, fmt.Errorf("read address type: %w", err)
	}
	e := Endpoint{AddrType: b[0]}

	var n int
	switch e.AddrType {
	case ATYPIPv4:
		n = 4
	case ATYPIPv6:
		n = 16
	case ATYPDomain:
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return Endpoint{}, fmt.Errorf("read domain length: %w", err)
		}
		n = int(b[0])
	default:
		return e, fmt.Errorf("%w: 0x%02x", ErrIllegalAddressType, e.AddrType)
	}

	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Endpoint{}, fmt.Errorf("read address: %w", err)
	}
	e.Addr = buf[:n:n]
	e.Port = binary.BigEndian.Uint16(buf[n:])
	return e, nil
}

// WriteEndpoint writes e in the format ReadEndpoint reads.
func WriteEndpoint(w io.Writer, e Endpoint) error {
	b, err := e.appendTo(make([]byte, 0, 1+1+len(e.Addr)+2))
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func (e Endpoint) appendTo(b []byte) ([]byte, error) {
	switch e.AddrType {
	case ATYPIPv4, ATYPIPv6:
		if (e.AddrType == ATYPIPv4 && len(e.Addr) != 4) || (e.AddrType == ATYPIPv6 && len(e.Addr) != 16) {
			return nil, fmt.Errorf("address length %d for type 0x%02x", len(e.Addr), e.AddrType)
		}
		b = append(b, e.AddrType)
	case ATYPDomain:
		if len(e.Addr) > 255 {
			return nil, errors.New("domain longer than 255 bytes")
		}
		b = append(b, e.AddrType, byte(len(e.Addr)))
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrIllegalAddressType, e.AddrType)
	}
	b = append(b, e.Addr...)
	return binary.BigEndian.AppendUint16(b, e.Port), nil
}
