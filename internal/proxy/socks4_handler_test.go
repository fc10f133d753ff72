package proxy

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/ginuerzh/gosocks4"

	"github.com/die-net/socksd/internal/socks4"
	"github.com/die-net/socksd/internal/testutil"
)

func TestSOCKS4Connect(t *testing.T) {
	t.Parallel()

	echo := testutil.StartEchoTCPServer(t, t.Context())
	echoAddr := addrPort(t, echo.Addr())
	proxyAddr := startServer(t, defaultOptions())

	tests := []struct {
		name string
		addr *gosocks4.Addr
	}{
		{
			name: "socks4",
			addr: &gosocks4.Addr{Type: gosocks4.AddrIPv4, Host: "127.0.0.1", Port: echoAddr.Port()},
		},
		{
			name: "socks4a",
			addr: &gosocks4.Addr{Type: gosocks4.AddrDomain, Host: "echo.test", Port: echoAddr.Port()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := dialProxy(t, proxyAddr)
			if err := gosocks4.NewRequest(gosocks4.CmdConnect, tt.addr, nil).Write(c); err != nil {
				t.Fatal(err)
			}
			rep, err := gosocks4.ReadReply(c)
			if err != nil {
				t.Fatal(err)
			}
			if rep.Code != gosocks4.Granted {
				t.Fatalf("reply code 0x%02x", rep.Code)
			}
			if rep.Addr == nil || rep.Addr.Host != "127.0.0.1" || rep.Addr.Port != echoAddr.Port() {
				t.Fatalf("reply addr %v, want %s", rep.Addr, echoAddr)
			}

			testutil.AssertEcho(t, c, c, []byte("hello socks4"))
		})
	}
}

func TestSOCKS4ConnectRawFrames(t *testing.T) {
	t.Parallel()

	echo := testutil.StartEchoTCPServer(t, t.Context())
	port := addrPort(t, echo.Addr()).Port()
	proxyAddr := startServer(t, defaultOptions())

	c := dialProxy(t, proxyAddr)
	req := []byte{0x04, 0x01, 0, 0, 127, 0, 0, 1, 'F', 'r', 'e', 'd', 0x00}
	binary.BigEndian.PutUint16(req[2:4], port)
	mustWrite(t, c, req)

	want := []byte{0x00, 0x5a, 0, 0, 127, 0, 0, 1}
	binary.BigEndian.PutUint16(want[2:4], port)
	expectBytes(t, c, want)

	testutil.AssertEcho(t, c, c, []byte("full duplex"))
}

func TestSOCKS4ConnectFailures(t *testing.T) {
	t.Parallel()

	proxyAddr := startServer(t, defaultOptions())
	closed := unusedPort(t)

	tests := []struct {
		name string
		req  []byte
		want []byte
	}{
		{
			name: "refused",
			req:  append(append([]byte{0x04, 0x01}, binary.BigEndian.AppendUint16(nil, closed.Port())...), 127, 0, 0, 1, 0x00),
			want: append(append([]byte{0x00, 0x5b}, binary.BigEndian.AppendUint16(nil, closed.Port())...), 127, 0, 0, 1),
		},
		{
			name: "unknown host",
			req:  []byte{0x04, 0x01, 0x00, 0x50, 0, 0, 0, 1, 0x00, 'n', 'o', 'n', 'e', 0x00},
			want: []byte{0x00, 0x5b, 0x00, 0x50, 0, 0, 0, 1},
		},
		{
			name: "illegal command",
			req:  []byte{0x04, 0x03},
			want: []byte{0x00, 0x5b, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "empty socks4a hostname",
			req:  []byte{0x04, 0x01, 0x00, 0x50, 0, 0, 0, 1, 0x00, 0x00},
			want: []byte{0x00, 0x5b, 0x00, 0x50, 0, 0, 0, 1},
		},
		{
			// One byte over the limit and no terminator, so the server
			// consumes everything sent before rejecting.
			name: "user id too long",
			req:  append([]byte{0x04, 0x01, 0x00, 0x50, 127, 0, 0, 1}, bytes.Repeat([]byte{'u'}, 1025)...),
			want: []byte{0x00, 0x5b, 0x00, 0x50, 127, 0, 0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := dialProxy(t, proxyAddr)
			mustWrite(t, c, tt.req)
			expectBytes(t, c, tt.want)
			expectClosed(t, c)
		})
	}
}

func socks4BindRequest(target netip.AddrPort) []byte {
	b := []byte{socks4.Version, socks4.CmdBind}
	b = binary.BigEndian.AppendUint16(b, target.Port())
	ip := target.Addr().As4()
	b = append(b, ip[:]...)
	return append(b, 0x00)
}

func replyAddrPort(t *testing.T, rep *gosocks4.Reply) netip.AddrPort {
	t.Helper()

	if rep.Addr == nil {
		t.Fatalf("reply %v has no address", rep)
	}
	ap, err := netip.ParseAddrPort(rep.Addr.String())
	if err != nil {
		t.Fatal(err)
	}
	return ap
}

func TestSOCKS4Bind(t *testing.T) {
	t.Parallel()

	proxyAddr := startServer(t, defaultOptions())
	c := dialProxy(t, proxyAddr)

	mustWrite(t, c, socks4BindRequest(netip.MustParseAddrPort("127.0.0.1:0")))
	first, err := gosocks4.ReadReply(c)
	if err != nil {
		t.Fatal(err)
	}
	bound := replyAddrPort(t, first)
	if first.Code != gosocks4.Granted || bound.Port() == 0 {
		t.Fatalf("first reply %v", first)
	}
	if bound.Addr() != netip.MustParseAddr("127.0.0.1") {
		t.Fatalf("bind address %s", bound)
	}

	d := net.Dialer{Timeout: 2 * time.Second}
	peer, err := d.DialContext(context.Background(), "tcp", bound.String())
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()

	second, err := gosocks4.ReadReply(c)
	if err != nil {
		t.Fatal(err)
	}
	if second.Code != gosocks4.Granted {
		t.Fatalf("second reply %v", second)
	}
	if got, want := replyAddrPort(t, second), addrPort(t, peer.LocalAddr()); got != want {
		t.Fatalf("second reply addr %s, want %s", got, want)
	}

	testutil.AssertEcho(t, c, peer, []byte("client to peer"))
	testutil.AssertEcho(t, peer, c, []byte("peer to client"))
}

func TestSOCKS4BindPeerMismatch(t *testing.T) {
	t.Parallel()

	proxyAddr := startServer(t, defaultOptions())
	c := dialProxy(t, proxyAddr)

	mustWrite(t, c, socks4BindRequest(netip.MustParseAddrPort("192.0.2.7:0")))
	first, err := gosocks4.ReadReply(c)
	if err != nil {
		t.Fatal(err)
	}
	if first.Code != gosocks4.Granted {
		t.Fatalf("first reply %v", first)
	}

	port := replyAddrPort(t, first).Port()
	peer, err := net.DialTimeout("tcp", netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port).String(), 2*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()

	second, err := gosocks4.ReadReply(c)
	if err != nil {
		t.Fatal(err)
	}
	if second.Code != gosocks4.Rejected {
		t.Fatalf("second reply %v, want rejected", second)
	}
	expectClosed(t, c)
}

func TestSOCKS4Reply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status byte
		addr   netip.AddrPort
		want   []byte
	}{
		{
			name:   "granted",
			status: socks4.StatusGranted,
			addr:   netip.MustParseAddrPort("66.102.7.99:80"),
			want:   []byte{0x00, 0x5a, 0x00, 0x50, 0x42, 0x66, 0x07, 0x63},
		},
		{
			name:   "mapped",
			status: socks4.StatusRejected,
			addr:   netip.MustParseAddrPort("[::ffff:10.0.0.1]:1337"),
			want:   []byte{0x00, 0x5b, 0x05, 0x39, 10, 0, 0, 1},
		},
		{
			name:   "ipv6 becomes zero",
			status: socks4.StatusGranted,
			addr:   netip.MustParseAddrPort("[2001:db8::1]:80"),
			want:   []byte{0x00, 0x5a, 0x00, 0x50, 0, 0, 0, 0},
		},
		{
			name:   "no address",
			status: socks4.StatusRejected,
			want:   []byte{0x00, 0x5b, 0, 0, 0, 0, 0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, client := net.Pipe()
			defer server.Close()
			defer client.Close()

			sess := &Session{Conn: server}
			errc := make(chan error, 1)
			go func() { errc <- NewSocks4Handler(Config{}, nil).reply(sess, tt.status, tt.addr) }()

			expectBytes(t, client, tt.want)
			if err := <-errc; err != nil {
				t.Fatal(err)
			}
			if !sess.replied {
				t.Fatal("reply not recorded on session")
			}
		})
	}
}
