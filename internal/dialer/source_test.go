package dialer

import (
	"errors"
	"net/netip"
	"testing"
)

func TestSelectSource(t *testing.T) {
	t.Parallel()

	v4a := netip.MustParseAddr("192.0.2.1")
	v4b := netip.MustParseAddr("192.0.2.2")
	v6a := netip.MustParseAddr("2001:db8::1")
	v6b := netip.MustParseAddr("2001:db8::2")

	tests := []struct {
		name    string
		sources []netip.Addr
		target  netip.Addr
		want    netip.Addr
		wantErr error
	}{
		{name: "exact match wins over family", sources: []netip.Addr{v4a, v4b}, target: v4b, want: v4b},
		{name: "first v4 by family", sources: []netip.Addr{v6a, v4a, v4b}, target: netip.MustParseAddr("198.51.100.7"), want: v4a},
		{name: "first v6 by family", sources: []netip.Addr{v4a, v6b, v6a}, target: netip.MustParseAddr("2001:db8:ffff::9"), want: v6b},
		{name: "mapped target counts as v4", sources: []netip.Addr{v6a, v4a}, target: netip.MustParseAddr("::ffff:198.51.100.7"), want: v4a},
		{name: "fallback to first", sources: []netip.Addr{v6a, v6b}, target: netip.MustParseAddr("198.51.100.7"), want: v6a},
		{name: "no sources", target: v4a, wantErr: ErrNoRouteAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectSource(tt.sources, tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}
