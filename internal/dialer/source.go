package dialer

import (
	"errors"
	"net/netip"
)

// ErrNoRouteAvailable is returned when no outgoing source address is
// configured.
var ErrNoRouteAvailable = errors.New("no route to address found using local addresses")

// SelectSource returns the local address to use for reaching target.
func SelectSource(sources []netip.Addr, target netip.Addr) (netip.Addr, error) {
	if len(sources) == 0 {
		return netip.Addr{}, ErrNoRouteAvailable
	}

	target = target.Unmap()
	for _, s := range sources {
		if s.Unmap() == target {
			return s.Unmap(), nil
		}
	}
	for _, s := range sources {
		if s.Unmap().Is4() == target.Is4() {
			return s.Unmap(), nil
		}
	}
	return sources[0].Unmap(), nil
}
