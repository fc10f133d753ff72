package resolver

import (
	"context"
	"net/netip"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

type cachingResolver struct {
	next  Resolver
	cache *cache.Cache
}

func newCachingResolver(next Resolver, ttl time.Duration) *cachingResolver {
	return &cachingResolver{next: next, cache: cache.New(ttl, 2*ttl)}
}

// LookupIP only caches successful lookups.
func (r *cachingResolver) LookupIP(ctx context.Context, host string) (netip.Addr, error) {
	key := strings.ToLower(host)
	if v, ok := r.cache.Get(key); ok {
		return v.(netip.Addr), nil
	}

	ip, err := r.next.LookupIP(ctx, host)
	if err != nil {
		return netip.Addr{}, err
	}
	r.cache.SetDefault(key, ip)
	return ip, nil
}
