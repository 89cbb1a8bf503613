// Package dnscache caches host lookups for a fixed TTL and dials through the
// cached addresses.
package dnscache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// LookupFunc resolves host to a list of IP addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

type cacheEntry struct {
	addrs     []string
	expiresAt time.Time
}

// Resolver caches LookupFunc results for ttl.
type Resolver struct {
	mu     sync.RWMutex
	cache  map[string]cacheEntry
	ttl    time.Duration
	lookup LookupFunc
	now    func() time.Time
}

// New creates a Resolver backed by net.DefaultResolver.
func New(ttl time.Duration) *Resolver {
	return NewWithLookup(ttl, net.DefaultResolver.LookupHost)
}

// NewWithLookup creates a Resolver backed by lookup.
func NewWithLookup(ttl time.Duration, lookup LookupFunc) *Resolver {
	return &Resolver{
		cache:  make(map[string]cacheEntry),
		ttl:    ttl,
		lookup: lookup,
		now:    time.Now,
	}
}

// LookupHost returns the addresses of host, serving cached results until they
// expire. IP literals are returned as is.
func (r *Resolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	r.mu.RLock()
	entry, found := r.cache[host]
	r.mu.RUnlock()
	if found && r.now().Before(entry.expiresAt) {
		return entry.addrs, nil
	}

	addrs, err := r.lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("lookup %s: no addresses", host)
	}
	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[host] = cacheEntry{addrs: addrs, expiresAt: r.now().Add(r.ttl)}
		r.mu.Unlock()
	}
	return addrs, nil
}

// DialContext returns a dial function for http.Transport that resolves through
// the cache and tries each address in turn.
func (r *Resolver) DialContext(dialer *net.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", addr, err)
		}
		ips, err := r.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		var errs []error
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
		return nil, errors.Join(errs...)
	}
}
