package fetcher

import (
	"net"
	"net/http"
	"time"

	"github.com/JakeFAU/urlsec-blocklist/internal/dnscache"
)

// TransportConfig tunes the connection pool shared by one GetAll call.
type TransportConfig struct {
	// RequestTimeout bounds a single attempt, including reading the body.
	RequestTimeout time.Duration
	// DNSCacheTTL is how long resolved addresses are reused.
	DNSCacheTTL time.Duration
	// KeepAliveIdle is the idle time before the first TCP keep-alive probe.
	KeepAliveIdle time.Duration
	// KeepAliveInterval is the time between unanswered probes.
	KeepAliveInterval time.Duration
	// KeepAliveCount is the number of unanswered probes before the
	// connection is dropped.
	KeepAliveCount int
}

// DefaultTransportConfig returns the production connection settings.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		RequestTimeout:    300 * time.Second,
		DNSCacheTTL:       300 * time.Second,
		KeepAliveIdle:     60 * time.Second,
		KeepAliveInterval: 2 * time.Second,
		KeepAliveCount:    5,
	}
}

func newDialer(cfg TransportConfig) *net.Dialer {
	return &net.Dialer{
		Timeout: 30 * time.Second,
		KeepAliveConfig: net.KeepAliveConfig{
			Enable:   true,
			Idle:     cfg.KeepAliveIdle,
			Interval: cfg.KeepAliveInterval,
			Count:    cfg.KeepAliveCount,
		},
	}
}

// newTransport builds a pool without a per-host connection cap. Concurrency
// is bounded by the fetcher's gate instead.
func newTransport(cfg TransportConfig, resolver *dnscache.Resolver) *http.Transport {
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           resolver.DialContext(newDialer(cfg)),
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxConnsPerHost:       0,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}
