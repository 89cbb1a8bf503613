// Package fetcher performs concurrent, retried HTTP GETs against threat feed
// endpoints. A GetAll call never fails because one endpoint fails: endpoints
// that exhaust their attempts yield a sentinel body instead.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/urlsec-blocklist/internal/dnscache"
	"github.com/JakeFAU/urlsec-blocklist/internal/metrics"
)

// SentinelBody stands in for the body of an endpoint that never answered
// successfully. It decodes as an empty JSON object.
var SentinelBody = []byte("{}")

// ErrUnexpectedStatus marks a response outside the 2xx range.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Sleeper waits for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Limiter paces requests, typically per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls a Fetcher.
type Config struct {
	// MaxConcurrentRequests bounds the requests in flight across one GetAll.
	MaxConcurrentRequests int
	// PacingDelay is waited inside the gate before the first attempt.
	PacingDelay time.Duration
	// Headers are sent with every request.
	Headers   http.Header
	Retry     RetryPolicy
	Transport TransportConfig
	// Limiter is optional.
	Limiter Limiter
}

// DefaultConfig returns the production fetch settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentRequests: 5,
		PacingDelay:           500 * time.Millisecond,
		Headers:               DefaultHeaders(),
		Retry:                 DefaultRetryPolicy(),
		Transport:             DefaultTransportConfig(),
	}
}

// DefaultHeaders returns the headers sent to feed endpoints.
func DefaultHeaders() http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("Connection", "keep-alive")
	h.Set("Cache-Control", "no-cache")
	h.Set("Accept", "*/*")
	return h
}

// Result is the outcome for one endpoint.
type Result struct {
	// Body is the response body, or SentinelBody when every attempt failed.
	Body []byte
	// Err joins the error of every failed attempt. Nil on success.
	Err error
	// Attempts is the number of GETs issued.
	Attempts int
}

// Failed reports whether Body is the sentinel.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Fetcher issues GETs using a fresh connection pool per GetAll call.
type Fetcher struct {
	cfg      Config
	clock    Sleeper
	logger   *zap.Logger
	resolver *dnscache.Resolver
}

// New builds a Fetcher. A nil logger discards output.
func New(cfg Config, clock Sleeper, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Headers == nil {
		cfg.Headers = DefaultHeaders()
	}
	return &Fetcher{
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		resolver: dnscache.New(cfg.Transport.DNSCacheTTL),
	}
}

// GetAll fetches every distinct endpoint and returns one Result per endpoint.
// Duplicates in endpoints are fetched once. The only error returned is for
// a configuration that cannot run at all.
func (f *Fetcher) GetAll(ctx context.Context, endpoints []string) (map[string]Result, error) {
	if f.cfg.MaxConcurrentRequests < 1 {
		return nil, fmt.Errorf("max concurrent requests must be positive, got %d", f.cfg.MaxConcurrentRequests)
	}
	if f.clock == nil {
		return nil, errors.New("fetcher requires a clock")
	}

	transport := newTransport(f.cfg.Transport, f.resolver)
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport, Timeout: f.cfg.Transport.RequestTimeout}

	unique := dedupe(endpoints)
	gate := semaphore.NewWeighted(int64(f.cfg.MaxConcurrentRequests))

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]Result, len(unique))
	)
	for _, endpoint := range unique {
		wg.Go(func() {
			res := f.fetchGated(ctx, client, gate, endpoint)
			mu.Lock()
			results[endpoint] = res
			mu.Unlock()
		})
	}
	wg.Wait()
	return results, nil
}

func (f *Fetcher) fetchGated(ctx context.Context, client *http.Client, gate *semaphore.Weighted, endpoint string) Result {
	if err := gate.Acquire(ctx, 1); err != nil {
		return f.exhausted(endpoint, []error{fmt.Errorf("acquire request slot: %w", err)}, 0)
	}
	defer gate.Release(1)

	if err := f.clock.Sleep(ctx, f.cfg.PacingDelay); err != nil {
		return f.exhausted(endpoint, []error{fmt.Errorf("pacing delay: %w", err)}, 0)
	}
	return f.getWithRetry(ctx, client, endpoint)
}

func (f *Fetcher) getWithRetry(ctx context.Context, client *http.Client, endpoint string) Result {
	var errs []error
	attempts := 0
	for {
		attempts++
		start := time.Now()
		body, err := f.get(ctx, client, endpoint)
		metrics.ObserveAttempt(endpoint, time.Since(start), err)
		if err == nil {
			return Result{Body: body, Attempts: attempts}
		}
		errs = append(errs, err)
		f.logger.Warn("GET attempt failed",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)

		if !f.cfg.Retry.ShouldRetry(attempts) || ctx.Err() != nil {
			break
		}
		if err := f.clock.Sleep(ctx, f.cfg.Retry.Backoff(attempts)); err != nil {
			break
		}
	}
	return f.exhausted(endpoint, errs, attempts)
}

func (f *Fetcher) get(ctx context.Context, client *http.Client, endpoint string) ([]byte, error) {
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, endpoint); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header = f.cfg.Headers.Clone()

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (f *Fetcher) exhausted(endpoint string, errs []error, attempts int) Result {
	messages := make([]string, len(errs))
	for i, err := range errs {
		messages[i] = err.Error()
	}
	f.logger.Error("GET failed, using empty body",
		zap.String("endpoint", endpoint),
		zap.Int("attempts", attempts),
		zap.Strings("errors", messages),
	)
	metrics.ObserveExhausted(endpoint)

	body := make([]byte, len(SentinelBody))
	copy(body, SentinelBody)
	return Result{Body: body, Err: errors.Join(errs...), Attempts: attempts}
}

func dedupe(endpoints []string) []string {
	seen := make(map[string]struct{}, len(endpoints))
	out := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
