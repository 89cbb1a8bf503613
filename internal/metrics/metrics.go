// Package metrics exposes Prometheus collectors for blocklist runs and pushes
// them to a Pushgateway when the run finishes.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	registry = prometheus.NewRegistry()

	fetchAttemptsTotal     *prometheus.CounterVec
	fetchFailuresTotal     *prometheus.CounterVec
	fetchExhaustedTotal    *prometheus.CounterVec
	fetchDurationSeconds   *prometheus.HistogramVec
	rateLimitDelaySeconds  *prometheus.HistogramVec
	blocklistEntries       prometheus.Gauge
	blocklistRunsTotal     *prometheus.CounterVec
	blocklistLastSuccessTS prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		factory := promauto.With(registry)

		fetchAttemptsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocklist_fetch_attempts_total",
				Help: "Total number of HTTP GET attempts, labeled by site.",
			},
			[]string{"site"},
		)

		fetchFailuresTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocklist_fetch_failures_total",
				Help: "Total number of failed HTTP GET attempts, labeled by site.",
			},
			[]string{"site"},
		)

		fetchExhaustedTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocklist_fetch_exhausted_total",
				Help: "Total number of endpoints that failed every attempt, labeled by site.",
			},
			[]string{"site"},
		)

		fetchDurationSeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blocklist_fetch_duration_seconds",
				Help:    "Histogram of HTTP GET attempt latencies, labeled by site.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 300},
			},
			[]string{"site"},
		)

		rateLimitDelaySeconds = factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blocklist_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter, labeled by site.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"site"},
		)

		blocklistEntries = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blocklist_entries",
				Help: "Number of entries written by the last run.",
			},
		)

		blocklistRunsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blocklist_runs_total",
				Help: "Total number of extraction runs, labeled by status.",
			},
			[]string{"status"},
		)

		blocklistLastSuccessTS = factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "blocklist_last_success_timestamp_seconds",
				Help: "Unix time of the last run that wrote a blocklist.",
			},
		)
	})
}

// Registry returns the registry holding every collector of this package.
func Registry() *prometheus.Registry {
	Init()
	return registry
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveAttempt records one GET attempt against endpoint and its outcome.
func ObserveAttempt(endpoint string, duration time.Duration, err error) {
	Init()
	site := SanitizeSite(endpoint)
	fetchAttemptsTotal.WithLabelValues(site).Inc()
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	if err != nil {
		fetchFailuresTotal.WithLabelValues(site).Inc()
	}
}

// ObserveRateLimitDelay records time spent waiting for a rate limiter token.
func ObserveRateLimitDelay(site string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(site).Observe(d.Seconds())
}

// ObserveExhausted records an endpoint that was replaced by the sentinel body.
func ObserveExhausted(endpoint string) {
	Init()
	fetchExhaustedTotal.WithLabelValues(SanitizeSite(endpoint)).Inc()
}

// ObserveRun records the outcome of a run. Successful runs also update the
// entry gauge and the last success timestamp.
func ObserveRun(status string, entries int, at time.Time) {
	Init()
	blocklistRunsTotal.WithLabelValues(status).Inc()
	if status != StatusSucceeded {
		return
	}
	blocklistEntries.Set(float64(entries))
	blocklistLastSuccessTS.Set(float64(at.Unix()))
}

// Run status label values.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Push sends the registry to the Pushgateway at gatewayURL under job.
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(Registry()).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
