// Package app wires the long-lived services of one extraction run: fetcher,
// extractor, writer, blob stores and the optional publisher.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/urlsec-blocklist/internal/clock/system"
	"github.com/JakeFAU/urlsec-blocklist/internal/config"
	"github.com/JakeFAU/urlsec-blocklist/internal/extract"
	"github.com/JakeFAU/urlsec-blocklist/internal/fetcher"
	"github.com/JakeFAU/urlsec-blocklist/internal/id/uuid"
	"github.com/JakeFAU/urlsec-blocklist/internal/metrics"
	"github.com/JakeFAU/urlsec-blocklist/internal/policy/ratelimit"
	"github.com/JakeFAU/urlsec-blocklist/internal/publisher"
	"github.com/JakeFAU/urlsec-blocklist/internal/publisher/pubsub"
	"github.com/JakeFAU/urlsec-blocklist/internal/storage"
	"github.com/JakeFAU/urlsec-blocklist/internal/storage/gcs"
	"github.com/JakeFAU/urlsec-blocklist/internal/storage/local"
	"github.com/JakeFAU/urlsec-blocklist/internal/writer"
)

// Clock reads time and waits. system.Clock implements it.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator creates run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Report summarizes a successful run.
type Report struct {
	RunID     string
	Endpoint  string
	Entries   int
	SHA256    string
	URIs      []string
	Timestamp string
	// MessageID is set when the update event was published.
	MessageID string
}

// App holds the services for extraction runs.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     Clock
	ids       IDGenerator
	extractor *extract.Extractor
	writer    *writer.Writer
	publisher publisher.Publisher
	topic     string
	closers   []func() error
}

// Option overrides a service NewApp would otherwise build from config.
type Option func(*options)

type options struct {
	stores    []storage.BlobStore
	publisher publisher.Publisher
	getter    extract.Getter
	clock     Clock
	ids       IDGenerator
}

// WithStores replaces the blob stores derived from output.* settings.
func WithStores(stores ...storage.BlobStore) Option {
	return func(o *options) { o.stores = stores }
}

// WithPublisher replaces the Pub/Sub publisher.
func WithPublisher(p publisher.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithGetter replaces the HTTP fetcher.
func WithGetter(g extract.Getter) Option {
	return func(o *options) { o.getter = g }
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator replaces the UUIDv7 generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// NewApp builds the services described by cfg. It fails fast when an enabled
// integration cannot be reached.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = system.New()
	}
	if o.ids == nil {
		o.ids = uuid.New()
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  o.clock,
		ids:    o.ids,
		topic:  cfg.PubSub.Topic,
	}

	getter := o.getter
	if getter == nil {
		getter = fetcher.New(fetcherConfig(cfg.Fetch), o.clock, logger.Named("fetcher"))
	}
	a.extractor = extract.New(getter, cfg.Extract.Endpoint, logger.Named("extract"))

	stores := o.stores
	if stores == nil {
		var err error
		if stores, err = a.buildStores(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	w, err := writer.New(filepath.Base(cfg.Output.Path), stores, o.clock, logger.Named("writer"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init writer: %w", err)
	}
	a.writer = w

	a.publisher = o.publisher
	if a.publisher == nil && cfg.PubSub.Enabled() {
		logger.Info("Connecting to GCP Pub/Sub", zap.String("topic", cfg.PubSub.Topic))
		pub, err := pubsub.New(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init publisher: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
	}

	return a, nil
}

func (a *App) buildStores(ctx context.Context) ([]storage.BlobStore, error) {
	localStore, err := local.New(local.Config{BaseDir: filepath.Dir(a.cfg.Output.Path)})
	if err != nil {
		return nil, fmt.Errorf("init local store: %w", err)
	}
	stores := []storage.BlobStore{localStore}

	if a.cfg.Output.GCSBucket == "" {
		return stores, nil
	}
	a.logger.Info("Mirroring blocklist to GCS", zap.String("bucket", a.cfg.Output.GCSBucket))
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	gcsStore, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Output.GCSBucket, Object: a.cfg.Output.GCSObject})
	if err != nil {
		return nil, fmt.Errorf("init gcs store: %w", err)
	}
	if err := gcsStore.CheckBucket(ctx); err != nil {
		return nil, err
	}
	return append(stores, gcsStore), nil
}

func fetcherConfig(fc config.FetchConfig) fetcher.Config {
	cfg := fetcher.DefaultConfig()
	cfg.MaxConcurrentRequests = fc.MaxConcurrentRequests
	cfg.PacingDelay = fc.PacingDelay
	cfg.Retry = fetcher.RetryPolicy{MaxAttempts: fc.MaxAttempts, BackoffFactor: fc.BackoffFactor}
	cfg.Transport = fetcher.TransportConfig{
		RequestTimeout:    fc.RequestTimeout,
		DNSCacheTTL:       fc.DNSCacheTTL,
		KeepAliveIdle:     fc.KeepAliveIdle,
		KeepAliveInterval: fc.KeepAliveInterval,
		KeepAliveCount:    fc.KeepAliveCount,
	}
	if fc.UserAgent != "" {
		cfg.Headers.Set("User-Agent", fc.UserAgent)
	}
	if fc.RateLimitRPS > 0 {
		cfg.Limiter = ratelimit.New(ratelimit.Config{RPS: fc.RateLimitRPS, Burst: fc.RateLimitBurst})
	}
	return cfg
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Run performs one extraction: fetch, clean, write, announce. An empty
// result returns an error wrapping writer.ErrNoEntries and leaves the
// previous output in place.
func (a *App) Run(ctx context.Context) (Report, error) {
	runID, err := a.ids.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("new run id: %w", err)
	}
	logger := a.logger.With(zap.String("run_id", runID))
	report := Report{RunID: runID, Endpoint: a.extractor.Endpoint()}

	set, extractErr := a.extractor.Extract(ctx)
	res, err := a.writer.Write(ctx, set)
	if err != nil {
		if extractErr != nil {
			err = fmt.Errorf("%w: %w", err, extractErr)
		}
		metrics.ObserveRun(metrics.StatusFailed, 0, a.clock.Now())
		a.pushMetrics(ctx, logger)
		return report, err
	}

	report.Entries = res.Entries
	report.SHA256 = res.SHA256
	report.URIs = res.URIs
	report.Timestamp = res.Timestamp

	if a.publisher != nil {
		event := publisher.BlocklistUpdated{
			RunID:       runID,
			Entries:     res.Entries,
			SHA256:      res.SHA256,
			URIs:        res.URIs,
			GeneratedAt: res.WrittenAt,
		}
		// The blocklist is already written; a lost notification is not fatal.
		if id, pubErr := a.publisher.Publish(ctx, a.topic, event); pubErr != nil {
			logger.Error("Failed to publish blocklist update", zap.Error(pubErr))
		} else {
			report.MessageID = id
			logger.Info("Published blocklist update", zap.String("message_id", id))
		}
	}

	metrics.ObserveRun(metrics.StatusSucceeded, res.Entries, res.WrittenAt)
	a.pushMetrics(ctx, logger)
	return report, nil
}

func (a *App) pushMetrics(ctx context.Context, logger *zap.Logger) {
	if err := metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job); err != nil {
		logger.Warn("Failed to push metrics", zap.Error(err))
	}
}

// Close releases clients held by the App. It is safe to call more than once.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("Error closing application services", zap.Error(err))
	}
	// Sync fails on stderr/stdout for some platforms; nothing useful to do.
	_ = a.logger.Sync()
}
