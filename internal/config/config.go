// Package config loads and validates blocklist extractor configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// URLSEC_FETCH_MAX_CONCURRENT_REQUESTS=10.
const EnvPrefix = "URLSEC"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Extract ExtractConfig `mapstructure:"extract"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Output  OutputConfig  `mapstructure:"output"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ExtractConfig selects the feed.
type ExtractConfig struct {
	Endpoint string `mapstructure:"endpoint"`
}

// FetchConfig governs the HTTP fetcher.
type FetchConfig struct {
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests"`
	PacingDelay           time.Duration `mapstructure:"pacing_delay"`
	MaxAttempts           int           `mapstructure:"max_attempts"`
	BackoffFactor         time.Duration `mapstructure:"backoff_factor"`
	RequestTimeout        time.Duration `mapstructure:"request_timeout"`
	DNSCacheTTL           time.Duration `mapstructure:"dns_cache_ttl"`
	KeepAliveIdle         time.Duration `mapstructure:"keepalive_idle"`
	KeepAliveInterval     time.Duration `mapstructure:"keepalive_interval"`
	KeepAliveCount        int           `mapstructure:"keepalive_count"`
	RateLimitRPS          float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst        int           `mapstructure:"rate_limit_burst"`
	UserAgent             string        `mapstructure:"user_agent"`
}

// OutputConfig sets where the blocklist is written.
type OutputConfig struct {
	Path      string `mapstructure:"path"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSObject string `mapstructure:"gcs_object"`
}

// PubSubConfig enables update notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether notifications are configured.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" && c.Topic != ""
}

// MetricsConfig controls the Pushgateway push at the end of a run.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// SetDefaults registers every key with its default value. Keys must be known
// to Viper for environment overrides to apply during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)

	v.SetDefault("extract.endpoint", "https://urlsec.qq.com/cgi/risk/getList")

	v.SetDefault("fetch.max_concurrent_requests", 5)
	v.SetDefault("fetch.pacing_delay", 500*time.Millisecond)
	v.SetDefault("fetch.max_attempts", 5)
	v.SetDefault("fetch.backoff_factor", time.Second)
	v.SetDefault("fetch.request_timeout", 300*time.Second)
	v.SetDefault("fetch.dns_cache_ttl", 300*time.Second)
	v.SetDefault("fetch.keepalive_idle", 60*time.Second)
	v.SetDefault("fetch.keepalive_interval", 2*time.Second)
	v.SetDefault("fetch.keepalive_count", 5)
	v.SetDefault("fetch.rate_limit_rps", 0.0)
	v.SetDefault("fetch.rate_limit_burst", 1)
	v.SetDefault("fetch.user_agent", "")

	v.SetDefault("output.path", "blocklist.txt")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("output.gcs_object", "blocklist.txt")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")

	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "urlsec_blocklist")
}

// BindEnv enables URLSEC_* environment overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load builds a Config from defaults, the environment and, when path is set,
// the given file.
func Load(path string) (Config, error) {
	v := viper.New()
	BindEnv(v)
	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper unmarshals and validates the settings held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Extract.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("extract.endpoint must be an absolute http(s) URL, got %q", c.Extract.Endpoint)
	}
	if c.Fetch.MaxConcurrentRequests <= 0 {
		return errors.New("fetch.max_concurrent_requests must be > 0")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return errors.New("fetch.max_attempts must be > 0")
	}
	if c.Fetch.PacingDelay < 0 || c.Fetch.BackoffFactor < 0 {
		return errors.New("fetch.pacing_delay and fetch.backoff_factor must not be negative")
	}
	if c.Fetch.RequestTimeout <= 0 {
		return errors.New("fetch.request_timeout must be > 0")
	}
	if c.Fetch.KeepAliveCount < 0 {
		return errors.New("fetch.keepalive_count must not be negative")
	}
	if c.Fetch.RateLimitRPS < 0 {
		return errors.New("fetch.rate_limit_rps must not be negative")
	}
	if strings.TrimSpace(c.Output.Path) == "" {
		return errors.New("output.path must be set")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		return errors.New("pubsub.project_id and pubsub.topic must be set together")
	}
	return nil
}
