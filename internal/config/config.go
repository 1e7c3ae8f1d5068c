// Package config defines all configuration structures for ipscope.  No I/O or
// parsing logic lives here — only plain data types and validation.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst  int           `mapstructure:"rate_limit_burst"`
	EnableCORS      bool          `mapstructure:"enable_cors"`
}

// LogConfig holds structured-logging parameters.  It is converted to the
// logging package's own config type in cmd/*/main.go so this package stays
// free of infrastructure imports.
type LogConfig struct {
	Level            string   `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format           string   `mapstructure:"format"` // "json" | "console"
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// CacheConfig controls caching of whole aggregation results.  Disabled by
// default: the synchronous lookup path always reflects live upstream data
// unless operators opt in.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	ResultTTL  time.Duration `mapstructure:"result_ttl"`
	RecountTTL time.Duration `mapstructure:"recount_ttl"`
}

// KafkaConfig holds Kafka producer/consumer parameters for the asynchronous
// recount pipeline.
type KafkaConfig struct {
	Brokers           []string `mapstructure:"brokers"`
	GroupID           string   `mapstructure:"group_id"`
	AutoOffsetReset   string   `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	ProducerRetries   int      `mapstructure:"producer_retries"`
	BatchSize         int      `mapstructure:"batch_size"`
	AutoCreateTopics  bool     `mapstructure:"auto_create_topics"`
	NumPartitions     int      `mapstructure:"num_partitions"`
	ReplicationFactor int      `mapstructure:"replication_factor"`
}

// SourceEndpoint describes how to reach one upstream registry.  The lookup
// URL is assembled as BaseURL + Path + "?" + QueryParam + "=" + candidate.
type SourceEndpoint struct {
	BaseURL    string `mapstructure:"base_url"`
	Path       string `mapstructure:"path"`
	QueryParam string `mapstructure:"query_param"`
	// FallbackPath is tried only after the primary path fails outright; an
	// empty success never triggers fallback.  Only the pending-applications
	// registry uses it.
	FallbackPath string `mapstructure:"fallback_path"`
}

// SourcesConfig holds upstream registry endpoints and the shared outbound
// HTTP behaviour for all adapters.
type SourcesConfig struct {
	Patents    SourceEndpoint `mapstructure:"patents"`
	Trademarks SourceEndpoint `mapstructure:"trademarks"`
	Pending    SourceEndpoint `mapstructure:"pending"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	// MaxSampleDocs caps how many raw documents a pending-applications call
	// carries into the trace for heuristic classification.
	MaxSampleDocs int `mapstructure:"max_sample_docs"`
	// CacheTTL enables a short-lived cache of validated upstream response
	// bodies keyed by lookup URL.  Zero disables it, which is the default:
	// lookups see live registry data unless operators opt in.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// AggregationConfig holds fan-out behaviour for one aggregate call.
type AggregationConfig struct {
	// MaxConcurrency bounds simultaneous adapter calls across the whole
	// (candidates × sources) grid of one aggregation.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// Timeout is the overall deadline for one aggregate call; attempts still
	// outstanding when it expires are recorded as "timeout" failures.
	Timeout time.Duration `mapstructure:"timeout"`
}

// WorkerConfig holds background recount-worker execution parameters.
type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// HealthPort is the side port serving /healthz, /readyz and /metrics,
	// away from any ingress routing.
	HealthPort int `mapstructure:"health_port"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for all ipscope binaries.  The
// API server, the recount worker, and the CLI each read the sub-structs they
// need and ignore the rest.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Sources     SourcesConfig     `mapstructure:"sources"`
	Aggregation AggregationConfig `mapstructure:"aggregation"`
	Worker      WorkerConfig      `mapstructure:"worker"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// validateEndpoint checks one registry endpoint for structural sanity.
func validateEndpoint(name string, ep SourceEndpoint) error {
	u, err := url.Parse(ep.BaseURL)
	if err != nil {
		return fmt.Errorf("config: sources.%s.base_url %q is not a valid URL: %w", name, ep.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: sources.%s.base_url %q must use http or https", name, ep.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("config: sources.%s.base_url %q is missing a host", name, ep.BaseURL)
	}
	if !strings.HasPrefix(ep.Path, "/") {
		return fmt.Errorf("config: sources.%s.path %q must start with '/'", name, ep.Path)
	}
	if ep.QueryParam == "" {
		return fmt.Errorf("config: sources.%s.query_param is required", name)
	}
	if ep.FallbackPath != "" && !strings.HasPrefix(ep.FallbackPath, "/") {
		return fmt.Errorf("config: sources.%s.fallback_path %q must start with '/'", name, ep.FallbackPath)
	}
	return nil
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("config: server.rate_limit_rps must be > 0, got %v", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("config: server.rate_limit_burst must be ≥ 1, got %d", c.Server.RateLimitBurst)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	// Redis
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Cache
	if c.Cache.Enabled && c.Cache.ResultTTL <= 0 {
		return fmt.Errorf("config: cache.result_ttl must be > 0 when cache is enabled")
	}
	if c.Cache.RecountTTL <= 0 {
		return fmt.Errorf("config: cache.recount_ttl must be > 0, got %v", c.Cache.RecountTTL)
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}
	switch c.Kafka.AutoOffsetReset {
	case "earliest", "latest":
	default:
		return fmt.Errorf("config: kafka.auto_offset_reset %q is invalid; expected earliest|latest", c.Kafka.AutoOffsetReset)
	}

	// Sources
	if err := validateEndpoint("patents", c.Sources.Patents); err != nil {
		return err
	}
	if err := validateEndpoint("trademarks", c.Sources.Trademarks); err != nil {
		return err
	}
	if err := validateEndpoint("pending", c.Sources.Pending); err != nil {
		return err
	}
	if c.Sources.RequestTimeout <= 0 {
		return fmt.Errorf("config: sources.request_timeout must be > 0, got %v", c.Sources.RequestTimeout)
	}
	if c.Sources.RateLimitRPS <= 0 {
		return fmt.Errorf("config: sources.rate_limit_rps must be > 0, got %v", c.Sources.RateLimitRPS)
	}
	if c.Sources.RateLimitBurst < 1 {
		return fmt.Errorf("config: sources.rate_limit_burst must be ≥ 1, got %d", c.Sources.RateLimitBurst)
	}
	if c.Sources.MaxSampleDocs < 0 {
		return fmt.Errorf("config: sources.max_sample_docs must be ≥ 0, got %d", c.Sources.MaxSampleDocs)
	}
	if c.Sources.CacheTTL < 0 {
		return fmt.Errorf("config: sources.cache_ttl must be ≥ 0, got %v", c.Sources.CacheTTL)
	}

	// Aggregation
	if c.Aggregation.MaxConcurrency < 1 {
		return fmt.Errorf("config: aggregation.max_concurrency must be ≥ 1, got %d", c.Aggregation.MaxConcurrency)
	}
	if c.Aggregation.Timeout <= 0 {
		return fmt.Errorf("config: aggregation.timeout must be > 0, got %v", c.Aggregation.Timeout)
	}
	if c.Aggregation.Timeout <= c.Sources.RequestTimeout {
		return fmt.Errorf("config: aggregation.timeout %v must exceed sources.request_timeout %v",
			c.Aggregation.Timeout, c.Sources.RequestTimeout)
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.MaxRetries < 0 {
		return fmt.Errorf("config: worker.max_retries must be ≥ 0, got %d", c.Worker.MaxRetries)
	}
	if c.Worker.HealthPort < 1 || c.Worker.HealthPort > 65535 {
		return fmt.Errorf("config: worker.health_port %d is out of range [1, 65535]", c.Worker.HealthPort)
	}

	return nil
}
