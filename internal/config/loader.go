package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix shared by all ipscope
// binaries.
const envPrefix = "IPSCOPE"

// newViper builds a pre-configured Viper instance: YAML file type, IPSCOPE_
// env prefix, automatic env binding, and a key replacer mapping "." → "_" so
// nested keys like "sources.patents.base_url" resolve to
// IPSCOPE_SOURCES_PATENTS_BASE_URL.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setViperDefaults(v)
	return v
}

// setViperDefaults registers every configuration key with viper.  Viper only
// consults the environment for keys it knows about, so without this step
// IPSCOPE_* overrides would be ignored when no config file is present.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.read_timeout", DefaultServerReadTimeout)
	v.SetDefault("server.write_timeout", DefaultServerWriteTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultServerShutdownTimeout)
	v.SetDefault("server.max_body_size", DefaultServerMaxBodySize)
	v.SetDefault("server.rate_limit_rps", DefaultServerRateLimitRPS)
	v.SetDefault("server.rate_limit_burst", DefaultServerRateLimitBurst)
	v.SetDefault("server.enable_cors", false)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.output_paths", []string{"stdout"})
	v.SetDefault("log.error_output_paths", []string{"stderr"})

	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", DefaultRedisPoolSize)
	v.SetDefault("redis.min_idle_conns", DefaultRedisMinIdleConns)
	v.SetDefault("redis.dial_timeout", DefaultRedisDialTimeout)
	v.SetDefault("redis.read_timeout", DefaultRedisReadTimeout)
	v.SetDefault("redis.write_timeout", DefaultRedisWriteTimeout)
	v.SetDefault("redis.key_prefix", DefaultRedisKeyPrefix)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.result_ttl", DefaultCacheResultTTL)
	v.SetDefault("cache.recount_ttl", DefaultCacheRecountTTL)

	v.SetDefault("kafka.brokers", []string{DefaultKafkaBroker})
	v.SetDefault("kafka.group_id", DefaultKafkaGroupID)
	v.SetDefault("kafka.auto_offset_reset", DefaultKafkaAutoOffsetReset)
	v.SetDefault("kafka.producer_retries", DefaultKafkaProducerRetries)
	v.SetDefault("kafka.batch_size", DefaultKafkaBatchSize)
	v.SetDefault("kafka.auto_create_topics", true)
	v.SetDefault("kafka.num_partitions", DefaultKafkaNumPartitions)
	v.SetDefault("kafka.replication_factor", DefaultKafkaReplicationFactor)

	v.SetDefault("sources.patents.base_url", DefaultPatentsBaseURL)
	v.SetDefault("sources.patents.path", DefaultPatentsPath)
	v.SetDefault("sources.patents.query_param", DefaultPatentsQueryParam)
	v.SetDefault("sources.trademarks.base_url", DefaultTrademarksBaseURL)
	v.SetDefault("sources.trademarks.path", DefaultTrademarksPath)
	v.SetDefault("sources.trademarks.query_param", DefaultTrademarksQueryParam)
	v.SetDefault("sources.pending.base_url", DefaultPendingBaseURL)
	v.SetDefault("sources.pending.path", DefaultPendingPath)
	v.SetDefault("sources.pending.query_param", DefaultPendingQueryParam)
	v.SetDefault("sources.pending.fallback_path", DefaultPendingFallbackPath)
	v.SetDefault("sources.request_timeout", DefaultSourceRequestTimeout)
	v.SetDefault("sources.user_agent", DefaultSourceUserAgent)
	v.SetDefault("sources.rate_limit_rps", DefaultSourceRateLimitRPS)
	v.SetDefault("sources.rate_limit_burst", DefaultSourceRateLimitBurst)
	v.SetDefault("sources.max_sample_docs", DefaultSourceMaxSampleDocs)
	v.SetDefault("sources.cache_ttl", time.Duration(0))

	v.SetDefault("aggregation.max_concurrency", DefaultAggregationMaxConcurrency)
	v.SetDefault("aggregation.timeout", DefaultAggregationTimeout)

	v.SetDefault("worker.concurrency", DefaultWorkerConcurrency)
	v.SetDefault("worker.max_retries", DefaultWorkerMaxRetries)
	v.SetDefault("worker.retry_backoff", DefaultWorkerRetryBackoff)
	v.SetDefault("worker.health_port", DefaultWorkerHealthPort)
}

// Load reads the YAML file at configPath, merges any IPSCOPE_* environment
// variable overrides, applies defaults for unset fields, and validates the
// result.  It returns a fully-populated *Config or a descriptive error.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from IPSCOPE_* environment variables
// with no config file required.  This is the preferred loading strategy for
// containerised deployments; with no overrides set it yields the default
// configuration.
func LoadFromEnv() (*Config, error) {
	v := newViper()
	return unmarshalAndFinalize(v)
}

// unmarshalAndFinalize unmarshals viper state into a Config, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file is modified on disk.  Intended for
// hot-reloading non-critical settings such as log level and rate-limit
// thresholds; callers apply only the safe subset of changes at runtime.
//
// Watch is non-blocking; it starts a background goroutine managed by viper.
// A change that fails to parse or validate is skipped so the application
// never observes a broken configuration.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Initial read; callers are expected to have called Load successfully
	// first, so errors here are ignored.
	_ = v.ReadInConfig()

	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// MustLoad is a convenience wrapper around Load that panics on any error.
// Intended for main() where a config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
