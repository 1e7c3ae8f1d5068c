package config

import "time"

// Default values applied by ApplyDefaults for any field left at its zero
// value.  Grouped by sub-config.
const (
	// Server
	DefaultServerHost            = "0.0.0.0"
	DefaultServerPort            = 8080
	DefaultServerReadTimeout     = 15 * time.Second
	DefaultServerWriteTimeout    = 60 * time.Second
	DefaultServerShutdownTimeout = 15 * time.Second
	DefaultServerMaxBodySize     = int64(1 << 20) // 1 MiB
	DefaultServerRateLimitRPS    = 50.0
	DefaultServerRateLimitBurst  = 100

	// Log
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Redis
	DefaultRedisAddr         = "localhost:6379"
	DefaultRedisPoolSize     = 10
	DefaultRedisMinIdleConns = 2
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisKeyPrefix    = "ipscope:"

	// Cache
	DefaultCacheResultTTL  = 15 * time.Minute
	DefaultCacheRecountTTL = 24 * time.Hour

	// Kafka
	DefaultKafkaBroker            = "localhost:9092"
	DefaultKafkaGroupID           = "ipscope-workers"
	DefaultKafkaAutoOffsetReset   = "earliest"
	DefaultKafkaProducerRetries   = 3
	DefaultKafkaBatchSize         = 100
	DefaultKafkaNumPartitions     = 3
	DefaultKafkaReplicationFactor = 1

	// Sources — upstream registry endpoints
	DefaultPatentsBaseURL    = "https://api.patentsview.org"
	DefaultPatentsPath       = "/patents/query"
	DefaultPatentsQueryParam = "q"

	DefaultTrademarksBaseURL    = "https://tmsearch.uspto.gov"
	DefaultTrademarksPath       = "/api/v1/trademarks/search"
	DefaultTrademarksQueryParam = "owner"

	DefaultPendingBaseURL      = "https://ped.uspto.gov"
	DefaultPendingPath         = "/api/v1/applications/search"
	DefaultPendingQueryParam   = "applicant"
	DefaultPendingFallbackPath = "/api/v1/queries"

	// Sources — shared outbound behaviour
	DefaultSourceRequestTimeout = 30 * time.Second
	DefaultSourceUserAgent      = "ipscope/1.0"
	DefaultSourceRateLimitRPS   = 10.0
	DefaultSourceRateLimitBurst = 20
	DefaultSourceMaxSampleDocs  = 5

	// Aggregation
	DefaultAggregationMaxConcurrency = 6
	DefaultAggregationTimeout        = 45 * time.Second

	// Worker
	DefaultWorkerConcurrency  = 4
	DefaultWorkerMaxRetries   = 3
	DefaultWorkerRetryBackoff = 2 * time.Second
	DefaultWorkerHealthPort   = 8081
)

// applyEndpointDefaults fills one endpoint's unset fields.
func applyEndpointDefaults(ep *SourceEndpoint, baseURL, path, param, fallback string) {
	if ep.BaseURL == "" {
		ep.BaseURL = baseURL
	}
	if ep.Path == "" {
		ep.Path = path
	}
	if ep.QueryParam == "" {
		ep.QueryParam = param
	}
	if ep.FallbackPath == "" {
		ep.FallbackPath = fallback
	}
}

// ApplyDefaults fills every zero-valued field of cfg with its default.
// Explicitly-set values are never overwritten; callers run Validate
// afterwards to reject combinations that remain invalid.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// Server
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultServerMaxBodySize
	}
	if cfg.Server.RateLimitRPS == 0 {
		cfg.Server.RateLimitRPS = DefaultServerRateLimitRPS
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = DefaultServerRateLimitBurst
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.MinIdleConns == 0 {
		cfg.Redis.MinIdleConns = DefaultRedisMinIdleConns
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = DefaultRedisReadTimeout
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = DefaultRedisWriteTimeout
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	// Cache
	if cfg.Cache.ResultTTL == 0 {
		cfg.Cache.ResultTTL = DefaultCacheResultTTL
	}
	if cfg.Cache.RecountTTL == 0 {
		cfg.Cache.RecountTTL = DefaultCacheRecountTTL
	}

	// Kafka
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = DefaultKafkaAutoOffsetReset
	}
	if cfg.Kafka.ProducerRetries == 0 {
		cfg.Kafka.ProducerRetries = DefaultKafkaProducerRetries
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = DefaultKafkaBatchSize
	}
	if cfg.Kafka.NumPartitions == 0 {
		cfg.Kafka.NumPartitions = DefaultKafkaNumPartitions
	}
	if cfg.Kafka.ReplicationFactor == 0 {
		cfg.Kafka.ReplicationFactor = DefaultKafkaReplicationFactor
	}

	// Sources
	applyEndpointDefaults(&cfg.Sources.Patents,
		DefaultPatentsBaseURL, DefaultPatentsPath, DefaultPatentsQueryParam, "")
	applyEndpointDefaults(&cfg.Sources.Trademarks,
		DefaultTrademarksBaseURL, DefaultTrademarksPath, DefaultTrademarksQueryParam, "")
	applyEndpointDefaults(&cfg.Sources.Pending,
		DefaultPendingBaseURL, DefaultPendingPath, DefaultPendingQueryParam, DefaultPendingFallbackPath)
	if cfg.Sources.RequestTimeout == 0 {
		cfg.Sources.RequestTimeout = DefaultSourceRequestTimeout
	}
	if cfg.Sources.UserAgent == "" {
		cfg.Sources.UserAgent = DefaultSourceUserAgent
	}
	if cfg.Sources.RateLimitRPS == 0 {
		cfg.Sources.RateLimitRPS = DefaultSourceRateLimitRPS
	}
	if cfg.Sources.RateLimitBurst == 0 {
		cfg.Sources.RateLimitBurst = DefaultSourceRateLimitBurst
	}
	if cfg.Sources.MaxSampleDocs == 0 {
		cfg.Sources.MaxSampleDocs = DefaultSourceMaxSampleDocs
	}

	// Aggregation
	if cfg.Aggregation.MaxConcurrency == 0 {
		cfg.Aggregation.MaxConcurrency = DefaultAggregationMaxConcurrency
	}
	if cfg.Aggregation.Timeout == 0 {
		cfg.Aggregation.Timeout = DefaultAggregationTimeout
	}

	// Worker
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = DefaultWorkerRetryBackoff
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = DefaultWorkerMaxRetries
	}
	if cfg.Worker.HealthPort == 0 {
		cfg.Worker.HealthPort = DefaultWorkerHealthPort
	}
}
