package main

import (
	"context"
	"net/http"
	"time"

	"github.com/turtacn/ipscope/internal/application/aggregation"
	"github.com/turtacn/ipscope/internal/application/recount"
	"github.com/turtacn/ipscope/internal/config"
	redisdb "github.com/turtacn/ipscope/internal/infrastructure/database/redis"
	kafkainfra "github.com/turtacn/ipscope/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ipscope/internal/infrastructure/registry"
	httpserver "github.com/turtacn/ipscope/internal/interfaces/http"
	"github.com/turtacn/ipscope/internal/interfaces/http/handlers"
	"github.com/turtacn/ipscope/internal/interfaces/http/middleware"
)

// serverInfrastructure holds the API server's long-lived clients.  Close
// releases them in reverse construction order.
type serverInfrastructure struct {
	redis    *redisdb.Client
	results  *redisdb.ResultStore
	producer *kafkainfra.Producer
}

func (s *serverInfrastructure) Close(logger logging.Logger) {
	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			logger.Warn("kafka producer close failed", logging.Err(err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			logger.Warn("redis close failed", logging.Err(err))
		}
	}
}

// initInfrastructure connects the external dependencies: Redis for the result
// store and Kafka for the recount pipeline.  On partial failure everything
// already opened is closed before returning.
func initInfrastructure(cfg *config.Config, logger logging.Logger) (*serverInfrastructure, error) {
	infra := &serverInfrastructure{}

	client, err := redisdb.NewClient(cfg.Redis, logger)
	if err != nil {
		return nil, err
	}
	infra.redis = client

	store := redisdb.NewStore(client, logger, redisdb.WithPrefix(cfg.Redis.KeyPrefix))
	infra.results = redisdb.NewResultStore(store, cfg.Cache, logger)

	if cfg.Kafka.AutoCreateTopics {
		if err := ensurePipelineTopics(cfg, logger); err != nil {
			infra.Close(logger)
			return nil, err
		}
	}

	producer, err := kafkainfra.NewProducer(kafkainfra.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		Acks:       "all",
		MaxRetries: cfg.Kafka.ProducerRetries,
		BatchSize:  cfg.Kafka.BatchSize,
	}, logger)
	if err != nil {
		infra.Close(logger)
		return nil, err
	}
	infra.producer = producer

	logger.Info("infrastructure initialized",
		logging.String("redis", cfg.Redis.Addr),
		logging.Any("kafka_brokers", cfg.Kafka.Brokers))
	return infra, nil
}

// ensurePipelineTopics creates the recount pipeline topics that do not exist
// yet.  Meant for development and single-node deploys; production clusters
// provision topics out of band.
func ensurePipelineTopics(cfg *config.Config, logger logging.Logger) error {
	manager, err := kafkainfra.NewTopicManager(cfg.Kafka.Brokers, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return manager.EnsureTopics(ctx, kafkainfra.PipelineTopics(cfg.Kafka.NumPartitions, cfg.Kafka.ReplicationFactor))
}

// buildRegistryAdapters assembles the three upstream source adapters over one
// shared rate-limited HTTP client.  A nil bodies cache keeps every lookup
// live.
func buildRegistryAdapters(cfg *config.Config, bodies registry.BodyCache, logger logging.Logger) []registry.Adapter {
	doer := registry.NewRateLimitedDoer(registry.NewHTTPClient(), cfg.Sources.RateLimitRPS, cfg.Sources.RateLimitBurst)

	base := registry.Options{
		Doer:       doer,
		Cache:      bodies,
		Timeout:    cfg.Sources.RequestTimeout,
		UserAgent:  cfg.Sources.UserAgent,
		SampleSize: cfg.Sources.MaxSampleDocs,
		Logger:     logger,
	}

	patents := base
	patents.Endpoint = cfg.Sources.Patents
	trademarks := base
	trademarks.Endpoint = cfg.Sources.Trademarks
	pending := base
	pending.Endpoint = cfg.Sources.Pending

	// slice order fixes the per-candidate trace layout
	return []registry.Adapter{
		registry.NewPatentsAdapter(patents),
		registry.NewTrademarksAdapter(trademarks),
		registry.NewPendingAdapter(pending),
	}
}

// buildAggregator wires the aggregation service with live adapters, metrics
// and, when enabled, the Redis-backed caches.
func buildAggregator(cfg *config.Config, infra *serverInfrastructure, metrics *prometheus.Metrics, logger logging.Logger) (aggregation.Service, error) {
	var bodies registry.BodyCache
	if cfg.Sources.CacheTTL > 0 {
		bodies = redisdb.NewSourceCache(infra.redis, logger, cfg.Redis.KeyPrefix, cfg.Sources.CacheTTL)
	}

	opts := aggregation.Options{
		Adapters:       buildRegistryAdapters(cfg, bodies, logger),
		Metrics:        prometheus.NewRecorder(metrics),
		Logger:         logger,
		MaxConcurrency: cfg.Aggregation.MaxConcurrency,
		Timeout:        cfg.Aggregation.Timeout,
	}
	if cfg.Cache.Enabled {
		opts.Cache = infra.results
	}
	return aggregation.NewService(opts)
}

// buildRouter assembles the complete route tree from config-driven handlers
// and middleware.
func buildRouter(
	cfg *config.Config,
	aggregator aggregation.Service,
	recounts recount.Service,
	infra *serverInfrastructure,
	collector prometheus.MetricsCollector,
	metrics *prometheus.Metrics,
	logger logging.Logger,
) http.Handler {
	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.Server.RateLimitRPS
	rl.Burst = cfg.Server.RateLimitBurst

	routerCfg := httpserver.RouterConfig{
		IPData:   handlers.NewIPDataHandler(aggregator, logger),
		Recounts: handlers.NewRecountHandler(recounts, logger, cfg.Server.MaxBodySize),
		Health: handlers.NewHealthHandler(version,
			handlers.NewChecker("redis", infra.redis.Ping),
			handlers.NewChecker("kafka", func(ctx context.Context) error {
				return kafkainfra.Ping(ctx, cfg.Kafka.Brokers)
			}),
		),

		Logging:   middleware.NewLoggingMiddleware(logger, middleware.DefaultLoggingConfig()),
		Metrics:   middleware.NewMetricsMiddleware(metrics),
		RateLimit: middleware.NewRateLimitMiddleware(rl),

		MetricsHandler: collector.Handler(),
	}
	if cfg.Server.EnableCORS {
		routerCfg.CORS = middleware.NewCORSMiddleware(middleware.DefaultCORSConfig())
	}
	return httpserver.NewRouter(routerCfg)
}
