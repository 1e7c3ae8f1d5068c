// Command worker runs the asynchronous recount worker: it consumes
// recount.requested events, executes the aggregation under a per-request
// distributed lock, persists the result, and announces completion.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/turtacn/ipscope/internal/application/aggregation"
	"github.com/turtacn/ipscope/internal/application/recount"
	"github.com/turtacn/ipscope/internal/config"
	redisdb "github.com/turtacn/ipscope/internal/infrastructure/database/redis"
	kafkainfra "github.com/turtacn/ipscope/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/ipscope/internal/infrastructure/registry"
	"github.com/turtacn/ipscope/internal/interfaces/http/handlers"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const shutdownDrainBudget = 60 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML config file; empty reads IPSCOPE_* environment only")
	workers := flag.Int("workers", 0, "concurrent consumers in the group (overrides config)")
	healthPort := flag.Int("health-port", 0, "port for health probes and metrics (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.Worker.Concurrency = *workers
	}
	if *healthPort > 0 {
		cfg.Worker.HealthPort = *healthPort
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		OutputPaths:      cfg.Log.OutputPaths,
		ErrorOutputPaths: cfg.Log.ErrorOutputPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "worker: logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	logger = logger.Named("worker")

	logger.Info("starting ipscope recount worker",
		logging.String("version", version),
		logging.Int("concurrency", cfg.Worker.Concurrency),
		logging.String("group", cfg.Kafka.GroupID))

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "ipscope",
		Subsystem:            "worker",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		logger.Fatal("metrics collector init failed", logging.Err(err))
	}
	metrics := prometheus.NewMetrics(collector)

	redisClient, err := redisdb.NewClient(cfg.Redis, logger)
	if err != nil {
		logger.Fatal("redis init failed", logging.Err(err))
	}
	defer redisClient.Close()

	store := redisdb.NewStore(redisClient, logger, redisdb.WithPrefix(cfg.Redis.KeyPrefix))
	results := redisdb.NewResultStore(store, cfg.Cache, logger)

	if cfg.Kafka.AutoCreateTopics {
		if err := ensurePipelineTopics(cfg, logger); err != nil {
			logger.Fatal("topic creation failed", logging.Err(err))
		}
	}

	producer, err := kafkainfra.NewProducer(kafkainfra.ProducerConfig{
		Brokers:    cfg.Kafka.Brokers,
		Acks:       "all",
		MaxRetries: cfg.Kafka.ProducerRetries,
		BatchSize:  cfg.Kafka.BatchSize,
	}, logger)
	if err != nil {
		logger.Fatal("kafka producer init failed", logging.Err(err))
	}
	defer producer.Close()

	aggregator, err := buildAggregator(cfg, redisClient, results, metrics, logger)
	if err != nil {
		logger.Fatal("aggregation service init failed", logging.Err(err))
	}

	handler, err := recount.NewHandler(recount.HandlerOptions{
		Aggregator: aggregator,
		Results:    results,
		Producer:   producer,
		Locks: func(name string) recount.Locker {
			// each handled request gets its own token-bearing instance
			return redisdb.NewMutex(redisClient, logger, cfg.Redis.KeyPrefix, name,
				redisdb.WithWatchdog(true))
		},
		Metrics: metrics,
		Logger:  logger,
		Source:  "worker",
	})
	if err != nil {
		logger.Fatal("recount handler init failed", logging.Err(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumers, err := startConsumers(ctx, cfg, handler, logger)
	if err != nil {
		logger.Fatal("consumer startup failed", logging.Err(err))
	}

	healthSrv := startHealthServer(cfg.Worker.HealthPort, redisClient, cfg.Kafka.Brokers, collector, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("received shutdown signal", logging.String("signal", sig.String()))

	cancel()
	closeConsumers(consumers, logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("health server shutdown error", logging.Err(err))
	}

	logger.Info("ipscope recount worker stopped")
}

// loadConfig resolves the startup configuration: a YAML file when a path is
// given, IPSCOPE_* environment variables otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

// ensurePipelineTopics creates the recount pipeline topics that do not exist
// yet.  Meant for development and single-node deploys.
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

// buildAggregator wires the aggregation service the worker runs recounts
// with: live adapters, metrics, and the shared caches when enabled.
func buildAggregator(cfg *config.Config, redisClient *redisdb.Client, results *redisdb.ResultStore, metrics *prometheus.Metrics, logger logging.Logger) (aggregation.Service, error) {
	doer := registry.NewRateLimitedDoer(registry.NewHTTPClient(), cfg.Sources.RateLimitRPS, cfg.Sources.RateLimitBurst)

	var bodies registry.BodyCache
	if cfg.Sources.CacheTTL > 0 {
		bodies = redisdb.NewSourceCache(redisClient, logger, cfg.Redis.KeyPrefix, cfg.Sources.CacheTTL)
	}

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

	opts := aggregation.Options{
		Adapters: []registry.Adapter{
			registry.NewPatentsAdapter(patents),
			registry.NewTrademarksAdapter(trademarks),
			registry.NewPendingAdapter(pending),
		},
		Metrics:        prometheus.NewRecorder(metrics),
		Logger:         logger,
		MaxConcurrency: cfg.Aggregation.MaxConcurrency,
		Timeout:        cfg.Aggregation.Timeout,
	}
	if cfg.Cache.Enabled {
		opts.Cache = results
	}
	return aggregation.NewService(opts)
}

// startConsumers launches cfg.Worker.Concurrency consumers in the same
// group.  Parallelism comes from group membership: the brokers spread the
// requested-topic partitions across the instances.
func startConsumers(ctx context.Context, cfg *config.Config, handler *recount.Handler, logger logging.Logger) ([]*kafkainfra.Consumer, error) {
	consumerCfg := kafkainfra.ConsumerConfig{
		Brokers:         cfg.Kafka.Brokers,
		GroupID:         cfg.Kafka.GroupID,
		Topics:          []string{kafkainfra.TopicRecountRequested},
		AutoOffsetReset: cfg.Kafka.AutoOffsetReset,
		Retry: kafkainfra.RetryConfig{
			MaxRetries:      cfg.Worker.MaxRetries,
			RetryBackoff:    cfg.Worker.RetryBackoff,
			DeadLetterTopic: kafkainfra.TopicRecountDeadLetter,
		},
	}

	consumers := make([]*kafkainfra.Consumer, 0, cfg.Worker.Concurrency)
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		consumer, err := kafkainfra.NewConsumer(consumerCfg, logger)
		if err != nil {
			closeConsumers(consumers, logger)
			return nil, err
		}
		consumer.Subscribe(kafkainfra.TopicRecountRequested, handler.HandleRequested)
		if err := consumer.Start(ctx); err != nil {
			consumer.Close()
			closeConsumers(consumers, logger)
			return nil, err
		}
		consumers = append(consumers, consumer)
	}
	logger.Info("consumers started", logging.Int("count", len(consumers)))
	return consumers, nil
}

// closeConsumers shuts the consumers down concurrently, bounded by the drain
// budget.  A consumer that exceeds it leaves its in-flight offset
// uncommitted, so the request redelivers and the per-request lock keeps the
// redelivery safe.
func closeConsumers(consumers []*kafkainfra.Consumer, logger logging.Logger) {
	var wg sync.WaitGroup
	for _, consumer := range consumers {
		wg.Add(1)
		go func(c *kafkainfra.Consumer) {
			defer wg.Done()
			if err := c.Close(); err != nil {
				logger.Warn("consumer close failed", logging.Err(err))
			}
		}(consumer)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("all consumers drained")
	case <-time.After(shutdownDrainBudget):
		logger.Warn("consumer drain budget exceeded, forcing exit")
	}
}

// startHealthServer exposes the probes and the metrics scrape endpoint on a
// side port, away from any ingress routing.
func startHealthServer(port int, redisClient *redisdb.Client, brokers []string, collector prometheus.MetricsCollector, logger logging.Logger) *http.Server {
	health := handlers.NewHealthHandler(version,
		handlers.NewChecker("redis", redisClient.Ping),
		handlers.NewChecker("kafka", func(ctx context.Context) error {
			return kafkainfra.Ping(ctx, brokers)
		}),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.Liveness)
	mux.HandleFunc("/readyz", health.Readiness)
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		logger.Info("health server listening", logging.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health server error", logging.Err(err))
		}
	}()
	return srv
}
