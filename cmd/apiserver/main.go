// Command apiserver runs the ipscope HTTP API: the synchronous /api/ipdata
// lookup endpoint, the asynchronous recount endpoints, and the operational
// probes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/ipscope/internal/application/recount"
	"github.com/turtacn/ipscope/internal/config"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ipscope/internal/infrastructure/monitoring/prometheus"
	httpserver "github.com/turtacn/ipscope/internal/interfaces/http"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML config file; empty reads IPSCOPE_* environment only")
	port := flag.Int("port", 0, "HTTP listen port (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		OutputPaths:      cfg.Log.OutputPaths,
		ErrorOutputPaths: cfg.Log.ErrorOutputPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	logger = logger.Named("apiserver")

	logger.Info("starting ipscope api server",
		logging.String("version", version),
		logging.String("host", cfg.Server.Host),
		logging.Int("port", cfg.Server.Port))

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "ipscope",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		logger.Fatal("metrics collector init failed", logging.Err(err))
	}
	metrics := prometheus.NewMetrics(collector)

	infra, err := initInfrastructure(cfg, logger)
	if err != nil {
		logger.Fatal("infrastructure init failed", logging.Err(err))
	}
	defer infra.Close(logger)

	aggregator, err := buildAggregator(cfg, infra, metrics, logger)
	if err != nil {
		logger.Fatal("aggregation service init failed", logging.Err(err))
	}

	recounts, err := recount.NewService(recount.ServiceOptions{
		Producer: infra.producer,
		Results:  infra.results,
		Logger:   logger,
		Source:   "apiserver",
	})
	if err != nil {
		logger.Fatal("recount service init failed", logging.Err(err))
	}

	router := buildRouter(cfg, aggregator, recounts, infra, collector, metrics, logger)
	server := httpserver.NewServer(cfg.Server, router, logger)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", logging.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", logging.Err(err))
		}
	}

	if err := server.Stop(context.Background()); err != nil {
		logger.Error("http server shutdown error", logging.Err(err))
	}
	logger.Info("ipscope api server stopped")
}

// loadConfig resolves the startup configuration: a YAML file when a path is
// given, IPSCOPE_* environment variables otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}
