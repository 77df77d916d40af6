package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/tronsend/service/config"
	"github.com/brojonat/tronsend/service/db"
	"github.com/brojonat/tronsend/service/metrics"
	natspkg "github.com/brojonat/tronsend/service/nats"
	"github.com/brojonat/tronsend/service/temporal"
	"github.com/brojonat/tronsend/service/transfer"
	"github.com/brojonat/tronsend/service/tron"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics collector
	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry
	logger.Info("Prometheus metrics collector initialized")

	// Start metrics HTTP server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: promhttp.Handler(),
	}

	go func() {
		logger.Info("starting metrics HTTP server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	reporters := transfer.MultiReporter{transfer.LogReporter{Logger: logger}}
	workerConfig := temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		APIKey:            cfg.Transfer.APIKey,
		Dial: transfer.WithEndpoint(transfer.HTTPDialer(tron.HTTPClientOptions{
			RateLimit: cfg.RPCRateLimit,
			Metrics:   metricsCollector,
		}, metricsCollector, logger), cfg.RPCURL),
		Metrics: metricsCollector,
		Logger:  logger,
	}

	// The worker signs with its own key; without one it can only run build-only transfers
	if cfg.Transfer.SigningKey != "" {
		signer, err := tron.NewSigner(cfg.Transfer.SigningKey)
		if err != nil {
			logger.Error("invalid signing key", "error", err)
			os.Exit(1)
		}
		workerConfig.Signer = signer
		logger.Info("loaded signing key", "address", signer.Address().String())
	} else {
		logger.Warn("no signing key configured, only build-only transfers will succeed")
	}

	// Initialize the run journal
	if cfg.DatabaseURL != "" {
		dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbPool.Close()

		if err := dbPool.Ping(ctx); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to database")

		store := db.NewStore(dbPool, metricsCollector)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		workerConfig.Store = store
		reporters = append(reporters, store)
	} else {
		logger.Warn("DATABASE_URL not set, transfer results will not be journaled")
	}

	// Initialize NATS publisher
	if cfg.NATSURL != "" {
		natsPublisher, err := natspkg.NewPublisher(cfg.NATSURL, metricsCollector, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer natsPublisher.Close()
		logger.Info("connected to NATS", "url", cfg.NATSURL)
		reporters = append(reporters, natspkg.EventPublisher{Publisher: natsPublisher})
	}
	workerConfig.Reporter = reporters

	worker, err := temporal.NewWorker(workerConfig)
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"journal", workerConfig.Store != nil,
		"event_sinks", len(reporters),
		"rpc_rate_limit", cfg.RPCRateLimit,
	)

	// Start worker in background
	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- worker.Start()
	}()

	// Wait for shutdown signal or worker error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		worker.Stop()
		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
