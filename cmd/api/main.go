// Package main is the entry point for the ZipRank API server.
//
// It loads configuration, connects the Postgres pool, builds the HTTP server
// with the core chassis (middleware, routing, health checks), wires the domain
// handlers, and starts listening for requests.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/go-chi/chi/v5"

	"ziprank/internal/api/handlers"
	"ziprank/internal/config"
	"ziprank/internal/core"
	"ziprank/internal/db"
	"ziprank/internal/metrics"
	"ziprank/internal/ratings"
	"ziprank/internal/scoring"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("ziprank API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database pool: %w", err)
	}

	ratingRepo := db.NewRatingRepository(pool)
	zipcodeRepo := db.NewZipcodeRepository(pool)
	sourceRepo := db.NewSourceRepository(pool)

	ratingStore := ratings.NewStore(ratingRepo, logger)
	engine := scoring.NewEngine(scoring.Options{
		MidpointFallback: cfg.Scoring.MidpointFallback,
	})

	recorder, err := newRecorder(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("initializing metrics recorder: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = recorder
	srv.HealthProbes = []core.HealthProbe{
		core.NewProbe("database", pool.Ping),
	}
	srv.RegisterCloser("database pool", pool.Close)

	zipcodeHandler := handlers.NewZipcodeHandler(zipcodeRepo, ratingStore, logger)
	scoreHandler := handlers.NewScoreHandler(
		ratingStore,
		zipcodeRepo,
		engine,
		srv.Validator,
		recorder,
		cfg.Scoring.MaxBatchZips,
		logger,
	)
	sourceHandler := handlers.NewSourceHandler(sourceRepo, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { zipcodeHandler.RegisterRoutes(r) },
		func(r chi.Router) { scoreHandler.RegisterRoutes(r) },
		func(r chi.Router) { sourceHandler.RegisterRoutes(r) },
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newRecorder builds the metrics recorder: CloudWatch when enabled, otherwise
// a no-op.
func newRecorder(ctx context.Context, cfg *config.Config, logger *slog.Logger) (metrics.Recorder, error) {
	if !cfg.Observability.EnableCloudWatch {
		return metrics.NoopRecorder{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Observability.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := cloudwatch.NewFromConfig(awsCfg)
	return metrics.NewCloudWatchRecorder(client, cfg.Observability.MetricNamespace, logger), nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to capture server errors from ListenAndServe.
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for shutdown signal or server error.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with a 10-second deadline.
	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	// Shutdown server resources (DB pool).
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
