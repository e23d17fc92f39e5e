// Package main is the entry point for the ZipRank data collector.
//
// It loads configuration, runs schema migrations, registers every configured
// data source collector with the scheduler, and ticks the scheduler on an
// interval until terminated. The -once flag runs a single tick and exits,
// which suits cron-style deployments.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"ziprank/internal/collectors"
	"ziprank/internal/config"
	"ziprank/internal/db"
	"ziprank/internal/metrics"
	"ziprank/internal/ratings"
	"ziprank/internal/scheduler"
)

func main() {
	once := flag.Bool("once", false, "run a single scheduler tick and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(once bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("ziprank collector starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"tick_interval", cfg.Collector.TickInterval.String(),
		"once", once,
	)

	// Cancelled on SIGINT/SIGTERM so an in-flight tick can wind down.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database pool: %w", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	ratingRepo := db.NewRatingRepository(pool)
	zipcodeRepo := db.NewZipcodeRepository(pool)
	sourceRepo := db.NewSourceRepository(pool)
	ratingStore := ratings.NewStore(ratingRepo, logger)

	recorder, err := newRecorder(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing metrics recorder: %w", err)
	}

	sched := scheduler.New(scheduler.Config{
		Sources:              sourceRepo,
		Ratings:              ratingStore,
		Metrics:              recorder,
		TickInterval:         cfg.Collector.TickInterval,
		MaxConcurrentSources: cfg.Collector.MaxConcurrentSources,
		SourceTimeout:        cfg.Collector.SourceTimeout,
		Logger:               logger,
	})

	registerCollectors(sched, cfg, zipcodeRepo, logger)

	if once {
		ran, err := sched.Tick(ctx, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("scheduler tick: %w", err)
		}
		logger.Info("single tick complete", "sources_run", ran)
		return nil
	}

	if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("scheduler run: %w", err)
	}

	logger.Info("collector stopped cleanly")
	return nil
}

// registerCollectors wires every configured data source. Each provider gets
// its own resilient client so one provider's circuit breaker never blocks the
// others. Sources without a configured endpoint are skipped with a warning;
// their scheduling rows simply never appear.
func registerCollectors(sched *scheduler.Scheduler, cfg *config.Config, zipcodeRepo *db.ZipcodeRepository, logger *slog.Logger) {
	httpClient := &http.Client{Timeout: cfg.Sources.RequestTimeout}

	newClient := func(name string) *collectors.Client {
		return collectors.NewClient(httpClient, name, collectors.DefaultRetryPolicy(), cfg.Sources.UserAgent)
	}

	sched.Register(collectors.NewCensusCollector(collectors.CensusConfig{
		Client:  newClient("census"),
		Zips:    zipcodeRepo,
		BaseURL: cfg.Sources.CensusBaseURL,
		APIKey:  cfg.Sources.CensusAPIKey.Unmask(),
		Logger:  logger,
	}))

	sched.Register(collectors.NewOSMCollector(
		newClient("overpass"),
		zipcodeRepo,
		cfg.Sources.OverpassBaseURL,
		logger,
	))

	if cfg.Sources.NicheBaseURL != "" {
		sched.Register(collectors.NewNicheCollector(
			newClient("niche"),
			zipcodeRepo,
			cfg.Sources.NicheBaseURL,
			logger,
		))
	} else {
		logger.Warn("niche source not configured; skipping", "env", "NICHE_BASE_URL")
	}

	if cfg.Sources.EducationBaseURL != "" {
		sched.Register(collectors.NewEducationCollector(
			newClient("education"),
			cfg.Sources.EducationBaseURL,
			logger,
		))
	} else {
		logger.Warn("education source not configured; skipping", "env", "EDUCATION_BASE_URL")
	}

	if cfg.Sources.CrimeBaseURL != "" {
		sched.Register(collectors.NewCrimeCollector(
			newClient("crime"),
			cfg.Sources.CrimeBaseURL,
			logger,
		))
	} else {
		logger.Warn("crime source not configured; skipping", "env", "CRIME_BASE_URL")
	}
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
