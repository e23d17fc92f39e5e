// Package config defines the global configuration structure for ZipRank.
// Configuration is loaded once at process initialization and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating
// code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format causes the application to fail
// immediately on startup (fail fast).
package config

import (
	"time"

	"ziprank/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for ZipRank. It is populated
// once during process initialization and never modified. Sub-components
// receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"ziprank"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	Collector     CollectorConfig
	Sources       SourcesConfig
	Scoring       ScoringConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`     // Fail fast when pool exhausted
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"` // Detect dead connections during failover
}

// CollectorConfig holds scheduler tuning for the collector process.
type CollectorConfig struct {
	TickInterval time.Duration `envconfig:"COLLECTOR_TICK_INTERVAL" default:"1h"`
	// MaxConcurrentSources bounds the per-tick worker pool. Sources talk to
	// unrelated external providers and must not serialize behind one another,
	// but a small bound keeps outbound pressure predictable.
	MaxConcurrentSources int           `envconfig:"COLLECTOR_MAX_CONCURRENT" default:"4"`
	SourceTimeout        time.Duration `envconfig:"COLLECTOR_SOURCE_TIMEOUT" default:"10m"`
}

// SourcesConfig holds per-provider endpoints and credentials for the
// data collectors.
type SourcesConfig struct {
	CensusAPIKey  SecretString `envconfig:"CENSUS_API_KEY"`
	CensusBaseURL string       `envconfig:"CENSUS_BASE_URL" default:"https://api.census.gov/data"`

	OverpassBaseURL string `envconfig:"OVERPASS_BASE_URL" default:"https://overpass-api.de/api/interpreter"`

	NicheBaseURL     string `envconfig:"NICHE_BASE_URL"`
	EducationBaseURL string `envconfig:"EDUCATION_BASE_URL"`
	CrimeBaseURL     string `envconfig:"CRIME_BASE_URL"`

	UserAgent      string        `envconfig:"SOURCE_USER_AGENT" default:"ZipRank-Collector/1.0"`
	RequestTimeout time.Duration `envconfig:"SOURCE_REQUEST_TIMEOUT" default:"30s"`
}

// ScoringConfig holds scoring engine policy switches.
type ScoringConfig struct {
	// MidpointFallback substitutes the scale midpoint (5.0) for criteria with
	// no observation instead of skipping them. Off by default: the canonical
	// policy is to skip missing criteria so averages only reflect real data.
	MidpointFallback bool `envconfig:"SCORING_MIDPOINT_FALLBACK" default:"false"`
	// MaxBatchZips caps the number of zipcodes in one scoring request.
	MaxBatchZips int `envconfig:"SCORING_MAX_BATCH_ZIPS" default:"500"`
}

// ObservabilityConfig holds telemetry and monitoring settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ZipRank"`
	// EnableCloudWatch turns on metric emission to CloudWatch. Off by default
	// for self-hosted deployments; the no-op collector is used instead.
	EnableCloudWatch bool   `envconfig:"ENABLE_CLOUDWATCH_METRICS" default:"false"`
	AWSRegion        string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
