// Package config defines the process configuration for the reorder precompute
// pipeline. Configuration is loaded once at cold start and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or an invalid format fails startup.
package config

import (
	"time"

	"reorder/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the section they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"OTEL_SERVICE_NAME" default:"reorder-precompute"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Database      DatabaseConfig
	AWS           AWSConfig
	Zoho          ZohoConfig
	Cache         CacheConfig
	Precompute    PrecomputeConfig
	Observability ObservabilityConfig

	// Injected via ldflags, not Env
	Build BuildInfo
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"5"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// ContinuationQueue receives the next run_chunk message while a job still
	// has work. Empty disables self-scheduling; an external loop drives chunks.
	ContinuationQueue string `envconfig:"SQS_CONTINUATION_QUEUE" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ZohoConfig holds inventory provider endpoints, OAuth credentials and the
// outbound call budget. AccessToken replaces the refresh flow with a fixed
// token and is accepted only with APP_ENV=local.
type ZohoConfig struct {
	OrgID         string       `envconfig:"ZOHO_ORG_ID" validate:"required"`
	InventoryBase string       `envconfig:"ZOHO_INVENTORY_BASE" default:"https://inventory.zoho.com/api/v1" validate:"url"`
	AccountsBase  string       `envconfig:"ZOHO_ACCOUNTS_BASE" default:"https://accounts.zoho.com" validate:"url"`
	ClientID      string       `envconfig:"ZOHO_CLIENT_ID" validate:"required_without=AccessToken"`
	ClientSecret  SecretString `envconfig:"ZOHO_CLIENT_SECRET" validate:"required_without=AccessToken"`
	RefreshToken  SecretString `envconfig:"ZOHO_REFRESH_TOKEN" validate:"required_without=AccessToken"`
	AccessToken   SecretString `envconfig:"ZOHO_ACCESS_TOKEN"`

	RequestsPerMinute int           `envconfig:"ZOHO_REQUESTS_PER_MINUTE" default:"90" validate:"min=1"`
	MaxRetries        int           `envconfig:"ZOHO_MAX_RETRIES" default:"3" validate:"min=0,max=10"`
	BaseBackoff       time.Duration `envconfig:"ZOHO_BASE_BACKOFF" default:"500ms"`
	HTTPTimeout       time.Duration `envconfig:"ZOHO_HTTP_TIMEOUT" default:"15s"`
}

// CacheConfig points at the optional Redis instance used to share the provider
// access token across concurrent Lambda instances.
type CacheConfig struct {
	RedisURL SecretString `envconfig:"REDIS_URL"`
}

// PrecomputeConfig holds chunk defaults applied when a caller omits them.
type PrecomputeConfig struct {
	BatchSize       int           `envconfig:"PRECOMPUTE_BATCH_SIZE" default:"50" validate:"min=1,max=1000"`
	Concurrency     int           `envconfig:"PRECOMPUTE_CONCURRENCY" default:"5" validate:"min=1,max=50"`
	GroupSize       int           `envconfig:"PRECOMPUTE_GROUP_SIZE" default:"5" validate:"min=1,max=100"`
	MaxHistoryPages int           `envconfig:"PRECOMPUTE_MAX_HISTORY_PAGES" default:"3" validate:"min=1,max=50"`
	TimeBudget      time.Duration `envconfig:"PRECOMPUTE_TIME_BUDGET" default:"8500ms"`
	PageSize        int           `envconfig:"PRECOMPUTE_PAGE_SIZE" default:"200" validate:"min=1,max=200"`
	DefaultMonths   int           `envconfig:"PRECOMPUTE_DEFAULT_MONTHS" default:"6" validate:"min=1,max=36"`
	MaxContinuation int           `envconfig:"PRECOMPUTE_MAX_CONTINUATIONS" default:"500" validate:"min=1"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ReorderPrecompute"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
