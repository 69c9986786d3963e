// Package config defines the global configuration structure for the wp-cloud
// API. Configuration is loaded once at process initialization and is immutable
// thereafter; components receive only the specific config subsets they require.
// Nothing reads ambient environment variables mid-request.
//
// Values are resolved via a priority chain: OS Environment > Dotenv File.
// Any missing required value or invalid format aborts startup (fail fast).
package config

import (
	"time"

	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the wp-cloud API.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server     ServerConfig
	Stripe     StripeConfig
	Store      StoreConfig
	Deployer   DeployerConfig
	Cloudflare CloudflareConfig
	Security   SecurityConfig
	Reconcile  ReconcileConfig
	AWS        AWSConfig
	Telemetry  TelemetryConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"5000"`
	// FrontendURL is the public URL of the checkout frontend; success and
	// cancel redirects are built from it server-side (no trailing slash).
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000" validate:"required,url"`
	// ServerURL is the public URL of this API, used in webhook registration
	// instructions and logs.
	ServerURL string `envconfig:"SERVER_URL" default:"http://localhost:5000" validate:"required,url"`
}

// StripeConfig holds Stripe payment integration credentials.
type StripeConfig struct {
	SecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY"`
	WebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
	// BaseURL overrides the Stripe API endpoint; used by tests.
	BaseURL string `envconfig:"STRIPE_API_BASE"`
}

// Configured reports whether Stripe credentials are present. The API starts
// without them (health reports stripe_configured=false) but checkout and
// webhook routes will reject requests.
func (c StripeConfig) Configured() bool {
	return c.SecretKey.Unmask() != ""
}

// StoreConfig selects and tunes the pending-deployment store backend.
type StoreConfig struct {
	// Backend is "file" (mutex-guarded JSON document) or "postgres".
	Backend string `envconfig:"PENDING_STORE_BACKEND" default:"file" validate:"oneof=file postgres"`
	// Dir is the per-user configuration directory holding the JSON document.
	// Empty means $HOME/.wordpress_deployer, matching the deployer daemon.
	Dir string `envconfig:"PENDING_STORE_DIR"`
	// DatabaseURL is required when Backend is "postgres".
	DatabaseURL SecretString `envconfig:"DATABASE_URL"`
}

// DeployerConfig holds the connection settings for the WordPress deployer
// daemon, the external collaborator that performs actual provisioning.
type DeployerConfig struct {
	BaseURL string       `envconfig:"DEPLOYER_URL" default:"http://127.0.0.1:8700"`
	APIKey  SecretString `envconfig:"DEPLOYER_API_KEY"`
	// DeployTimeout bounds a single provisioning call; expiry is treated as
	// a provisioning failure (the pending record is kept).
	DeployTimeout time.Duration `envconfig:"DEPLOYER_DEPLOY_TIMEOUT" default:"10m"`
	// RequestTimeout bounds the passthrough calls (status, logs, restart).
	RequestTimeout time.Duration `envconfig:"DEPLOYER_REQUEST_TIMEOUT" default:"30s"`
}

// CloudflareConfig carries the DNS credentials the deployer daemon uses; the
// API only reports their presence in the health payload.
type CloudflareConfig struct {
	APIToken  SecretString `envconfig:"CLOUDFLARE_API_TOKEN"`
	AccountID string       `envconfig:"CLOUDFLARE_ACCOUNT_ID"`
}

// Configured reports whether both Cloudflare credentials are present.
func (c CloudflareConfig) Configured() bool {
	return c.APIToken.Unmask() != "" && c.AccountID != ""
}

// SecurityConfig holds CORS and admin credential settings.
type SecurityConfig struct {
	// AdminPasswordHash is the bcrypt hash checked by /api/verify-credentials.
	AdminPasswordHash  SecretString `envconfig:"ADMIN_PASSWORD_HASH"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:3001"`
}

// ReconcileConfig tunes the pending-deployment reconciler. Disabled by
// default; stuck records are then only logged and left for manual remediation.
type ReconcileConfig struct {
	Enabled  bool          `envconfig:"RECONCILE_ENABLED" default:"false"`
	Interval time.Duration `envconfig:"RECONCILE_INTERVAL" default:"10m"`
	// MinAge is how old a pending record must be before the reconciler
	// considers it stuck.
	MinAge time.Duration `envconfig:"RECONCILE_MIN_AGE" default:"30m"`
	// MaxAttempts bounds re-driven provisioning attempts per session before
	// the record is dead-lettered.
	MaxAttempts int `envconfig:"RECONCILE_MAX_ATTEMPTS" default:"5"`
	// SessionTTL is the age past which an unpaid session is considered
	// abandoned and dead-lettered.
	SessionTTL time.Duration `envconfig:"RECONCILE_SESSION_TTL" default:"48h"`
	// DeadLetterQueueURL is the SQS queue receiving dead-lettered records.
	// Empty means dead letters are logged only.
	DeadLetterQueueURL string `envconfig:"RECONCILE_DLQ_URL"`
}

// AWSConfig holds regional configuration for the optional AWS integrations
// (SQS dead-lettering, CloudWatch metrics).
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"eu-west-3"`
	// EndpointURL supports LocalStack in development; empty in production.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// TelemetryConfig holds request-metrics settings.
type TelemetryConfig struct {
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"WPCloud"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
