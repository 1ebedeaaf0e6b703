// Package config defines the global configuration for the Teams/Jira
// notification service. Configuration is loaded once at process
// initialization and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved from the OS environment, with an optional .env file
// overlay for local development. Any missing required value or invalid
// format fails the process immediately on startup (fail fast).
package config

import "time"

// Config is the top-level configuration struct. It is populated once
// during process initialization and never modified. Sub-components receive
// only the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"teamsjira-notifications"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Jira     JiraConfig
	Bot      BotConfig
	Job      JobConfig
}

// ServerConfig holds HTTP server settings for the subscription API.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// NotificationQueue is the SQS queue carrying raw Jira notification
	// events. AnalyticsQueue receives best-effort subscription lifecycle
	// events; delivery metrics go to the CloudWatch namespace.
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"required,url"`
	AnalyticsQueue    string `envconfig:"SQS_ANALYTICS"`
	MetricNamespace   string `envconfig:"METRIC_NAMESPACE" default:"TeamsJira"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// JiraConfig holds the Jira instance settings the card builder needs for
// deep links. The Jira REST client itself is an external collaborator.
type JiraConfig struct {
	BaseURL string `envconfig:"JIRA_BASE_URL" validate:"required,url"`
}

// BotConfig holds Bot Framework connector settings for proactive delivery.
type BotConfig struct {
	AppID          string        `envconfig:"BOT_APP_ID" validate:"required"`
	AppPassword    string        `envconfig:"BOT_APP_PASSWORD" validate:"required"`
	TokenURL       string        `envconfig:"BOT_TOKEN_URL" default:"https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"`
	RequestTimeout time.Duration `envconfig:"BOT_REQUEST_TIMEOUT" default:"10s"`
}

// JobConfig tunes the notification poller.
type JobConfig struct {
	BatchSize    int           `envconfig:"JOB_BATCH_SIZE" default:"32"`
	PollInterval time.Duration `envconfig:"JOB_POLL_INTERVAL" default:"30s"`
}
