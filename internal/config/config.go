// Package config defines the doorwatch configuration. It is loaded once at
// startup and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Whitelist patterns and notification templates come from a separate YAML
// rules file, see LoadRules. Any missing required value or invalid format is
// a ConfigError and the process exits.
package config

import (
	"time"

	"doorwatch/internal/types"
)

// SecretString is an alias for types.SecretString so credential fields never
// print their value.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Components receive only the
// subset they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Ingest        IngestConfig
	Audit         AuditConfig
	Monitor       MonitorConfig
	Heartbeat     HeartbeatConfig
	Escalation    EscalationConfig
	Notify        NotifyConfig
	SMTP          SMTPConfig
	Microblog     MicroblogConfig
	Queue         QueueConfig
	Dispatch      DispatchConfig
	Status        StatusConfig
	Observability ObservabilityConfig
	AWS           AWSConfig

	// Build metadata is injected via ldflags, not env.
	Build BuildInfo
}

// IngestConfig holds the UDP log feed settings.
type IngestConfig struct {
	Addr        string `envconfig:"INGEST_ADDR" default:":514" validate:"required"`
	PrefixBytes int    `envconfig:"INGEST_PREFIX_BYTES" default:"4" validate:"gte=0"`
	MaxPacket   int    `envconfig:"INGEST_MAX_PACKET" default:"65535" validate:"gte=512,lte=65535"`
}

// AuditConfig holds the append-only audit trail location.
type AuditConfig struct {
	File string `envconfig:"AUDIT_FILE" default:"/var/log/doord.log" validate:"required"`
}

// MonitorConfig selects which lines are classified and how.
type MonitorConfig struct {
	Tag            string `envconfig:"MONITOR_TAG" default:"doord" validate:"required"`
	PrefixWidth    int    `envconfig:"MONITOR_PREFIX_WIDTH" default:"16" validate:"gte=0"`
	RulesFile      string `envconfig:"RULES_FILE"` // empty selects the embedded rules
	RecentLogLimit int    `envconfig:"RECENT_LOG_LIMIT" default:"1000" validate:"gte=1"`
}

// HeartbeatConfig controls silence detection.
type HeartbeatConfig struct {
	Period    time.Duration `envconfig:"HEARTBEAT_PERIOD" default:"60s" validate:"gte=1s"`
	Threshold time.Duration `envconfig:"HEARTBEAT_THRESHOLD" default:"120s" validate:"gte=1s"`
}

// EscalationConfig bounds the re-notification interval while an error persists.
type EscalationConfig struct {
	MinInterval time.Duration `envconfig:"ESCALATION_MIN_INTERVAL" default:"2m" validate:"gte=1s"`
	MaxInterval time.Duration `envconfig:"ESCALATION_MAX_INTERVAL" default:"20m" validate:"gtefield=MinInterval"`
}

// NotifyConfig lists the mail recipients of every notification.
type NotifyConfig struct {
	Recipients []string `envconfig:"NOTIFY_RECIPIENTS" validate:"required,min=1,dive,email"`
}

// SMTPConfig holds the outbound mail relay settings.
type SMTPConfig struct {
	Host     string       `envconfig:"SMTP_HOST" validate:"required,hostname|ip"`
	Port     int          `envconfig:"SMTP_PORT" default:"25" validate:"gte=1,lte=65535"`
	User     string       `envconfig:"SMTP_USER"`
	Password SecretString `envconfig:"SMTP_PASSWORD"`
	Sender   string       `envconfig:"SMTP_SENDER" validate:"required,email"`
	FromName string       `envconfig:"SMTP_FROM_NAME" default:"doord"`
}

// MicroblogConfig enables the status-update channel. An empty user disables it.
type MicroblogConfig struct {
	User       string       `envconfig:"MICROBLOG_USER"`
	Password   SecretString `envconfig:"MICROBLOG_PASSWORD" validate:"required_with=User"`
	URL        string       `envconfig:"MICROBLOG_URL" default:"http://twitter.com/statuses/update.xml" validate:"url"`
	CharBudget int          `envconfig:"MICROBLOG_CHAR_BUDGET" default:"140" validate:"gte=1"`
	MaxRetries int          `envconfig:"MICROBLOG_MAX_RETRIES" default:"0" validate:"gte=0,lte=5"`
}

// Enabled reports whether the microblog channel is configured.
func (c MicroblogConfig) Enabled() bool {
	return c.User != ""
}

// QueueConfig enables SQS publication of notifications. An empty URL disables it.
type QueueConfig struct {
	URL string `envconfig:"NOTIFY_QUEUE_URL" validate:"omitempty,url"`
}

// Enabled reports whether the queue channel is configured.
func (c QueueConfig) Enabled() bool {
	return c.URL != ""
}

// DispatchConfig sizes the notification queue and its workers.
type DispatchConfig struct {
	QueueSize       int           `envconfig:"DISPATCH_QUEUE_SIZE" default:"64" validate:"gte=1"`
	Concurrency     int           `envconfig:"DISPATCH_CONCURRENCY" default:"4" validate:"gte=1"`
	DeliveryTimeout time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"30s" validate:"gte=1s"`
}

// StatusConfig holds the local status API address. Empty disables it.
type StatusConfig struct {
	Addr string `envconfig:"STATUS_ADDR" default:":8090"`
}

// ObservabilityConfig selects the metrics backend.
type ObservabilityConfig struct {
	MetricsBackend  string        `envconfig:"METRICS_BACKEND" default:"prometheus" validate:"oneof=prometheus cloudwatch none"`
	MetricNamespace string        `envconfig:"METRIC_NAMESPACE" default:"DoorWatch" validate:"required"`
	FlushInterval   time.Duration `envconfig:"METRIC_FLUSH_INTERVAL" default:"60s" validate:"gte=1s"`
}

// AWSConfig holds regional configuration shared by SSM, SQS and CloudWatch.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack support; empty in production.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// NeedsAWS reports whether any enabled component talks to AWS.
func (c *Config) NeedsAWS() bool {
	return c.Queue.Enabled() || c.Observability.MetricsBackend == "cloudwatch"
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
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrRulesInvalid indicates the rules file is unreadable, malformed, or
	// contains a pattern that does not compile.
	ErrRulesInvalid ConfigErrorType = "RULES_INVALID"
)
