package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// configEnvVars lists every variable LoadConfig reads, so tests start from a
// clean slate regardless of the developer's shell.
var configEnvVars = []string{
	"APP_ENV", "LOG_LEVEL",
	"INGEST_ADDR", "INGEST_PREFIX_BYTES", "INGEST_MAX_PACKET",
	"AUDIT_FILE",
	"MONITOR_TAG", "MONITOR_PREFIX_WIDTH", "RULES_FILE", "RECENT_LOG_LIMIT",
	"HEARTBEAT_PERIOD", "HEARTBEAT_THRESHOLD",
	"ESCALATION_MIN_INTERVAL", "ESCALATION_MAX_INTERVAL",
	"NOTIFY_RECIPIENTS",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USER", "SMTP_PASSWORD", "SMTP_SENDER", "SMTP_FROM_NAME",
	"MICROBLOG_USER", "MICROBLOG_PASSWORD", "MICROBLOG_URL", "MICROBLOG_CHAR_BUDGET", "MICROBLOG_MAX_RETRIES",
	"NOTIFY_QUEUE_URL",
	"DISPATCH_QUEUE_SIZE", "DISPATCH_CONCURRENCY", "DELIVERY_TIMEOUT",
	"STATUS_ADDR",
	"METRICS_BACKEND", "METRIC_NAMESPACE", "METRIC_FLUSH_INTERVAL",
	"AWS_REGION", "AWS_ENDPOINT_URL",
}

// unsetEnv removes keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

// setMinimalTestEnv sets only the variables without defaults.
func setMinimalTestEnv(t *testing.T) {
	t.Helper()
	unsetEnv(t, configEnvVars...)

	t.Setenv("APP_ENV", "local")
	t.Setenv("NOTIFY_RECIPIENTS", "ops@example.com,oncall@example.com")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_SENDER", "doord@example.com")
}

func requireConfigError(t *testing.T, err error, want ConfigErrorType) *ConfigError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected ConfigError of type %s, got nil", want)
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
	if cfgErr.Type != want {
		t.Fatalf("ConfigError.Type = %s, want %s (%v)", cfgErr.Type, want, err)
	}
	return cfgErr
}

func TestLoadConfigLocalDefaults(t *testing.T) {
	setMinimalTestEnv(t)

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Environment", cfg.Environment, "local"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"Ingest.Addr", cfg.Ingest.Addr, ":514"},
		{"Ingest.PrefixBytes", cfg.Ingest.PrefixBytes, 4},
		{"Ingest.MaxPacket", cfg.Ingest.MaxPacket, 65535},
		{"Audit.File", cfg.Audit.File, "/var/log/doord.log"},
		{"Monitor.Tag", cfg.Monitor.Tag, "doord"},
		{"Monitor.PrefixWidth", cfg.Monitor.PrefixWidth, 16},
		{"Monitor.RulesFile", cfg.Monitor.RulesFile, ""},
		{"Monitor.RecentLogLimit", cfg.Monitor.RecentLogLimit, 1000},
		{"Heartbeat.Period", cfg.Heartbeat.Period, 60 * time.Second},
		{"Heartbeat.Threshold", cfg.Heartbeat.Threshold, 120 * time.Second},
		{"Escalation.MinInterval", cfg.Escalation.MinInterval, 2 * time.Minute},
		{"Escalation.MaxInterval", cfg.Escalation.MaxInterval, 20 * time.Minute},
		{"Notify.Recipients", len(cfg.Notify.Recipients), 2},
		{"SMTP.Port", cfg.SMTP.Port, 25},
		{"SMTP.FromName", cfg.SMTP.FromName, "doord"},
		{"Microblog.Enabled", cfg.Microblog.Enabled(), false},
		{"Microblog.URL", cfg.Microblog.URL, "http://twitter.com/statuses/update.xml"},
		{"Microblog.CharBudget", cfg.Microblog.CharBudget, 140},
		{"Microblog.MaxRetries", cfg.Microblog.MaxRetries, 0},
		{"Queue.Enabled", cfg.Queue.Enabled(), false},
		{"Dispatch.QueueSize", cfg.Dispatch.QueueSize, 64},
		{"Dispatch.Concurrency", cfg.Dispatch.Concurrency, 4},
		{"Dispatch.DeliveryTimeout", cfg.Dispatch.DeliveryTimeout, 30 * time.Second},
		{"Status.Addr", cfg.Status.Addr, ":8090"},
		{"Observability.MetricsBackend", cfg.Observability.MetricsBackend, "prometheus"},
		{"Observability.MetricNamespace", cfg.Observability.MetricNamespace, "DoorWatch"},
		{"AWS.Region", cfg.AWS.Region, "us-east-1"},
		{"Build.Version", cfg.Build.Version, "dev"},
		{"NeedsAWS", cfg.NeedsAWS(), false},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	if cfg.Notify.Recipients[1] != "oncall@example.com" {
		t.Errorf("Notify.Recipients = %v", cfg.Notify.Recipients)
	}
}

func TestLoadConfigSetsUTC(t *testing.T) {
	setMinimalTestEnv(t)

	orig := time.Local
	t.Cleanup(func() { time.Local = orig })
	time.Local = time.FixedZone("test", 3600)

	if _, err := LoadConfig(nil); err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if time.Local != time.UTC {
		t.Errorf("time.Local = %v, want UTC", time.Local)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("HEARTBEAT_PERIOD", "30s")
	t.Setenv("HEARTBEAT_THRESHOLD", "5m")
	t.Setenv("ESCALATION_MIN_INTERVAL", "1m")
	t.Setenv("ESCALATION_MAX_INTERVAL", "1m")
	t.Setenv("MICROBLOG_USER", "doorbot")
	t.Setenv("MICROBLOG_PASSWORD", "hunter2")
	t.Setenv("NOTIFY_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123/doorwatch-notify")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Heartbeat.Period != 30*time.Second || cfg.Heartbeat.Threshold != 5*time.Minute {
		t.Errorf("Heartbeat = %+v", cfg.Heartbeat)
	}
	if cfg.Escalation.MinInterval != cfg.Escalation.MaxInterval {
		t.Errorf("equal escalation bounds should be accepted: %+v", cfg.Escalation)
	}
	if !cfg.Microblog.Enabled() || cfg.Microblog.Password.Unmask() != "hunter2" {
		t.Errorf("Microblog = %+v", cfg.Microblog)
	}
	if !cfg.Queue.Enabled() || !cfg.NeedsAWS() {
		t.Error("queue channel should be enabled and require AWS")
	}
}

func TestLoadConfigCloudWatchNeedsAWS(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("METRICS_BACKEND", "cloudwatch")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.NeedsAWS() {
		t.Error("cloudwatch backend should require AWS")
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setMinimalTestEnv(t)
	unsetEnv(t, "NOTIFY_RECIPIENTS", "SMTP_HOST")

	_, err := LoadConfig(nil)
	cfgErr := requireConfigError(t, err, ErrMissingEnv)
	for _, name := range []string{"NOTIFY_RECIPIENTS", "SMTP_HOST"} {
		if !strings.Contains(cfgErr.Message, name) {
			t.Errorf("message %q should name %s", cfgErr.Message, name)
		}
	}
}

func TestLoadConfigValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantVar string
	}{
		{"invalid recipient", map[string]string{"NOTIFY_RECIPIENTS": "ops@example.com,not-an-address"}, "NOTIFY_RECIPIENTS"},
		{"invalid sender", map[string]string{"SMTP_SENDER": "doord"}, "SMTP_SENDER"},
		{"max below min", map[string]string{"ESCALATION_MIN_INTERVAL": "5m", "ESCALATION_MAX_INTERVAL": "2m"}, "ESCALATION_MAX_INTERVAL"},
		{"sub-second heartbeat", map[string]string{"HEARTBEAT_PERIOD": "10ms"}, "HEARTBEAT_PERIOD"},
		{"unknown metrics backend", map[string]string{"METRICS_BACKEND": "statsd"}, "METRICS_BACKEND"},
		{"unknown environment", map[string]string{"APP_ENV": "qa"}, "APP_ENV"},
		{"microblog user without password", map[string]string{"MICROBLOG_USER": "doorbot"}, "MICROBLOG_PASSWORD"},
		{"too many microblog retries", map[string]string{"MICROBLOG_MAX_RETRIES": "9"}, "MICROBLOG_MAX_RETRIES"},
		{"queue url not a url", map[string]string{"NOTIFY_QUEUE_URL": "doorwatch-notify"}, "NOTIFY_QUEUE_URL"},
		{"packet size too small", map[string]string{"INGEST_MAX_PACKET": "100"}, "INGEST_MAX_PACKET"},
		{"zero recent log", map[string]string{"RECENT_LOG_LIMIT": "0"}, "RECENT_LOG_LIMIT"},
		{"bad log level", map[string]string{"LOG_LEVEL": "verbose"}, "LOG_LEVEL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setMinimalTestEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := LoadConfig(nil)
			cfgErr := requireConfigError(t, err, ErrValidation)
			if !strings.Contains(cfgErr.Message, tt.wantVar) {
				t.Errorf("message %q should name %s", cfgErr.Message, tt.wantVar)
			}
		})
	}
}

func TestLoadConfigParsingFailure(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("HEARTBEAT_PERIOD", "soon")

	_, err := LoadConfig(nil)
	requireConfigError(t, err, ErrParsing)
}

func TestLoadConfigDotenvFile(t *testing.T) {
	setMinimalTestEnv(t)
	unsetEnv(t, "SMTP_HOST", "AUDIT_FILE")

	dir := t.TempDir()
	content := "SMTP_HOST=relay.dotenv.local\nAUDIT_FILE=/tmp/from-dotenv.log\nSMTP_SENDER=ignored@example.com\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Chdir(dir)

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SMTP.Host != "relay.dotenv.local" {
		t.Errorf("SMTP.Host = %q, want value from .env", cfg.SMTP.Host)
	}
	if cfg.Audit.File != "/tmp/from-dotenv.log" {
		t.Errorf("Audit.File = %q, want value from .env", cfg.Audit.File)
	}
	if cfg.SMTP.Sender != "doord@example.com" {
		t.Errorf("SMTP.Sender = %q, environment should win over .env", cfg.SMTP.Sender)
	}
}

func TestSecretFieldsAreRedacted(t *testing.T) {
	setMinimalTestEnv(t)
	t.Setenv("SMTP_USER", "mailer")
	t.Setenv("SMTP_PASSWORD", "smtp-plaintext")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if s := fmt.Sprintf("%+v", cfg.SMTP); strings.Contains(s, "smtp-plaintext") {
		t.Errorf("fmt output leaked secret: %s", s)
	}
	b, err := json.Marshal(cfg.SMTP)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "smtp-plaintext") {
		t.Errorf("JSON leaked secret: %s", b)
	}
	if cfg.SMTP.Password.Unmask() != "smtp-plaintext" {
		t.Error("Unmask should return the configured password")
	}
}

func TestConfigError(t *testing.T) {
	inner := errors.New("boom")
	withErr := &ConfigError{Type: ErrSSMResolution, Message: "fetch failed", Err: inner}
	if got := withErr.Error(); got != "[SSM_FAILURE] fetch failed: boom" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(withErr, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	bare := &ConfigError{Type: ErrRulesInvalid, Message: "no patterns"}
	if got := bare.Error(); got != "[RULES_INVALID] no patterns" {
		t.Errorf("Error() = %q", got)
	}
	if bare.Unwrap() != nil {
		t.Error("Unwrap should be nil without a wrapped error")
	}
}

func TestNewBuildInfoDefaults(t *testing.T) {
	info := NewBuildInfo()
	if info.Version != "dev" || info.Commit != "none" || info.BuildTime != "unknown" {
		t.Errorf("NewBuildInfo() = %+v", info)
	}
}
