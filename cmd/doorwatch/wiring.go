package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"doorwatch/internal/config"
	"doorwatch/internal/core"
	"doorwatch/internal/external"
	"doorwatch/internal/notifications/email"
	"doorwatch/internal/notifications/microblog"
	"doorwatch/internal/notifications/queue"
	"doorwatch/internal/telemetry"
	"doorwatch/internal/types"
)

const (
	defaultRegion      = "us-east-1"
	microblogUserAgent = "doorwatch"
)

// awsClients holds the AWS service clients the enabled components need. Both
// are nil when nothing talks to AWS.
type awsClients struct {
	sqs        queue.SQSSender
	cloudwatch telemetry.CloudWatchClient
}

func newAWSClients(ctx context.Context, cfg *config.Config) (awsClients, error) {
	if !cfg.NeedsAWS() {
		return awsClients{}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return awsClients{}, err
	}

	var clients awsClients
	endpoint := cfg.AWS.EndpointURL
	if cfg.Queue.Enabled() {
		clients.sqs = sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
	}
	if cfg.Observability.MetricsBackend == "cloudwatch" {
		clients.cloudwatch = cloudwatch.NewFromConfig(awsCfg, func(o *cloudwatch.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
	}
	return clients, nil
}

// metricsSetup is the selected metrics backend. handler is set for
// prometheus, run for cloudwatch.
type metricsSetup struct {
	recorder telemetry.Recorder
	handler  http.Handler
	run      func(ctx context.Context) error
}

func newMetrics(cfg config.ObservabilityConfig, cw telemetry.CloudWatchClient, logger types.Logger) (*metricsSetup, error) {
	switch cfg.MetricsBackend {
	case "prometheus":
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rec, err := telemetry.NewPrometheusRecorder(reg)
		if err != nil {
			return nil, err
		}
		return &metricsSetup{
			recorder: rec,
			handler:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}, nil

	case "cloudwatch":
		if cw == nil {
			return nil, fmt.Errorf("cloudwatch backend selected without a client")
		}
		rec := telemetry.NewCloudWatchRecorder(cw, cfg.MetricNamespace, logger.With("component", "metrics"))
		return &metricsSetup{
			recorder: rec,
			run: func(ctx context.Context) error {
				return rec.Run(ctx, cfg.FlushInterval)
			},
		}, nil

	default:
		return &metricsSetup{recorder: telemetry.Nop{}}, nil
	}
}

// microblogRetryPolicy keeps the default waits and sets the retry count.
func microblogRetryPolicy(maxRetries int) external.RetryPolicy {
	p := external.NoRetryPolicy()
	p.MaxRetries = maxRetries
	return p
}

// channelSet is the enabled notification channels, plus the circuit breakers
// the status API reports.
type channelSet struct {
	list     []types.NotificationChannel
	breakers map[string]core.BreakerReporter
}

// buildChannels always builds email. Microblog and queue are added only when
// configured.
func buildChannels(cfg *config.Config, sqsClient queue.SQSSender, logger types.Logger) (*channelSet, error) {
	set := &channelSet{breakers: make(map[string]core.BreakerReporter)}

	mailer, err := email.NewEmailChannel(email.EmailChannelConfig{
		Sender: email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.User,
			Password: cfg.SMTP.Password,
		}),
		From:       cfg.SMTP.Sender,
		FromName:   cfg.SMTP.FromName,
		Recipients: cfg.Notify.Recipients,
		Logger:     logger.With("channel", "email"),
	})
	if err != nil {
		return nil, err
	}
	set.list = append(set.list, mailer)

	if cfg.Microblog.Enabled() {
		client := external.NewBaseClient(nil, "microblog", microblogRetryPolicy(cfg.Microblog.MaxRetries), microblogUserAgent)
		mb, err := microblog.NewChannel(microblog.Config{
			Endpoint:   cfg.Microblog.URL,
			Username:   cfg.Microblog.User,
			Password:   cfg.Microblog.Password,
			CharBudget: cfg.Microblog.CharBudget,
		}, client, logger.With("channel", "microblog"))
		if err != nil {
			return nil, err
		}
		set.list = append(set.list, mb)
		set.breakers["microblog"] = client
	}

	if cfg.Queue.Enabled() {
		if sqsClient == nil {
			return nil, fmt.Errorf("queue channel enabled without an SQS client")
		}
		q, err := queue.NewChannel(sqsClient, cfg.Queue.URL, logger.With("channel", "queue"))
		if err != nil {
			return nil, err
		}
		set.list = append(set.list, q)
	}

	return set, nil
}
