// Package main is the entry point for the doorwatch daemon.
//
// It loads the configuration and rules, builds the notification channels and
// the health state machine, and runs the UDP listener, heartbeat monitor,
// notification dispatcher and status server until SIGINT or SIGTERM.
//
// A configuration error is fatal: the process exits 1 before binding any
// socket, so it never runs half-configured.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"doorwatch/internal/audit"
	"doorwatch/internal/config"
	"doorwatch/internal/core"
	"doorwatch/internal/ingest"
	notifycore "doorwatch/internal/notifications/core"
	"doorwatch/internal/notifications/email"
	"doorwatch/internal/notifications/templates"
	"doorwatch/internal/types"
	"doorwatch/internal/watchdog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig(secretProvider())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	rules, err := config.LoadRules(cfg.Monitor.RulesFile)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	logger := &slogAdapter{logger: newLogger(cfg.LogLevel)}
	logger.Info("doorwatch starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"ingest_addr", cfg.Ingest.Addr,
		"audit_file", cfg.Audit.File,
		"recipients", redactAll(cfg.Notify.Recipients),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients, err := newAWSClients(ctx, cfg)
	if err != nil {
		return fmt.Errorf("loading AWS config: %w", err)
	}

	metrics, err := newMetrics(cfg.Observability, clients.cloudwatch, logger)
	if err != nil {
		return fmt.Errorf("building metrics: %w", err)
	}

	channels, err := buildChannels(cfg, clients.sqs, logger)
	if err != nil {
		return fmt.Errorf("building notification channels: %w", err)
	}

	renderer, err := templates.NewRenderer(rules.Templates)
	if err != nil {
		return fmt.Errorf("building templates: %w", err)
	}

	dispatcher, err := notifycore.NewDispatcher(notifycore.DispatcherConfig{
		Renderer:        renderer,
		Channels:        channels.list,
		QueueSize:       cfg.Dispatch.QueueSize,
		Concurrency:     cfg.Dispatch.Concurrency,
		DeliveryTimeout: cfg.Dispatch.DeliveryTimeout,
		Metrics:         metrics.recorder,
		Logger:          logger.With("component", "dispatcher"),
	})
	if err != nil {
		return fmt.Errorf("building dispatcher: %w", err)
	}

	classifier, err := watchdog.NewClassifier(cfg.Monitor.Tag, cfg.Monitor.PrefixWidth, rules.Whitelist)
	if err != nil {
		return fmt.Errorf("building classifier: %w", err)
	}
	logger.Info("classifier loaded",
		"tag", cfg.Monitor.Tag,
		"prefix_width", cfg.Monitor.PrefixWidth,
		"patterns", classifier.Patterns(),
	)

	clock := types.RealClock{}
	machine, err := watchdog.NewMachine(watchdog.MachineConfig{
		Classifier: classifier,
		Emitter:    dispatcher,
		Escalation: watchdog.EscalationPolicy{
			MinInterval: cfg.Escalation.MinInterval,
			MaxInterval: cfg.Escalation.MaxInterval,
		},
		Clock:          clock,
		RecentLogLimit: cfg.Monitor.RecentLogLimit,
		Metrics:        metrics.recorder,
		Logger:         logger.With("component", "machine"),
	})
	if err != nil {
		return fmt.Errorf("building state machine: %w", err)
	}

	sink, err := audit.NewFileSink(cfg.Audit.File)
	if err != nil {
		return fmt.Errorf("opening audit file: %w", err)
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("closing audit file failed", "error", err)
		}
	}()

	dog := watchdog.New(sink, machine, metrics.recorder, logger.With("component", "watchdog"))

	listener, err := ingest.NewListener(ingest.Config{
		Addr:        cfg.Ingest.Addr,
		PrefixBytes: cfg.Ingest.PrefixBytes,
		MaxPacket:   cfg.Ingest.MaxPacket,
	}, dog, metrics.recorder, clock, logger.With("component", "ingest"))
	if err != nil {
		return fmt.Errorf("building listener: %w", err)
	}

	monitor, err := watchdog.NewHeartbeatMonitor(machine, cfg.Heartbeat.Period, cfg.Heartbeat.Threshold,
		clock, logger.With("component", "heartbeat"))
	if err != nil {
		return fmt.Errorf("building heartbeat monitor: %w", err)
	}

	var status *core.Server
	if cfg.Status.Addr != "" {
		status, err = core.NewServer(dog, logger.With("component", "status"))
		if err != nil {
			return fmt.Errorf("building status server: %w", err)
		}
		status.Queue = dispatcher
		status.Breakers = channels.breakers
		status.Metrics = metrics.handler
		status.MountRoutes()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	if metrics.run != nil {
		g.Go(func() error { return metrics.run(gctx) })
	}
	if status != nil {
		g.Go(func() error { return status.ListenAndServe(gctx, cfg.Status.Addr) })
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("doorwatch stopped cleanly")
	return nil
}

// secretProvider picks where _SSM_PARAM pointers resolve. The loader ignores
// them entirely for APP_ENV=local.
func secretProvider() config.SecretProvider {
	if os.Getenv("APP_ENV") == "local" {
		return config.NewEnvVarProvider()
	}
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = defaultRegion
	}
	return config.NewSSMProvider(region, os.Getenv("AWS_ENDPOINT_URL"))
}

func redactAll(addrs []string) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = email.RedactEmail(a)
	}
	return out
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
