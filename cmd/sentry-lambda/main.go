// Package main is the AWS Lambda entry point. It receives CloudTrail events from an
// EventBridge rule and publishes alerts to the configured destination.
package main

import (
	"context"
	"log/slog"
	"os"

	"cloudtrail-sentry/internal/config"
	sentryerr "cloudtrail-sentry/internal/errors"
	"cloudtrail-sentry/internal/eventbridge"
	"cloudtrail-sentry/internal/logging"
	"cloudtrail-sentry/internal/sentry"

	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	closer := logging.Setup(cfg.Logging)
	defer closer.Close()

	sentryerr.SetProductionMode(cfg.Production)

	p, err := sentry.FromConfig(context.Background(), cfg, nil, slog.Default())
	if err != nil {
		slog.Error("failed to initialize pipeline", "error", err)
		os.Exit(1)
	}
	defer p.Close()

	slog.Info("lambda handler ready",
		"monitored_sources", len(cfg.Detection.MonitoredSources),
		"delivery", p.Delivers(),
		"message_format", cfg.Alerting.MessageFormat,
	)

	lambda.Start(eventbridge.Handler(p))
}
