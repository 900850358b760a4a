package sentry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"cloudtrail-sentry/internal/alerting"
	"cloudtrail-sentry/internal/config"
	"cloudtrail-sentry/internal/detection/rules"
	sentryerr "cloudtrail-sentry/internal/errors"
	"cloudtrail-sentry/internal/logging"
	"cloudtrail-sentry/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// FromConfig builds a pipeline from cfg. m may be nil. When cfg names a destination
// the matching channel is opened; a destination that cannot be opened is an error.
func FromConfig(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	classifier, err := rules.NewDefaultClassifier(cfg.Detection.MonitoredSources)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier: %w", err)
	}

	format, err := alerting.ParseMessageFormat(cfg.Alerting.MessageFormat)
	if err != nil {
		return nil, err
	}

	p := NewPipeline(classifier, alerting.NewBuilder(cfg.BuilderConfig())).
		WithMessageFormat(format).
		WithMetrics(m).
		WithLogger(logger)

	if !cfg.HasDestination() {
		logger.Warn("no alert destination configured, alerts will only be logged")
		return p, nil
	}

	dest, err := alerting.ParseDestination(cfg.Alerting.Destination)
	if err != nil {
		return nil, err
	}

	ch, err := OpenChannel(ctx, cfg, dest, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("alert destination configured",
		"channel", ch.Name(),
		"destination", dest.String(),
		"format", string(format),
	)

	return p.WithDeliverer(alerting.NewDeliverer(ch, cfg.Alerting.Delivery).WithLogger(logger)), nil
}

// OpenChannel opens the transport for d.
func OpenChannel(ctx context.Context, cfg *config.Config, d alerting.Destination, logger *slog.Logger) (alerting.Channel, error) {
	switch d.Scheme {
	case alerting.SchemeSNS:
		region := d.Region
		if cfg.AWS.Region != "" {
			region = cfg.AWS.Region
		}
		client, err := cfg.AWS.SNSClient(ctx, region)
		if err != nil {
			return nil, err
		}
		return alerting.NewSNSChannel(client, d.Target), nil

	case alerting.SchemeKafka:
		return alerting.NewKafkaChannel(d.Addrs, d.Target, logger), nil

	case alerting.SchemeNATS:
		var opts []nats.Option
		if d.Username != "" {
			opts = append(opts, nats.UserInfo(d.Username, d.Password))
		}
		if d.TLS {
			opts = append(opts, nats.Secure())
		}
		ch, err := alerting.DialNATS(strings.Join(d.Addrs, ","), d.Target, opts...)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", logging.MaskURL(d.Raw), err)
		}
		return ch, nil

	case alerting.SchemeRedis:
		client := redis.NewClient(alerting.RedisOptions(d))
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis destination not reachable at startup", "destination", d.String(), "error", err)
		}
		return alerting.NewRedisChannel(client, d.Target), nil

	case alerting.SchemeWebhook:
		return alerting.NewWebhookChannel(d.Target, cfg.Alerting.WebhookHeaders), nil
	}

	return nil, fmt.Errorf("%w: %s", sentryerr.ErrUnsupportedDestination, d.String())
}
