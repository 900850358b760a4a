package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DeliveryConfig configures retries around a channel.
type DeliveryConfig struct {
	MaxRetries     int           `yaml:"max_retries" validate:"gte=0,lte=10"` // Retries after the first attempt (default 2)
	InitialBackoff time.Duration `yaml:"initial_backoff" validate:"gte=0"`    // First retry delay (default 200ms)
	MaxBackoff     time.Duration `yaml:"max_backoff" validate:"gte=0"`        // Maximum backoff duration (default 2s)
	BackoffFactor  float64       `yaml:"backoff_factor" validate:"gte=1"`     // Backoff multiplier (default 2.0)
	AttemptTimeout time.Duration `yaml:"attempt_timeout" validate:"gt=0"`     // Per-attempt timeout (default 5s)
}

// DefaultDeliveryConfig returns delivery defaults sized for a short-lived function
// invocation.
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		MaxRetries:     2,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		BackoffFactor:  2.0,
		AttemptTimeout: 5 * time.Second,
	}
}

// DeliveryReport describes one delivery.
type DeliveryReport struct {
	Channel  string
	Attempts int
	Duration time.Duration
	Err      error
}

// Deliverer sends notifications through a channel, retrying failed attempts with
// exponential backoff. Deliver is synchronous.
type Deliverer struct {
	channel Channel
	config  DeliveryConfig
	logger  *slog.Logger
}

// NewDeliverer creates a Deliverer for ch.
func NewDeliverer(ch Channel, cfg DeliveryConfig) *Deliverer {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultDeliveryConfig().AttemptTimeout
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 1
	}
	return &Deliverer{
		channel: ch,
		config:  cfg,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger used for attempt failures.
func (d *Deliverer) WithLogger(logger *slog.Logger) *Deliverer {
	if logger != nil {
		d.logger = logger
	}
	return d
}

// Channel returns the wrapped channel.
func (d *Deliverer) Channel() Channel {
	return d.channel
}

// Deliver sends n, retrying until an attempt succeeds, retries are exhausted or ctx
// is done.
func (d *Deliverer) Deliver(ctx context.Context, n *Notification) DeliveryReport {
	start := time.Now()
	report := DeliveryReport{Channel: d.channel.Name()}

	backoff := d.config.InitialBackoff
	maxAttempts := d.config.MaxRetries + 1
	alertID := ""
	if n.Record != nil {
		alertID = n.Record.ID
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		report.Attempts = attempt

		// Create a per-attempt context with timeout
		attemptCtx, cancel := context.WithTimeout(ctx, d.config.AttemptTimeout)
		err := d.channel.Send(attemptCtx, n)
		cancel()

		if err == nil {
			report.Err = nil
			report.Duration = time.Since(start)
			d.logger.Debug("notification delivered",
				"channel", report.Channel,
				"alert_id", alertID,
				"attempts", attempt,
			)
			return report
		}
		report.Err = err

		d.logger.Warn("notification delivery failed",
			"channel", report.Channel,
			"alert_id", alertID,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		// Don't sleep after the last attempt
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				report.Err = fmt.Errorf("delivery cancelled after %d attempts: %w", attempt, err)
				report.Duration = time.Since(start)
				return report
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * d.config.BackoffFactor)
			if d.config.MaxBackoff > 0 && backoff > d.config.MaxBackoff {
				backoff = d.config.MaxBackoff
			}
		}
	}

	report.Err = fmt.Errorf("delivery via %s failed after %d attempts: %w", report.Channel, report.Attempts, report.Err)
	report.Duration = time.Since(start)
	return report
}

// Close closes the wrapped channel.
func (d *Deliverer) Close() error {
	return d.channel.Close()
}
