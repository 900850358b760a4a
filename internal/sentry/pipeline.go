// Package sentry wires the extractor, classifier and alert builder into the single
// entry point used by every adapter.
package sentry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloudtrail-sentry/internal/alerting"
	"cloudtrail-sentry/internal/cloudtrail"
	"cloudtrail-sentry/internal/detection"
	sentryerr "cloudtrail-sentry/internal/errors"
	"cloudtrail-sentry/internal/metrics"
	"cloudtrail-sentry/internal/schema"
)

// Result is returned for every handled envelope.
type Result struct {
	Interesting bool             `json:"interesting"`
	Published   bool             `json:"published"`
	Reason      string           `json:"reason"`
	Subject     string           `json:"subject,omitempty"`
	Alert       *alerting.Record `json:"alert"`
	// DeliveryError describes a failed publish. It never turns into a returned error.
	DeliveryError string `json:"delivery_error,omitempty"`
}

// Pipeline evaluates envelopes and publishes alerts for interesting ones.
//
// Handle never fails: classification always produces a Result, and publish failures
// are logged and reported in Result.DeliveryError. A Pipeline is safe for concurrent
// use.
type Pipeline struct {
	classifier *detection.Classifier
	builder    *alerting.Builder
	deliverer  *alerting.Deliverer
	format     alerting.MessageFormat
	validator  *schema.Validator
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewPipeline creates a pipeline without delivery.
func NewPipeline(classifier *detection.Classifier, builder *alerting.Builder) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		builder:    builder,
		format:     alerting.FormatText,
		validator:  schema.NewValidator(),
		logger:     slog.Default(),
	}
}

// WithDeliverer enables delivery through d. A nil d disables delivery.
func (p *Pipeline) WithDeliverer(d *alerting.Deliverer) *Pipeline {
	p.deliverer = d
	return p
}

// WithMessageFormat sets the notification body format.
func (p *Pipeline) WithMessageFormat(f alerting.MessageFormat) *Pipeline {
	p.format = f
	return p
}

// WithMetrics sets the metrics sink.
func (p *Pipeline) WithMetrics(m *metrics.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// WithLogger sets the logger.
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	if logger != nil {
		p.logger = logger
	}
	return p
}

// Delivers reports whether a destination is configured.
func (p *Pipeline) Delivers() bool {
	return p.deliverer != nil
}

// Classifier returns the pipeline's classifier.
func (p *Pipeline) Classifier() *detection.Classifier {
	return p.classifier
}

// Handle evaluates env and, if it is interesting and delivery is configured,
// publishes the alert. A nil envelope is treated as an empty one.
func (p *Pipeline) Handle(ctx context.Context, env *cloudtrail.Envelope) *Result {
	if env == nil {
		env = cloudtrail.NewEnvelope("", "", nil)
	}

	start := time.Now()
	ectx := cloudtrail.Extract(env.Detail)
	res := p.classifier.Classify(ectx)
	record := p.builder.Build(env, ectx, res)
	elapsed := time.Since(start)

	attrs := append(ectx.LogAttrs(),
		"interesting", res.Interesting,
		"reason", res.Reason,
		"rule_id", res.RuleID,
		"severity", string(record.Severity),
		"alert_id", record.ID,
		"account", record.Account,
	)
	p.logger.InfoContext(ctx, "event evaluated", attrs...)
	p.metrics.ObserveEvaluation(ectx.Source, res.RuleID, string(res.Severity), res.Interesting, elapsed)

	result := &Result{
		Interesting: res.Interesting,
		Reason:      res.Reason,
		Alert:       record,
	}
	if !res.Interesting {
		return result
	}
	result.Subject = alerting.Subject(record)

	if p.deliverer == nil {
		p.logger.DebugContext(ctx, "no destination configured, alert not delivered", "alert_id", record.ID)
		return result
	}

	if err := p.validator.ValidateRecord(record); err != nil {
		p.logger.WarnContext(ctx, "alert record failed validation", "alert_id", record.ID, "error", err)
	}

	if err := p.publish(ctx, record); err != nil {
		result.DeliveryError = sentryerr.SanitizeError(err).Error()
		return result
	}
	result.Published = true
	return result
}

// HandleJSON decodes an envelope (or a bare CloudTrail record) and handles it. Only
// undecodable input is an error.
func (p *Pipeline) HandleJSON(ctx context.Context, data []byte) (*Result, error) {
	env, err := cloudtrail.DecodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	return p.Handle(ctx, env), nil
}

func (p *Pipeline) publish(ctx context.Context, record *alerting.Record) error {
	n, err := alerting.NewNotification("", p.format, record)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to render alert", "alert_id", record.ID, "error", err)
		return err
	}

	report := p.deliverer.Deliver(ctx, n)
	p.metrics.ObserveDelivery(report.Channel, report.Attempts, report.Duration, report.Err)

	if report.Err != nil {
		p.logger.ErrorContext(ctx, "alert publish failed",
			"alert_id", record.ID,
			"channel", report.Channel,
			"attempts", report.Attempts,
			"error", report.Err,
		)
		return fmt.Errorf("publish alert %s: %w", record.ID, report.Err)
	}

	p.logger.InfoContext(ctx, "alert published",
		"alert_id", record.ID,
		"channel", report.Channel,
		"attempts", report.Attempts,
		"subject", alerting.Subject(record),
	)
	return nil
}

// Close releases the delivery channel.
func (p *Pipeline) Close() error {
	if p.deliverer == nil {
		return nil
	}
	return p.deliverer.Close()
}
