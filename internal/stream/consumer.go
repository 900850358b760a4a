// Package stream consumes CloudTrail events from a Kafka topic and feeds them
// through the pipeline.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"cloudtrail-sentry/internal/alerting"
	"cloudtrail-sentry/internal/config"
	sentryerr "cloudtrail-sentry/internal/errors"
	"cloudtrail-sentry/internal/sentry"

	"github.com/segmentio/kafka-go"
)

// Reader is the subset of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Stats is a snapshot of consumer counters.
type Stats struct {
	Consumed         int64     `json:"consumed"`
	Interesting      int64     `json:"interesting"`
	Invalid          int64     `json:"invalid"`
	DeliveryFailures int64     `json:"delivery_failures"`
	FetchErrors      int64     `json:"fetch_errors"`
	LastOffset       int64     `json:"last_offset"`
	LastError        string    `json:"last_error,omitempty"`
	LastErrorTime    time.Time `json:"last_error_time,omitempty"`
}

// Consumer reads envelopes from Kafka and hands each one to the pipeline.
type Consumer struct {
	reader        Reader
	pipeline      *sentry.Pipeline
	topic         string
	handleTimeout time.Duration
	fetchBackoff  time.Duration
	logger        *slog.Logger

	consumed         atomic.Int64
	interesting      atomic.Int64
	invalid          atomic.Int64
	deliveryFailures atomic.Int64
	fetchErrors      atomic.Int64
	lastOffset       atomic.Int64
	lastError        atomic.Value
	lastErrorTime    atomic.Value
	closed           atomic.Bool
}

// NewConsumer creates a consumer group reader for cfg.Source.
func NewConsumer(cfg config.StreamConfig, p *sentry.Pipeline, logger *slog.Logger) (*Consumer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	d, err := alerting.ParseDestination(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("stream source: %w", err)
	}
	if d.Scheme != alerting.SchemeKafka {
		return nil, fmt.Errorf("stream source: %w: %s is not a kafka topic", sentryerr.ErrUnsupportedDestination, d.String())
	}

	startOffset := kafka.LastOffset
	if strings.EqualFold(cfg.StartOffset, "first") {
		startOffset = kafka.FirstOffset
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        d.Addrs,
		GroupID:        cfg.GroupID,
		Topic:          d.Target,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
		StartOffset:    startOffset,
		ReadBackoffMin: 100 * time.Millisecond,
		ReadBackoffMax: time.Second,
		Logger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Debug(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-reader")
		}),
	})

	logger.Info("kafka consumer initialized",
		"brokers", d.Addrs,
		"topic", d.Target,
		"group", cfg.GroupID,
		"start_offset", cfg.StartOffset,
	)

	return newConsumer(reader, p, d.Target, cfg.HandleTimeout, logger), nil
}

func newConsumer(r Reader, p *sentry.Pipeline, topic string, handleTimeout time.Duration, logger *slog.Logger) *Consumer {
	if handleTimeout <= 0 {
		handleTimeout = 30 * time.Second
	}
	return &Consumer{
		reader:        r,
		pipeline:      p,
		topic:         topic,
		handleTimeout: handleTimeout,
		fetchBackoff:  time.Second,
		logger:        logger,
	}
}

// Run consumes until ctx is cancelled. Every fetched message is committed once
// handled, including envelopes that fail to decode; delivery retries happen in
// the pipeline.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("starting kafka consumer", "topic", c.topic)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("kafka reader closed: %w", err)
			}

			c.fetchErrors.Add(1)
			c.recordError(err)
			c.logger.Error("failed to fetch message", "error", err, "topic", c.topic)

			// Back off on errors
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.fetchBackoff):
				continue
			}
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.recordError(err)
			c.logger.Error("failed to commit offset", "error", err, "offset", msg.Offset)
		}
		c.lastOffset.Store(msg.Offset)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	c.consumed.Add(1)

	hctx, cancel := context.WithTimeout(ctx, c.handleTimeout)
	defer cancel()

	res, err := c.pipeline.HandleJSON(hctx, msg.Value)
	if err != nil {
		c.invalid.Add(1)
		c.logger.Warn("skipping undecodable message",
			"error", sentryerr.SanitizeError(err),
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		return
	}

	if res.Interesting {
		c.interesting.Add(1)
	}
	if res.DeliveryError != "" {
		c.deliveryFailures.Add(1)
		c.recordError(errors.New(res.DeliveryError))
	}
}

func (c *Consumer) recordError(err error) {
	c.lastError.Store(err.Error())
	c.lastErrorTime.Store(time.Now())
}

// Stats returns current consumer counters.
func (c *Consumer) Stats() Stats {
	s := Stats{
		Consumed:         c.consumed.Load(),
		Interesting:      c.interesting.Load(),
		Invalid:          c.invalid.Load(),
		DeliveryFailures: c.deliveryFailures.Load(),
		FetchErrors:      c.fetchErrors.Load(),
		LastOffset:       c.lastOffset.Load(),
	}
	if v, ok := c.lastError.Load().(string); ok {
		s.LastError = v
	}
	if t, ok := c.lastErrorTime.Load().(time.Time); ok {
		s.LastErrorTime = t
	}
	return s
}

// Close closes the reader. It is safe to call more than once.
func (c *Consumer) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	s := c.Stats()
	c.logger.Info("stopping kafka consumer",
		"consumed", s.Consumed,
		"interesting", s.Interesting,
		"invalid", s.Invalid,
	)

	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("kafka: failed to close consumer: %w", err)
	}
	return nil
}
