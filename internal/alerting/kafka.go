package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer used by KafkaChannel.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaChannel produces alert records to a Kafka topic, keyed by alert ID.
type KafkaChannel struct {
	writer messageWriter
	topic  string
}

// NewKafkaChannel creates a channel writing to topic on brokers.
func NewKafkaChannel(brokers []string, topic string, logger *slog.Logger) *KafkaChannel {
	if logger == nil {
		logger = slog.Default()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchSize:    1,
		WriteTimeout: 10 * time.Second,
		// Retries belong to the Deliverer.
		MaxAttempts: 1,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka-writer")
		}),
	}

	return &KafkaChannel{writer: writer, topic: topic}
}

// Name returns the channel name.
func (k *KafkaChannel) Name() string {
	return "kafka"
}

// Send writes the alert record as one message.
func (k *KafkaChannel) Send(ctx context.Context, n *Notification) error {
	value, err := payload(n)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "subject", Value: []byte(n.Subject)},
		},
	}
	if n.Record != nil {
		msg.Key = []byte(n.Record.ID)
		msg.Headers = append(msg.Headers, kafka.Header{Key: "severity", Value: []byte(n.Record.Severity)})
	}

	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write to %s failed: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaChannel) Close() error {
	return k.writer.Close()
}
