package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

const natsFlushTimeout = 5 * time.Second

// natsConn is the part of *nats.Conn used by NATSChannel.
type natsConn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// NATSChannel publishes alert records to a NATS subject.
type NATSChannel struct {
	conn    natsConn
	subject string
}

// DialNATS connects to url and returns a channel publishing to subject.
func DialNATS(url, subject string, opts ...nats.Option) (*NATSChannel, error) {
	opts = append([]nats.Option{
		nats.Name("cloudtrail-sentry"),
		nats.Timeout(5 * time.Second),
	}, opts...)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSChannel{conn: nc, subject: subject}, nil
}

// Name returns the channel name.
func (c *NATSChannel) Name() string {
	return "nats"
}

// Send publishes the record and flushes, so a nil error means the server has it.
func (c *NATSChannel) Send(ctx context.Context, n *Notification) error {
	data, err := payload(n)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(c.subject)
	msg.Data = data
	msg.Header.Set("Subject", n.Subject)
	if n.Record != nil {
		msg.Header.Set("Alert-Id", n.Record.ID)
		msg.Header.Set("Severity", string(n.Record.Severity))
	}

	if err := c.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish to %s failed: %w", c.subject, err)
	}

	// FlushWithContext requires a deadline.
	if _, ok := ctx.Deadline(); ok {
		err = c.conn.FlushWithContext(ctx)
	} else {
		err = c.conn.FlushTimeout(natsFlushTimeout)
	}
	if err != nil {
		return fmt.Errorf("nats flush failed: %w", err)
	}
	return nil
}

// Close drains the connection.
func (c *NATSChannel) Close() error {
	return c.conn.Drain()
}
