package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cloudtrail-sentry/internal/alerting"
	"cloudtrail-sentry/internal/config"
	"cloudtrail-sentry/internal/detection/rules"
	sentryerr "cloudtrail-sentry/internal/errors"
	"cloudtrail-sentry/internal/sentry"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until the context ends.
type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErrs []error
	committed []int64
	commitErr error
	closed    bool
	drained   chan struct{}
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	return &fakeReader{msgs: msgs, drained: make(chan struct{})}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()

	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return r.commitErr
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type recordingChannel struct {
	mu   sync.Mutex
	sent int
	err  error
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Send(context.Context, *alerting.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sent++
	return nil
}

func (c *recordingChannel) Close() error { return nil }

func newPipeline(t *testing.T, ch alerting.Channel) *sentry.Pipeline {
	t.Helper()
	classifier, err := rules.NewDefaultClassifier(nil)
	require.NoError(t, err)
	return sentry.NewPipeline(classifier, alerting.NewBuilder(alerting.DefaultBuilderConfig())).
		WithDeliverer(alerting.NewDeliverer(ch, alerting.DeliveryConfig{AttemptTimeout: time.Second})).
		WithLogger(discard())
}

func message(offset int64, value string) kafka.Message {
	return kafka.Message{Topic: "cloudtrail", Offset: offset, Value: []byte(value)}
}

// runUntilDrained runs c until the reader has served every message.
func runUntilDrained(t *testing.T, c *Consumer, r *fakeReader) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-r.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("reader was not drained")
	}
	cancel()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
		return nil
	}
}

func TestConsumer_Run(t *testing.T) {
	r := newFakeReader(
		message(10, `{"account":"111122223333","region":"us-east-1","detail":{"eventSource":"cloudtrail.amazonaws.com","eventName":"StopLogging"}}`),
		message(11, `{"eventSource":"ec2.amazonaws.com","eventName":"DescribeInstances"}`),
		message(12, `not json`),
		message(13, `{"eventSource":"iam.amazonaws.com","eventName":"CreateUser","requestParameters":{"userName":"x"}}`),
	)
	ch := &recordingChannel{}
	c := newConsumer(r, newPipeline(t, ch), "cloudtrail", time.Second, discard())

	err := runUntilDrained(t, c, r)
	assert.ErrorIs(t, err, context.Canceled)

	stats := c.Stats()
	assert.Equal(t, int64(4), stats.Consumed)
	assert.Equal(t, int64(2), stats.Interesting)
	assert.Equal(t, int64(1), stats.Invalid)
	assert.Equal(t, int64(0), stats.DeliveryFailures)
	assert.Equal(t, int64(13), stats.LastOffset)
	assert.Equal(t, 2, ch.sent)
	assert.Equal(t, []int64{10, 11, 12, 13}, r.committed)
}

func TestConsumer_DeliveryFailureStillCommits(t *testing.T) {
	r := newFakeReader(message(1, `{"eventSource":"cloudtrail.amazonaws.com","eventName":"DeleteTrail"}`))
	c := newConsumer(r, newPipeline(t, &recordingChannel{err: errors.New("broker down")}), "cloudtrail", time.Second, discard())

	_ = runUntilDrained(t, c, r)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.DeliveryFailures)
	assert.Contains(t, stats.LastError, "broker down")
	assert.False(t, stats.LastErrorTime.IsZero())
	assert.Equal(t, []int64{1}, r.committed)
}

func TestConsumer_FetchErrorBacksOff(t *testing.T) {
	r := newFakeReader(message(5, `{"eventSource":"iam.amazonaws.com","eventName":"ListUsers"}`))
	r.fetchErrs = []error{errors.New("coordinator not available")}
	c := newConsumer(r, newPipeline(t, &recordingChannel{}), "cloudtrail", time.Second, discard())
	c.fetchBackoff = time.Millisecond

	_ = runUntilDrained(t, c, r)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.FetchErrors)
	assert.Equal(t, int64(1), stats.Consumed)
	assert.Equal(t, "coordinator not available", stats.LastError)
}

func TestConsumer_ReaderClosed(t *testing.T) {
	r := newFakeReader()
	r.fetchErrs = []error{io.EOF}
	c := newConsumer(r, newPipeline(t, &recordingChannel{}), "cloudtrail", 0, discard())
	assert.Equal(t, 30*time.Second, c.handleTimeout)

	err := c.Run(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestConsumer_CloseIdempotent(t *testing.T) {
	r := newFakeReader()
	c := newConsumer(r, newPipeline(t, &recordingChannel{}), "cloudtrail", time.Second, discard())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, r.closed)
}

func TestNewConsumer(t *testing.T) {
	p := newPipeline(t, &recordingChannel{})
	cfg := config.DefaultConfig().Stream

	cfg.Source = "kafka://127.0.0.1:9092/cloudtrail"
	c, err := NewConsumer(cfg, p, discard())
	require.NoError(t, err)
	assert.Equal(t, "cloudtrail", c.topic)
	require.NoError(t, c.Close())

	cfg.Source = "redis://127.0.0.1:6379/events"
	_, err = NewConsumer(cfg, p, discard())
	assert.ErrorIs(t, err, sentryerr.ErrUnsupportedDestination)

	cfg.Source = ""
	_, err = NewConsumer(cfg, p, discard())
	assert.ErrorIs(t, err, sentryerr.ErrNoDestination)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
