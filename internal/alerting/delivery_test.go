package alerting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedChannel fails the first failures sends, then succeeds.
type scriptedChannel struct {
	mu        sync.Mutex
	failures  int
	calls     int
	deadlines []bool
	closed    bool
}

func (c *scriptedChannel) Name() string { return "scripted" }

func (c *scriptedChannel) Send(ctx context.Context, _ *Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	_, ok := ctx.Deadline()
	c.deadlines = append(c.deadlines, ok)
	if c.calls <= c.failures {
		return errors.New("transient")
	}
	return nil
}

func (c *scriptedChannel) Close() error {
	c.closed = true
	return nil
}

func fastDelivery(retries int) DeliveryConfig {
	return DeliveryConfig{
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  2,
		AttemptTimeout: time.Second,
	}
}

func TestDeliverer_FirstAttempt(t *testing.T) {
	ch := &scriptedChannel{}
	report := NewDeliverer(ch, fastDelivery(2)).Deliver(context.Background(), sampleNotification(t))

	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.Attempts)
	assert.Equal(t, "scripted", report.Channel)
	assert.Equal(t, []bool{true}, ch.deadlines)
}

func TestDeliverer_RetriesThenSucceeds(t *testing.T) {
	ch := &scriptedChannel{failures: 2}
	report := NewDeliverer(ch, fastDelivery(2)).Deliver(context.Background(), sampleNotification(t))

	require.NoError(t, report.Err)
	assert.Equal(t, 3, report.Attempts)
	assert.Equal(t, 3, ch.calls)
}

func TestDeliverer_Exhausted(t *testing.T) {
	ch := &scriptedChannel{failures: 10}
	report := NewDeliverer(ch, fastDelivery(1)).Deliver(context.Background(), sampleNotification(t))

	require.Error(t, report.Err)
	assert.Equal(t, 2, report.Attempts)
	assert.Equal(t, 2, ch.calls)
	assert.ErrorContains(t, report.Err, "failed after 2 attempts")
	assert.ErrorContains(t, report.Err, "transient")
}

func TestDeliverer_ContextCancelled(t *testing.T) {
	ch := &scriptedChannel{failures: 10}
	cfg := fastDelivery(5)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	n := sampleNotification(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan DeliveryReport)
	go func() {
		done <- NewDeliverer(ch, cfg).Deliver(ctx, n)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case report := <-done:
		assert.Equal(t, 1, report.Attempts)
		assert.ErrorContains(t, report.Err, "cancelled")
	case <-time.After(2 * time.Second):
		t.Fatal("Deliver did not return after cancellation")
	}
}

func TestDeliverer_Defaults(t *testing.T) {
	d := NewDeliverer(&scriptedChannel{}, DeliveryConfig{})
	assert.Equal(t, DefaultDeliveryConfig().AttemptTimeout, d.config.AttemptTimeout)
	assert.Equal(t, 1.0, d.config.BackoffFactor)

	report := d.Deliver(context.Background(), sampleNotification(t))
	assert.NoError(t, report.Err)
	assert.Equal(t, 1, report.Attempts)
}

func TestDeliverer_Close(t *testing.T) {
	ch := &scriptedChannel{}
	d := NewDeliverer(ch, DefaultDeliveryConfig())
	assert.Same(t, ch, d.Channel())
	require.NoError(t, d.Close())
	assert.True(t, ch.closed)
}
