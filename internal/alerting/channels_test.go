package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleNotification(t *testing.T) *Notification {
	t.Helper()
	n, err := NewNotification("test", FormatText, sampleRecord())
	require.NoError(t, err)
	return n
}

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("m-1")}, nil
}

func TestSNSChannel_Send(t *testing.T) {
	api := &fakeSNS{}
	ch := NewSNSChannel(api, "arn:aws:sns:us-east-1:111122223333:alerts")
	n := sampleNotification(t)

	require.NoError(t, ch.Send(context.Background(), n))
	require.Len(t, api.inputs, 1)

	in := api.inputs[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:111122223333:alerts", aws.ToString(in.TopicArn))
	assert.Equal(t, n.Subject, aws.ToString(in.Subject))
	assert.Equal(t, n.Body, aws.ToString(in.Message))
	assert.Equal(t, "high", aws.ToString(in.MessageAttributes["severity"].StringValue))
	assert.Equal(t, "security-group-world-open", aws.ToString(in.MessageAttributes["rule_id"].StringValue))
	assert.Nil(t, in.MessageGroupId)
	assert.Equal(t, "sns", ch.Name())
	assert.NoError(t, ch.Close())
}

func TestSNSChannel_FIFO(t *testing.T) {
	api := &fakeSNS{}
	ch := NewSNSChannel(api, "arn:aws:sns:us-east-1:111122223333:alerts.fifo")

	require.NoError(t, ch.Send(context.Background(), sampleNotification(t)))
	in := api.inputs[0]
	assert.Equal(t, "111122223333", aws.ToString(in.MessageGroupId))
	assert.Equal(t, sampleRecord().ID, aws.ToString(in.MessageDeduplicationId))
}

func TestSNSChannel_Error(t *testing.T) {
	boom := errors.New("throttled")
	ch := NewSNSChannel(&fakeSNS{err: boom}, "arn:aws:sns:us-east-1:111122223333:alerts")

	err := ch.Send(context.Background(), sampleNotification(t))
	assert.ErrorIs(t, err, boom)
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaChannel_Send(t *testing.T) {
	w := &fakeWriter{}
	ch := &KafkaChannel{writer: w, topic: "alerts"}

	require.NoError(t, ch.Send(context.Background(), sampleNotification(t)))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, sampleRecord().ID, string(msg.Key))

	var rec Record
	require.NoError(t, json.Unmarshal(msg.Value, &rec))
	assert.Equal(t, *sampleRecord(), rec)

	require.NoError(t, ch.Close())
	assert.True(t, w.closed)
}

func TestKafkaChannel_Error(t *testing.T) {
	ch := &KafkaChannel{writer: &fakeWriter{err: errors.New("leader not available")}, topic: "alerts"}
	err := ch.Send(context.Background(), sampleNotification(t))
	assert.ErrorContains(t, err, "kafka write to alerts failed")
}

func TestNewKafkaChannel(t *testing.T) {
	ch := NewKafkaChannel([]string{"localhost:9092"}, "alerts", nil)
	w, ok := ch.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "alerts", w.Topic)
	assert.Equal(t, 1, w.MaxAttempts)
	assert.Equal(t, "kafka", ch.Name())
}

type fakeNATS struct {
	msgs        []*nats.Msg
	flushedCtx  bool
	flushedWait bool
	drained     bool
}

func (f *fakeNATS) PublishMsg(m *nats.Msg) error {
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeNATS) FlushWithContext(context.Context) error {
	f.flushedCtx = true
	return nil
}

func (f *fakeNATS) FlushTimeout(time.Duration) error {
	f.flushedWait = true
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

func TestNATSChannel_Send(t *testing.T) {
	conn := &fakeNATS{}
	ch := &NATSChannel{conn: conn, subject: "alerts.cloudtrail"}

	require.NoError(t, ch.Send(context.Background(), sampleNotification(t)))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "alerts.cloudtrail", conn.msgs[0].Subject)
	assert.Equal(t, "high", conn.msgs[0].Header.Get("Severity"))
	assert.True(t, json.Valid(conn.msgs[0].Data))
	assert.True(t, conn.flushedWait)
	assert.False(t, conn.flushedCtx)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ch.Send(ctx, sampleNotification(t)))
	assert.True(t, conn.flushedCtx)

	require.NoError(t, ch.Close())
	assert.True(t, conn.drained)
}

func TestDialNATS_Unreachable(t *testing.T) {
	_, err := DialNATS("nats://127.0.0.1:1", "alerts", nats.Timeout(100*time.Millisecond))
	assert.Error(t, err)
}

func TestRedisChannel_Send(t *testing.T) {
	mr := miniredis.RunT(t)

	d, err := ParseDestination("redis://" + mr.Addr() + "/security-alerts")
	require.NoError(t, err)
	ch := NewRedisChannel(redis.NewClient(RedisOptions(d)), d.Target)
	defer ch.Close()

	ctx := context.Background()
	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()}).Subscribe(ctx, "security-alerts")
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, ch.Send(ctx, sampleNotification(t)))

	select {
	case msg := <-sub.Channel():
		var rec Record
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &rec))
		assert.Equal(t, sampleRecord().ID, rec.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published alert")
	}
}

func TestRedisChannel_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	ch := NewRedisChannel(client, "alerts")
	defer ch.Close()

	mr.Close()
	assert.Error(t, ch.Send(context.Background(), sampleNotification(t)))
}

func TestWebhookChannel_Send(t *testing.T) {
	var got webhookPayload
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ch := NewWebhookChannel(server.URL, map[string]string{"Authorization": "Bearer t"})
	n := sampleNotification(t)

	require.NoError(t, ch.Send(context.Background(), n))
	assert.Equal(t, "Bearer t", auth)
	assert.Equal(t, n.Subject, got.Subject)
	assert.Equal(t, n.Body, got.Message)
	require.NotNil(t, got.Alert)
	assert.Equal(t, sampleRecord().ID, got.Alert.ID)
	assert.NoError(t, ch.Close())
}

func TestWebhookChannel_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookChannel(server.URL, nil).Send(context.Background(), sampleNotification(t))
	assert.ErrorContains(t, err, "webhook returned 502")
}
