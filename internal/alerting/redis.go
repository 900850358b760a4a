package alerting

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisChannel publishes alert records on a Redis pub/sub channel.
type RedisChannel struct {
	client  *redis.Client
	channel string
}

// NewRedisChannel creates a channel publishing to channel through client.
func NewRedisChannel(client *redis.Client, channel string) *RedisChannel {
	return &RedisChannel{client: client, channel: channel}
}

// RedisOptions returns client options for a redis destination.
func RedisOptions(d Destination) *redis.Options {
	opts := &redis.Options{
		Addr:         d.Addrs[0],
		Username:     d.Username,
		Password:     d.Password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     4,
		MaxRetries:   0,
	}
	if d.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Name returns the channel name.
func (r *RedisChannel) Name() string {
	return "redis"
}

// Send publishes the record as JSON.
func (r *RedisChannel) Send(ctx context.Context, n *Notification) error {
	data, err := payload(n)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish to %s failed: %w", r.channel, err)
	}
	return nil
}

// Close closes the client.
func (r *RedisChannel) Close() error {
	return r.client.Close()
}
