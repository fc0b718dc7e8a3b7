// Package realtime pushes messages to connected clients through Redis pub/sub.
// A websocket gateway subscribes to the same channels and fans messages out.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/allisson/propflow/internal/clock"
)

// Broadcaster sends a message to everyone listening on a channel.
type Broadcaster interface {
	BroadcastNewMessage(ctx context.Context, channel string, payload any) error
}

// Message is the envelope published on a channel.
type Message struct {
	Channel string    `json:"channel"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sentAt"`
}

// LandlordChannel returns the channel for a landlord user.
func LandlordChannel(id string) string { return "landlord-" + id }

// TenantChannel returns the channel for a tenant user.
func TenantChannel(id string) string { return "tenant-" + id }

// ContractorChannel returns the channel for a contractor user.
func ContractorChannel(id string) string { return "contractor-" + id }

// HomeownerChannel returns the channel for a homeowner user.
func HomeownerChannel(id string) string { return "homeowner-" + id }

// Publisher is the subset of the Redis client used for broadcasting.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisBroadcaster publishes JSON envelopes with Redis PUBLISH.
type RedisBroadcaster struct {
	client Publisher
	clock  clock.Clock
	logger *slog.Logger
}

// NewRedisBroadcaster creates a RedisBroadcaster on top of client.
func NewRedisBroadcaster(client Publisher, clk clock.Clock, logger *slog.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, clock: clk, logger: logger}
}

// NewRedisClient parses url, connects and pings.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// BroadcastNewMessage publishes payload on channel. It returns the publish error
// and leaves it to callers to decide whether delivery was best effort.
func (b *RedisBroadcaster) BroadcastNewMessage(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(Message{Channel: channel, Payload: payload, SentAt: b.clock.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast: %w", err)
	}

	receivers, err := b.client.Publish(ctx, channel, body).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}

	if b.logger != nil {
		b.logger.Debug("broadcast sent",
			slog.String("channel", channel),
			slog.Int64("receivers", receivers),
		)
	}
	return nil
}

// NoOpBroadcaster drops every message. Used when no Redis URL is configured.
type NoOpBroadcaster struct{}

// NewNoOpBroadcaster creates a NoOpBroadcaster.
func NewNoOpBroadcaster() *NoOpBroadcaster {
	return &NoOpBroadcaster{}
}

// BroadcastNewMessage does nothing.
func (NoOpBroadcaster) BroadcastNewMessage(context.Context, string, any) error {
	return nil
}
