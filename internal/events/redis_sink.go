package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultChannelPrefix = "quillstone:notify:user:"

// RedisSink publishes deliveries onto per-recipient Redis pub/sub channels.
// The connected-client fabric (web socket gateway, push worker) subscribes
// to its users' channels; anything unsubscribed is simply not received,
// which matches the best-effort delivery contract.
type RedisSink struct {
	client        *redis.Client
	channelPrefix string
}

// NewRedisSink wraps an existing Redis client.
func NewRedisSink(client *redis.Client, channelPrefix string) *RedisSink {
	if channelPrefix == "" {
		channelPrefix = defaultChannelPrefix
	}
	return &RedisSink{client: client, channelPrefix: channelPrefix}
}

// Deliver publishes the payload to the recipient's channel.
func (s *RedisSink) Deliver(ctx context.Context, recipientID string, kind Kind, payload []byte) error {
	channel := s.channelPrefix + recipientID
	if err := s.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish to %s: %w", channel, err)
	}
	return nil
}

// NopSink discards deliveries. Used when the engine runs without a
// delivery fabric; notification rows are still written.
type NopSink struct {
	logger *zap.Logger
}

// NewNopSink constructs a discarding sink.
func NewNopSink(logger *zap.Logger) *NopSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NopSink{logger: logger}
}

// Deliver drops the payload.
func (s *NopSink) Deliver(_ context.Context, recipientID string, kind Kind, _ []byte) error {
	s.logger.Debug("delivery discarded",
		zap.String("recipient_id", recipientID),
		zap.String("kind", string(kind)))
	return nil
}
