package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/bookings/internal/domain/outbox"
	"github.com/redis/go-redis/v9"
)

// DefaultStreamPrefix namespaces outbox topics as Redis stream keys.
const DefaultStreamPrefix = "events:"

// streamAdder is the slice of the Redis client the sender needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// StreamSender delivers outbox messages by appending them to a Redis stream
// named <prefix><topic>. Consumers read the stream with their own groups.
type StreamSender struct {
	client streamAdder
	prefix string
	maxLen int64
	now    func() time.Time
}

// NewStreamSender creates a sender. A maxLen above zero trims each stream
// approximately to that many entries.
func NewStreamSender(client streamAdder, prefix string, maxLen int64) *StreamSender {
	if prefix == "" {
		prefix = DefaultStreamPrefix
	}
	return &StreamSender{client: client, prefix: prefix, maxLen: maxLen, now: time.Now}
}

// Stream returns the stream key a topic is published to.
func (s *StreamSender) Stream(topic string) string {
	return s.prefix + topic
}

// Send appends the payload to the topic's stream. Encoding failures are
// permanent; Redis errors are left retryable.
func (s *StreamSender) Send(ctx context.Context, topic string, payload map[string]any) error {
	if topic == "" {
		return outbox.Permanent(errors.New("empty topic"))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return outbox.Permanent(fmt.Errorf("marshal %s payload: %w", topic, err))
	}

	values := map[string]any{
		"topic":     topic,
		"payload":   string(body),
		"timestamp": s.now().Unix(),
	}
	if key, ok := payload["dedup_key"].(string); ok && key != "" {
		values["dedup_key"] = key
	}

	args := &redis.XAddArgs{
		Stream: s.Stream(topic),
		Values: values,
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", args.Stream, err)
	}
	return nil
}
