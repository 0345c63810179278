package outbox

import (
	"context"
)

// Repository stores outbox messages. The Mark methods only settle NEW
// messages; on a message that is already SENT or FAILED they do nothing.
type Repository interface {
	// Enqueue inserts a NEW message due immediately and returns its id
	Enqueue(ctx context.Context, topic string, payload map[string]any, dedupKey *string) (int64, error)

	// PickBatchForSend returns up to limit due NEW messages ordered by (next_attempt_at, id)
	PickBatchForSend(ctx context.Context, limit int) ([]*Message, error)

	// MarkSent marks a message as sent and increments its attempts
	MarkSent(ctx context.Context, id int64) error

	// MarkFailedWithRetry increments attempts and reschedules the message with backoff
	MarkFailedWithRetry(ctx context.Context, id int64, reason string) error

	// MarkPermanentFailure moves a message to FAILED
	MarkPermanentFailure(ctx context.Context, id int64, reason string) error

	// IsDedupKeySent reports whether another message with the same dedup key was sent
	IsDedupKeySent(ctx context.Context, dedupKey string, excludeID int64) (bool, error)
}
