package hold

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the hold store.
type Repository interface {
	// Create inserts a hold unless an unexpired hold covers the same slot.
	// Fails with ErrActiveHoldExists, ErrTableNotFound or ErrOptimisticRetryExceeded.
	Create(ctx context.Context, req NewHold) (*Hold, error)

	// Consume deletes the hold and returns it. Single-use: the row is gone
	// whatever the outcome. Fails with ErrHoldNotFound, ErrHoldExpired or
	// ErrOptimisticRetryExceeded.
	Consume(ctx context.Context, id uuid.UUID) (*Hold, error)

	// Prolong extends the expiry of a live hold. An expired hold is deleted
	// and ErrHoldExpired returned.
	Prolong(ctx context.Context, id uuid.UUID, ttl time.Duration) (*Hold, error)

	// CleanupExpired deletes every hold expiring at or before now.
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)

	// GetByID retrieves a hold by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Hold, error)

	// GetByIdempotencyKey retrieves a hold by idempotency key
	GetByIdempotencyKey(ctx context.Context, key string) (*Hold, error)
}
