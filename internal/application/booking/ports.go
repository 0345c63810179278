package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransactionManager defines the interface for transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxWriter enqueues events for asynchronous delivery.
type OutboxWriter interface {
	Enqueue(ctx context.Context, topic string, payload map[string]any, dedupKey *string) (int64, error)
}

// PromoAttributor links a finalized booking to pending promotional
// attributions. Calls are best-effort.
type PromoAttributor interface {
	AttachPending(ctx context.Context, bookingID uuid.UUID, externalUserID *string) error
}

// NopPromoAttributor is used when no promo system is wired in.
type NopPromoAttributor struct {
	Logger zerolog.Logger
}

func (n NopPromoAttributor) AttachPending(_ context.Context, bookingID uuid.UUID, _ *string) error {
	n.Logger.Debug().Str("booking_id", bookingID.String()).Msg("No promo attributor configured")
	return nil
}

// Actor identifies who issued a command, for the audit trail.
type Actor struct {
	UserID *string
	IP     *string
}

type actorKey struct{}

// WithActor attaches the acting user to ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor attached to ctx, if any.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}
