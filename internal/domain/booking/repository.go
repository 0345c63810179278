package booking

import (
	"context"

	"github.com/cassiomorais/bookings/internal/domain/slot"
	"github.com/google/uuid"
)

// Repository defines the booking ledger.
type Repository interface {
	// ExistsActiveFor reports whether an active booking occupies the slot
	ExistsActiveFor(ctx context.Context, s slot.Slot) (bool, error)

	// CreateBooked records a BOOKED booking. Fails with ErrIdempotencyConflict,
	// ErrDuplicateActiveBooking, ErrOptimisticRetryExceeded or ErrUnexpectedFailure.
	CreateBooked(ctx context.Context, req NewBooking) (*Booking, error)

	// SetStatus moves a booking forward. Fails with ErrBookingNotFound,
	// ErrInvalidStateTransition or ErrOptimisticRetryExceeded.
	SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Booking, error)

	// GetByID retrieves a booking by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// GetByIdempotencyKey retrieves a booking by idempotency key
	GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error)
}
