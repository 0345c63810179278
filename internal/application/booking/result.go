package booking

import (
	"github.com/google/uuid"
)

// ResultKind is the outcome of a booking command. Expected domain outcomes
// are results; infrastructure failures are returned as errors instead.
type ResultKind string

const (
	HoldCreated            ResultKind = "HOLD_CREATED"
	Booked                 ResultKind = "BOOKED"
	AlreadyBooked          ResultKind = "ALREADY_BOOKED"
	HoldExpired            ResultKind = "HOLD_EXPIRED"
	DuplicateActiveBooking ResultKind = "DUPLICATE_ACTIVE_BOOKING"
	IdempotencyConflict    ResultKind = "IDEMPOTENCY_CONFLICT"
	NotFound               ResultKind = "NOT_FOUND"
	ActiveHoldExists       ResultKind = "ACTIVE_HOLD_EXISTS"
	StatusChanged          ResultKind = "STATUS_CHANGED"
)

// Result is returned by every booking command. ID is the hold or booking the
// outcome refers to, or uuid.Nil when there is none.
type Result struct {
	Kind ResultKind
	ID   uuid.UUID
}

// Succeeded reports whether the command took effect or replayed one that did.
func (r Result) Succeeded() bool {
	switch r.Kind {
	case HoldCreated, Booked, AlreadyBooked, StatusChanged:
		return true
	default:
		return false
	}
}

func result(kind ResultKind, id uuid.UUID) Result {
	return Result{Kind: kind, ID: id}
}
