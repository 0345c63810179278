package booking

import (
	"time"

	"github.com/cassiomorais/bookings/internal/domain/errors"
	"github.com/cassiomorais/bookings/internal/domain/slot"
	"github.com/google/uuid"
)

// Status represents the booking status in the state machine
type Status string

const (
	StatusBooked    Status = "BOOKED"
	StatusSeated    Status = "SEATED"
	StatusCompleted Status = "COMPLETED"
	StatusNoShow    Status = "NO_SHOW"
	StatusCancelled Status = "CANCELLED"
)

// ActiveStatuses are the statuses that occupy a table slot.
var ActiveStatuses = []Status{StatusBooked, StatusSeated}

// Booking represents a finalized table reservation
type Booking struct {
	ID             uuid.UUID
	ClubID         int64
	TableID        int64
	EventID        int64
	TableNumber    int
	GuestsCount    int
	MinRate        int64 // in cents
	TotalRate      int64 // in cents
	SlotStart      time.Time
	SlotEnd        time.Time
	Status         Status
	QRSecret       string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewBooking holds the input for recording a booking in the ledger.
type NewBooking struct {
	Slot           slot.Slot
	GuestsCount    int
	MinRate        int64
	IdempotencyKey string
}

// Validate checks the booking input.
func (n NewBooking) Validate() error {
	if err := n.Slot.Validate(); err != nil {
		return err
	}
	if n.GuestsCount <= 0 {
		return errors.NewValidationError("guests_count", "must be greater than 0")
	}
	if n.MinRate < 0 {
		return errors.NewValidationError("min_rate", "cannot be negative")
	}
	if n.IdempotencyKey == "" {
		return errors.NewValidationError("idempotency_key", "cannot be empty")
	}
	return nil
}

// Slot returns the slot occupied by the booking.
func (b *Booking) Slot() slot.Slot {
	return slot.Slot{ClubID: b.ClubID, TableID: b.TableID, Start: b.SlotStart, End: b.SlotEnd}
}

// IsActive reports whether the booking currently occupies its slot.
func (b *Booking) IsActive() bool {
	return b.Status.IsActive()
}

// IsActive reports whether the status occupies a slot.
func (s Status) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

var transitions = map[Status][]Status{
	StatusBooked: {
		StatusSeated,
		StatusCancelled,
		StatusNoShow,
	},
	StatusSeated: {
		StatusCompleted,
		StatusCancelled,
	},
	StatusCompleted: {}, // Terminal state
	StatusNoShow:    {}, // Terminal state
	StatusCancelled: {}, // Terminal state
}

// CanTransition reports whether from -> to is a forward move.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the booking to a new status
func (b *Booking) TransitionTo(newStatus Status, now time.Time) error {
	if !CanTransition(b.Status, newStatus) {
		return errors.NewDomainError(
			"invalid_transition",
			"cannot transition from "+string(b.Status)+" to "+string(newStatus),
			errors.ErrInvalidStateTransition,
		)
	}
	b.Status = newStatus
	b.UpdatedAt = now
	return nil
}

// IsTerminal checks if the booking is in a terminal state
func (b *Booking) IsTerminal() bool {
	return len(transitions[b.Status]) == 0
}
