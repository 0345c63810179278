package hold

import (
	"time"

	"github.com/cassiomorais/bookings/internal/domain/slot"
	"github.com/google/uuid"
)

// Hold is a short-lived exclusive claim on a (table, slot) pending confirmation.
type Hold struct {
	ID             uuid.UUID
	ClubID         int64
	TableID        int64
	EventID        *int64
	SlotStart      time.Time
	SlotEnd        time.Time
	GuestsCount    int
	MinDeposit     int64 // in cents
	ExpiresAt      time.Time
	IdempotencyKey string
	CreatedAt      time.Time
}

// NewHold holds the input for creating a hold.
type NewHold struct {
	Slot           slot.Slot
	GuestsCount    int
	TTL            time.Duration
	IdempotencyKey string
}

// Slot returns the slot covered by the hold.
func (h *Hold) Slot() slot.Slot {
	return slot.Slot{ClubID: h.ClubID, TableID: h.TableID, Start: h.SlotStart, End: h.SlotEnd}
}

// IsExpired reports whether the hold is past its expiry at the given instant.
// A hold expiring exactly at now counts as expired.
func (h *Hold) IsExpired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// Matches reports whether a replayed request describes the same hold.
func (h *Hold) Matches(s slot.Slot, guestsCount int) bool {
	return h.Slot().SameAs(s) && h.GuestsCount == guestsCount
}
