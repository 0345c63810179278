package dto

import (
	"time"

	bookingApp "github.com/cassiomorais/bookings/internal/application/booking"
	"github.com/google/uuid"
)

// HoldRequest is the body of POST /api/v1/holds.
type HoldRequest struct {
	ClubID      int64     `json:"club_id" validate:"required,gt=0"`
	TableID     int64     `json:"table_id" validate:"required,gt=0"`
	SlotStart   time.Time `json:"slot_start" validate:"required"`
	SlotEnd     time.Time `json:"slot_end" validate:"required,gtfield=SlotStart"`
	GuestsCount int       `json:"guests_count" validate:"required,gt=0,lte=100"`
}

// ToCommand maps the request onto the service command.
func (r HoldRequest) ToCommand() bookingApp.HoldRequest {
	return bookingApp.HoldRequest{
		ClubID:      r.ClubID,
		TableID:     r.TableID,
		SlotStart:   r.SlotStart,
		SlotEnd:     r.SlotEnd,
		GuestsCount: r.GuestsCount,
	}
}

// ConfirmRequest is the body of POST /api/v1/bookings.
type ConfirmRequest struct {
	HoldID uuid.UUID `json:"hold_id" validate:"required"`
}

// ProlongRequest is the body of POST /api/v1/holds/{id}/prolong. A zero TTL
// means the configured default.
type ProlongRequest struct {
	TTLSeconds int `json:"ttl_seconds" validate:"gte=0,lte=3600"`
}

// TTL returns the requested extension.
func (r ProlongRequest) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// StatusRequest is the body of PATCH /api/v1/bookings/{id}/status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=BOOKED SEATED COMPLETED NO_SHOW CANCELLED"`
}
