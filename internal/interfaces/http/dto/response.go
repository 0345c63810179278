package dto

import (
	"time"

	bookingApp "github.com/cassiomorais/bookings/internal/application/booking"
	"github.com/cassiomorais/bookings/internal/domain/booking"
	"github.com/cassiomorais/bookings/internal/domain/hold"
	"github.com/google/uuid"
)

// ResultResponse reports the outcome of a booking command.
type ResultResponse struct {
	Result string     `json:"result"`
	ID     *uuid.UUID `json:"id,omitempty"`
}

// FromResult maps a service Result to a ResultResponse.
func FromResult(r bookingApp.Result) *ResultResponse {
	resp := &ResultResponse{Result: string(r.Kind)}
	if r.ID != uuid.Nil {
		id := r.ID
		resp.ID = &id
	}
	return resp
}

// HoldResponse is the HTTP response for a hold.
type HoldResponse struct {
	ID          uuid.UUID `json:"id"`
	ClubID      int64     `json:"club_id"`
	TableID     int64     `json:"table_id"`
	EventID     *int64    `json:"event_id,omitempty"`
	SlotStart   time.Time `json:"slot_start"`
	SlotEnd     time.Time `json:"slot_end"`
	GuestsCount int       `json:"guests_count"`
	MinDeposit  int64     `json:"min_deposit"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// FromHold maps a domain Hold to a HoldResponse.
func FromHold(h *hold.Hold) *HoldResponse {
	return &HoldResponse{
		ID:          h.ID,
		ClubID:      h.ClubID,
		TableID:     h.TableID,
		EventID:     h.EventID,
		SlotStart:   h.SlotStart,
		SlotEnd:     h.SlotEnd,
		GuestsCount: h.GuestsCount,
		MinDeposit:  h.MinDeposit,
		ExpiresAt:   h.ExpiresAt,
		CreatedAt:   h.CreatedAt,
	}
}

// BookingResponse is the HTTP response for a booking. The QR secret is
// never exposed here.
type BookingResponse struct {
	ID          uuid.UUID `json:"id"`
	ClubID      int64     `json:"club_id"`
	TableID     int64     `json:"table_id"`
	TableNumber int       `json:"table_number"`
	EventID     int64     `json:"event_id"`
	SlotStart   time.Time `json:"slot_start"`
	SlotEnd     time.Time `json:"slot_end"`
	GuestsCount int       `json:"guests_count"`
	MinRate     int64     `json:"min_rate"`
	TotalRate   int64     `json:"total_rate"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FromBooking maps a domain Booking to a BookingResponse.
func FromBooking(b *booking.Booking) *BookingResponse {
	return &BookingResponse{
		ID:          b.ID,
		ClubID:      b.ClubID,
		TableID:     b.TableID,
		TableNumber: b.TableNumber,
		EventID:     b.EventID,
		SlotStart:   b.SlotStart,
		SlotEnd:     b.SlotEnd,
		GuestsCount: b.GuestsCount,
		MinRate:     b.MinRate,
		TotalRate:   b.TotalRate,
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}
