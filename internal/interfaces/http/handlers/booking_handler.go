package handlers

import (
	"context"
	"net/http"
	"time"

	bookingApp "github.com/cassiomorais/bookings/internal/application/booking"
	"github.com/cassiomorais/bookings/internal/domain/booking"
	"github.com/cassiomorais/bookings/internal/domain/hold"
	"github.com/cassiomorais/bookings/internal/interfaces/http/dto"
	"github.com/google/uuid"
)

// BookingService is the subset of the booking service the HTTP layer drives.
type BookingService interface {
	Hold(ctx context.Context, req bookingApp.HoldRequest, idemKey string) (bookingApp.Result, error)
	ProlongHold(ctx context.Context, holdID uuid.UUID, ttl time.Duration) (bookingApp.Result, error)
	Confirm(ctx context.Context, holdID uuid.UUID, idemKey string) (bookingApp.Result, error)
	Finalize(ctx context.Context, bookingID uuid.UUID, actorID *string) (bookingApp.Result, error)
	ChangeStatus(ctx context.Context, bookingID uuid.UUID, status booking.Status, actorID *string) (bookingApp.Result, error)
	FindHold(ctx context.Context, holdID uuid.UUID) (*hold.Hold, error)
	FindBooking(ctx context.Context, bookingID uuid.UUID) (*booking.Booking, error)
}

type BookingHandler struct {
	service BookingService
}

func NewBookingHandler(service BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// CreateHold handles POST /api/v1/holds.
func (h *BookingHandler) CreateHold(w http.ResponseWriter, r *http.Request) {
	key, err := idempotencyKey(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req dto.HoldRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.service.Hold(r.Context(), req.ToCommand(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, res, http.StatusCreated)
}

// ProlongHold handles POST /api/v1/holds/{id}/prolong.
func (h *BookingHandler) ProlongHold(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req dto.ProlongRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}

	res, err := h.service.ProlongHold(r.Context(), id, req.TTL())
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, res, http.StatusOK)
}

// GetHold handles GET /api/v1/holds/{id}.
func (h *BookingHandler) GetHold(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	found, err := h.service.FindHold(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromHold(found))
}

// Confirm handles POST /api/v1/bookings.
func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	key, err := idempotencyKey(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req dto.ConfirmRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.service.Confirm(r.Context(), req.HoldID, key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, res, http.StatusCreated)
}

// Finalize handles POST /api/v1/bookings/{id}/finalize. The confirmation
// event is queued, not yet delivered, hence 202.
func (h *BookingHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	actor := bookingApp.ActorFromContext(r.Context())
	res, err := h.service.Finalize(r.Context(), id, actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, res, http.StatusAccepted)
}

// ChangeStatus handles PATCH /api/v1/bookings/{id}/status.
func (h *BookingHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req dto.StatusRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	actor := bookingApp.ActorFromContext(r.Context())
	res, err := h.service.ChangeStatus(r.Context(), id, booking.Status(req.Status), actor.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, res, http.StatusOK)
}

// GetBooking handles GET /api/v1/bookings/{id}.
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	found, err := h.service.FindBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.FromBooking(found))
}
