package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	bookingApp "github.com/cassiomorais/bookings/internal/application/booking"
	domainErrors "github.com/cassiomorais/bookings/internal/domain/errors"
	"github.com/cassiomorais/bookings/internal/interfaces/http/dto"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// IdempotencyKeyHeader carries the client's idempotency key.
const IdempotencyKeyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 255

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrHoldNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrBookingNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrTableNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrInvalidStateTransition, http.StatusConflict, "invalid_state_transition"},
	{domainErrors.ErrOptimisticRetryExceeded, http.StatusConflict, "conflict"},
	{domainErrors.ErrValidationFailed, http.StatusBadRequest, "validation_error"},
	{domainErrors.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
}

// resultStatus maps a command outcome to its HTTP status. created is the
// status used when the command produced something new.
func resultStatus(kind bookingApp.ResultKind, created int) int {
	switch kind {
	case bookingApp.HoldCreated, bookingApp.Booked:
		return created
	case bookingApp.AlreadyBooked, bookingApp.StatusChanged:
		return http.StatusOK
	case bookingApp.HoldExpired:
		return http.StatusGone
	case bookingApp.NotFound:
		return http.StatusNotFound
	case bookingApp.ActiveHoldExists, bookingApp.DuplicateActiveBooking, bookingApp.IdempotencyConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, res bookingApp.Result, created int) {
	writeJSON(w, resultStatus(res.Kind, created), dto.FromResult(res))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := dto.ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		resp.Details = map[string]string{validationErr.Field: validationErr.Message}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			if m.err == domainErrors.ErrOptimisticRetryExceeded {
				resp.Error = "concurrent modification, please retry"
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

func decodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

func idempotencyKey(r *http.Request) (string, error) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		return "", domainErrors.NewValidationError(IdempotencyKeyHeader, "header is required")
	}
	if len(key) > maxIdempotencyKeyLen {
		return "", domainErrors.NewValidationError(IdempotencyKeyHeader, "must be at most 255 characters")
	}
	return key, nil
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError(name, "must be a valid UUID")
	}
	return id, nil
}
