package errors

import (
	"errors"
	"fmt"
)

var (
	// Hold errors
	ErrActiveHoldExists = errors.New("active hold exists for slot")
	ErrHoldNotFound     = errors.New("hold not found")
	ErrHoldExpired      = errors.New("hold expired")

	// Booking errors
	ErrBookingNotFound        = errors.New("booking not found")
	ErrDuplicateActiveBooking = errors.New("active booking exists for slot")
	ErrIdempotencyConflict    = errors.New("idempotency key already used")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Reference data errors
	ErrTableNotFound = errors.New("table not found")

	// Outbox errors
	ErrOutboxRecordNotFound = errors.New("outbox record not found")

	// Infrastructure errors
	ErrOptimisticRetryExceeded = errors.New("optimistic retry exceeded")
	ErrUnexpectedFailure       = errors.New("unexpected failure")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
