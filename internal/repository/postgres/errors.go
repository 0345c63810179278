package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories branch on.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Constraint names declared in the migrations.
const (
	constraintHoldSlot           = "holds_slot_uq"
	constraintHoldIdempotency    = "holds_idempotency_key_uq"
	constraintBookingActiveSlot  = "bookings_active_slot_uq"
	constraintBookingIdempotency = "bookings_idempotency_key_uq"
)

// IsTransient reports whether err is a serialization failure or deadlock
// that a fresh transaction may not hit again.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// uniqueViolation returns the violated constraint name, or "" when err is not a unique violation.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
