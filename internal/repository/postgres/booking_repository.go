package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/bookings/internal/domain/booking"
	domainErrors "github.com/cassiomorais/bookings/internal/domain/errors"
	"github.com/cassiomorais/bookings/internal/domain/slot"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, club_id, table_id, event_id, table_number, guests_count, min_rate_cents,
	total_rate_cents, slot_start, slot_end, status, qr_secret, idempotency_key, created_at, updated_at`

// scanner is satisfied by pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// BookingRepository implements booking.Repository using PostgreSQL.
type BookingRepository struct {
	pool *pgxpool.Pool
	txm  *TxManager
	now  func() time.Time
}

// NewBookingRepository creates a new BookingRepository.
func NewBookingRepository(pool *pgxpool.Pool, txm *TxManager) *BookingRepository {
	return &BookingRepository{pool: pool, txm: txm, now: time.Now}
}

// WithClock replaces the clock used for created_at and updated_at.
func (r *BookingRepository) WithClock(now func() time.Time) *BookingRepository {
	r.now = now
	return r
}

func (r *BookingRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func scanBooking(s scanner) (*booking.Booking, error) {
	b := &booking.Booking{}
	var status string
	err := s.Scan(&b.ID, &b.ClubID, &b.TableID, &b.EventID, &b.TableNumber, &b.GuestsCount, &b.MinRate,
		&b.TotalRate, &b.SlotStart, &b.SlotEnd, &status, &b.QRSecret, &b.IdempotencyKey, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrBookingNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.Status = booking.Status(status)
	b.SlotStart = b.SlotStart.UTC()
	b.SlotEnd = b.SlotEnd.UTC()
	return b, nil
}

// ExistsActiveFor reports whether a BOOKED or SEATED booking occupies the slot.
func (r *BookingRepository) ExistsActiveFor(ctx context.Context, s slot.Slot) (bool, error) {
	var exists bool
	err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM bookings
		   WHERE table_id = $1 AND slot_start = $2 AND slot_end = $3 AND status IN ('BOOKED', 'SEATED'))`,
		s.TableID, s.Start.UTC(), s.End.UTC(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active booking: %w", err)
	}
	return exists, nil
}

// CreateBooked records a BOOKED booking after the idempotency and slot checks.
// A unique violation that slips past both checks is classified after rollback.
func (r *BookingRepository) CreateBooked(ctx context.Context, req booking.NewBooking) (*booking.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s := slot.Slot{ClubID: req.Slot.ClubID, TableID: req.Slot.TableID, Start: req.Slot.Start.UTC(), End: req.Slot.End.UTC()}

	var created *booking.Booking
	err := r.txm.WithTransaction(ctx, func(ctx context.Context) error {
		db := r.db(ctx)
		now := r.now().UTC()

		var keyTaken bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM bookings WHERE idempotency_key = $1)`, req.IdempotencyKey,
		).Scan(&keyTaken); err != nil {
			return fmt.Errorf("check idempotency key: %w", err)
		}
		if keyTaken {
			return domainErrors.ErrIdempotencyConflict
		}

		active, err := r.ExistsActiveFor(ctx, s)
		if err != nil {
			return err
		}
		if active {
			return domainErrors.ErrDuplicateActiveBooking
		}

		var tableNumber int
		err = db.QueryRow(ctx,
			`SELECT number FROM club_tables WHERE id = $1 AND club_id = $2`, s.TableID, s.ClubID,
		).Scan(&tableNumber)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domainErrors.ErrTableNotFound
			}
			return fmt.Errorf("lookup table: %w", err)
		}

		var eventID int64
		if err := db.QueryRow(ctx,
			`INSERT INTO events (club_id, starts_at, ends_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT ON CONSTRAINT events_slot_uq DO UPDATE SET club_id = EXCLUDED.club_id
			 RETURNING id`,
			s.ClubID, s.Start, s.End,
		).Scan(&eventID); err != nil {
			return fmt.Errorf("upsert event: %w", err)
		}

		b, err := scanBooking(db.QueryRow(ctx,
			`INSERT INTO bookings (id, club_id, table_id, event_id, table_number, guests_count, min_rate_cents,
			                       total_rate_cents, slot_start, slot_end, status, qr_secret, idempotency_key,
			                       created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
			 RETURNING `+bookingColumns,
			uuid.New(), s.ClubID, s.TableID, eventID, tableNumber, req.GuestsCount, req.MinRate,
			req.MinRate, s.Start, s.End, string(booking.StatusBooked), uuid.NewString(), req.IdempotencyKey, now,
		))
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		created = b
		return nil
	})
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return nil, r.classifyConflict(outsideTx(ctx), s, req.IdempotencyKey, err)
		}
		return nil, err
	}
	return created, nil
}

// classifyConflict re-reads committed state to explain a unique violation.
func (r *BookingRepository) classifyConflict(ctx context.Context, s slot.Slot, key string, cause error) error {
	if _, err := r.GetByIdempotencyKey(ctx, key); err == nil {
		return domainErrors.ErrIdempotencyConflict
	} else if !errors.Is(err, domainErrors.ErrBookingNotFound) {
		return fmt.Errorf("classify booking conflict: %w", err)
	}

	active, err := r.ExistsActiveFor(ctx, s)
	if err != nil {
		return fmt.Errorf("classify booking conflict: %w", err)
	}
	if active {
		return domainErrors.ErrDuplicateActiveBooking
	}

	return fmt.Errorf("%w: %w", domainErrors.ErrUnexpectedFailure, cause)
}

// SetStatus moves a booking forward through its state machine.
func (r *BookingRepository) SetStatus(ctx context.Context, id uuid.UUID, status booking.Status) (*booking.Booking, error) {
	var updated *booking.Booking
	err := r.txm.WithTransaction(ctx, func(ctx context.Context) error {
		db := r.db(ctx)

		b, err := scanBooking(db.QueryRow(ctx,
			`SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if err := b.TransitionTo(status, r.now().UTC()); err != nil {
			return err
		}

		updated, err = scanBooking(db.QueryRow(ctx,
			`UPDATE bookings SET status = $1, updated_at = $2 WHERE id = $3 RETURNING `+bookingColumns,
			string(b.Status), b.UpdatedAt, id))
		if err != nil {
			return fmt.Errorf("update booking status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetByID retrieves a booking by its ID.
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return scanBooking(r.db(ctx).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
}

// GetByIdempotencyKey retrieves a booking by the key of the confirm request that created it.
func (r *BookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	return scanBooking(r.db(ctx).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE idempotency_key = $1`, key))
}
