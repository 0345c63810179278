package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/bookings/internal/domain/errors"
	"github.com/cassiomorais/bookings/internal/domain/hold"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const holdColumns = `id, club_id, table_id, event_id, slot_start, slot_end, guests_count,
	min_deposit_cents, expires_at, COALESCE(idempotency_key, ''), created_at`

// HoldRepository implements hold.Repository using PostgreSQL.
type HoldRepository struct {
	pool *pgxpool.Pool
	txm  *TxManager
	now  func() time.Time
}

// NewHoldRepository creates a new HoldRepository.
func NewHoldRepository(pool *pgxpool.Pool, txm *TxManager) *HoldRepository {
	return &HoldRepository{pool: pool, txm: txm, now: time.Now}
}

// WithClock replaces the clock used for expiry decisions.
func (r *HoldRepository) WithClock(now func() time.Time) *HoldRepository {
	r.now = now
	return r
}

func (r *HoldRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func scanHold(s scanner) (*hold.Hold, error) {
	h := &hold.Hold{}
	err := s.Scan(&h.ID, &h.ClubID, &h.TableID, &h.EventID, &h.SlotStart, &h.SlotEnd, &h.GuestsCount,
		&h.MinDeposit, &h.ExpiresAt, &h.IdempotencyKey, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrHoldNotFound
		}
		return nil, fmt.Errorf("scan hold: %w", err)
	}
	h.SlotStart = h.SlotStart.UTC()
	h.SlotEnd = h.SlotEnd.UTC()
	return h, nil
}

// Create inserts a hold. An expired hold on the same slot is removed first so
// the slot constraint only ever guards against live holds.
func (r *HoldRepository) Create(ctx context.Context, req hold.NewHold) (*hold.Hold, error) {
	if err := req.Slot.Validate(); err != nil {
		return nil, err
	}

	var created *hold.Hold
	err := r.txm.WithTransaction(ctx, func(ctx context.Context) error {
		db := r.db(ctx)
		now := r.now().UTC()
		s := req.Slot

		var minDeposit int64
		err := db.QueryRow(ctx,
			`SELECT min_deposit_cents FROM club_tables WHERE id = $1 AND club_id = $2`,
			s.TableID, s.ClubID,
		).Scan(&minDeposit)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domainErrors.ErrTableNotFound
			}
			return fmt.Errorf("lookup table: %w", err)
		}

		if _, err := db.Exec(ctx,
			`DELETE FROM holds
			 WHERE table_id = $1 AND slot_start = $2 AND slot_end = $3 AND expires_at <= $4`,
			s.TableID, s.Start, s.End, now,
		); err != nil {
			return fmt.Errorf("delete expired hold: %w", err)
		}

		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS (
			   SELECT 1 FROM holds
			   WHERE table_id = $1 AND slot_start = $2 AND slot_end = $3 AND expires_at > $4)`,
			s.TableID, s.Start, s.End, now,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check active hold: %w", err)
		}
		if exists {
			return domainErrors.ErrActiveHoldExists
		}

		var eventID *int64
		err = db.QueryRow(ctx,
			`SELECT id FROM events WHERE club_id = $1 AND starts_at = $2 AND ends_at = $3`,
			s.ClubID, s.Start, s.End,
		).Scan(&eventID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("lookup event: %w", err)
		}

		h, err := scanHold(db.QueryRow(ctx,
			`INSERT INTO holds (id, club_id, table_id, event_id, slot_start, slot_end, guests_count,
			                    min_deposit_cents, expires_at, idempotency_key, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING `+holdColumns,
			uuid.New(), s.ClubID, s.TableID, eventID, s.Start, s.End, req.GuestsCount,
			minDeposit, now.Add(req.TTL), nullableString(req.IdempotencyKey), now,
		))
		if err != nil {
			if constraint, ok := uniqueViolation(err); ok {
				switch constraint {
				case constraintHoldSlot:
					return domainErrors.ErrActiveHoldExists
				case constraintHoldIdempotency:
					return domainErrors.ErrIdempotencyConflict
				}
			}
			return fmt.Errorf("insert hold: %w", err)
		}
		created = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Consume deletes the hold and reports whether it was still live. The delete
// commits even when the hold turns out to be expired.
func (r *HoldRepository) Consume(ctx context.Context, id uuid.UUID) (*hold.Hold, error) {
	var consumed *hold.Hold
	err := r.txm.WithTransaction(ctx, func(ctx context.Context) error {
		h, err := scanHold(r.db(ctx).QueryRow(ctx,
			`DELETE FROM holds WHERE id = $1 RETURNING `+holdColumns, id))
		if err != nil {
			return err
		}
		consumed = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	if consumed.IsExpired(r.now()) {
		return consumed, domainErrors.ErrHoldExpired
	}
	return consumed, nil
}

// Prolong pushes a live hold's expiry to now+ttl. An expired hold is deleted instead.
func (r *HoldRepository) Prolong(ctx context.Context, id uuid.UUID, ttl time.Duration) (*hold.Hold, error) {
	var (
		result  *hold.Hold
		expired bool
	)
	err := r.txm.WithTransaction(ctx, func(ctx context.Context) error {
		db := r.db(ctx)
		now := r.now().UTC()

		h, err := scanHold(db.QueryRow(ctx,
			`SELECT `+holdColumns+` FROM holds WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}

		if h.IsExpired(now) {
			if _, err := db.Exec(ctx, `DELETE FROM holds WHERE id = $1`, id); err != nil {
				return fmt.Errorf("delete expired hold: %w", err)
			}
			result, expired = h, true
			return nil
		}

		updated, err := scanHold(db.QueryRow(ctx,
			`UPDATE holds SET expires_at = $1 WHERE id = $2 RETURNING `+holdColumns,
			now.Add(ttl), id))
		if err != nil {
			return fmt.Errorf("prolong hold: %w", err)
		}
		result, expired = updated, false
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return result, domainErrors.ErrHoldExpired
	}
	return result, nil
}

// CleanupExpired deletes every hold expiring at or before now.
func (r *HoldRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db(ctx).Exec(ctx, `DELETE FROM holds WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired holds: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetByID retrieves a hold by its ID.
func (r *HoldRepository) GetByID(ctx context.Context, id uuid.UUID) (*hold.Hold, error) {
	return scanHold(r.db(ctx).QueryRow(ctx,
		`SELECT `+holdColumns+` FROM holds WHERE id = $1`, id))
}

// GetByIdempotencyKey retrieves a hold by the key of the request that created it.
func (r *HoldRepository) GetByIdempotencyKey(ctx context.Context, key string) (*hold.Hold, error) {
	return scanHold(r.db(ctx).QueryRow(ctx,
		`SELECT `+holdColumns+` FROM holds WHERE idempotency_key = $1`, key))
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
