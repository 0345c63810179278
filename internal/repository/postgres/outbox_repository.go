package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/bookings/internal/domain/errors"
	"github.com/cassiomorais/bookings/internal/domain/outbox"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const outboxColumns = `id, topic, payload, dedup_key, status, attempts, next_attempt_at, last_error, created_at, sent_at`

// OutboxRepository implements outbox.Repository using PostgreSQL.
type OutboxRepository struct {
	pool   *pgxpool.Pool
	txm    *TxManager
	policy outbox.BackoffPolicy
	lease  time.Duration
	now    func() time.Time
}

// NewOutboxRepository creates a new OutboxRepository. Picked rows are leased
// for lease so that concurrent pollers skip them while delivery is in flight;
// a zero lease disables it.
func NewOutboxRepository(pool *pgxpool.Pool, txm *TxManager, policy outbox.BackoffPolicy, lease time.Duration) *OutboxRepository {
	if policy.Max > 0 && lease > policy.Max {
		lease = policy.Max
	}
	return &OutboxRepository{pool: pool, txm: txm, policy: policy, lease: lease, now: time.Now}
}

// WithClock replaces the clock used for due times and backoff.
func (r *OutboxRepository) WithClock(now func() time.Time) *OutboxRepository {
	r.now = now
	return r
}

func (r *OutboxRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func scanMessage(s scanner) (*outbox.Message, error) {
	m := &outbox.Message{}
	var (
		payload []byte
		status  string
	)
	err := s.Scan(&m.ID, &m.Topic, &payload, &m.DedupKey, &status, &m.Attempts, &m.NextAttemptAt,
		&m.LastError, &m.CreatedAt, &m.SentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOutboxRecordNotFound
		}
		return nil, fmt.Errorf("scan outbox message: %w", err)
	}
	m.Status = outbox.Status(status)
	if len(payload) > 0 {
		m.Payload = make(map[string]any)
		if err := json.Unmarshal(payload, &m.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
		}
	}
	return m, nil
}

// Enqueue inserts a NEW message that is due immediately.
func (r *OutboxRepository) Enqueue(ctx context.Context, topic string, payload map[string]any, dedupKey *string) (int64, error) {
	if topic == "" {
		return 0, domainErrors.NewValidationError("topic", "cannot be empty")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal outbox payload: %w", err)
	}

	now := r.now().UTC()
	var id int64
	err = r.db(ctx).QueryRow(ctx,
		`INSERT INTO outbox (topic, payload, dedup_key, status, attempts, next_attempt_at, created_at)
		 VALUES ($1, $2, $3, 'NEW', 0, $4, $4)
		 RETURNING id`,
		topic, body, dedupKey, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert outbox message: %w", err)
	}
	return id, nil
}

// PickBatchForSend returns due NEW messages in (next_attempt_at, id) order.
// Rows locked by another poller are skipped.
func (r *OutboxRepository) PickBatchForSend(ctx context.Context, limit int) ([]*outbox.Message, error) {
	if limit <= 0 {
		limit = 10
	}

	var batch []*outbox.Message
	err := r.txm.WithTransaction(ctx, func(ctx context.Context) error {
		db := r.db(ctx)
		now := r.now().UTC()

		rows, err := db.Query(ctx,
			`SELECT `+outboxColumns+`
			 FROM outbox
			 WHERE status = 'NEW' AND next_attempt_at <= $1
			 ORDER BY next_attempt_at, id
			 LIMIT $2
			 FOR UPDATE SKIP LOCKED`, now, limit,
		)
		if err != nil {
			return fmt.Errorf("pick outbox batch: %w", err)
		}
		picked, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*outbox.Message, error) {
			return scanMessage(row)
		})
		if err != nil {
			return err
		}

		if r.lease > 0 && len(picked) > 0 {
			ids := make([]int64, len(picked))
			for i, m := range picked {
				ids[i] = m.ID
			}
			if _, err := db.Exec(ctx,
				`UPDATE outbox SET next_attempt_at = $1 WHERE id = ANY($2)`, now.Add(r.lease), ids,
			); err != nil {
				return fmt.Errorf("lease outbox batch: %w", err)
			}
		}
		batch = picked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// MarkSent records a successful delivery. A message that already left NEW
// (another poller settled it after the lease lapsed) is left as it is.
func (r *OutboxRepository) MarkSent(ctx context.Context, id int64) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox SET status = 'SENT', attempts = attempts + 1, sent_at = $1, last_error = NULL
		 WHERE id = $2 AND status = 'NEW'`, r.now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

// MarkFailedWithRetry records a retryable failure and reschedules the message
// according to the backoff policy.
func (r *OutboxRepository) MarkFailedWithRetry(ctx context.Context, id int64, reason string) error {
	return r.txm.WithTransaction(ctx, func(ctx context.Context) error {
		db := r.db(ctx)

		var (
			attempts int
			status   string
		)
		err := db.QueryRow(ctx, `SELECT attempts, status FROM outbox WHERE id = $1 FOR UPDATE`, id).Scan(&attempts, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domainErrors.ErrOutboxRecordNotFound
			}
			return fmt.Errorf("load outbox attempts: %w", err)
		}
		if outbox.Status(status) != outbox.StatusNew {
			return nil
		}

		attempts++
		next := r.policy.NextAttemptAt(r.now().UTC(), attempts)
		if _, err := db.Exec(ctx,
			`UPDATE outbox SET attempts = $1, next_attempt_at = $2, last_error = $3
			 WHERE id = $4 AND status = 'NEW'`, attempts, next, reason, id,
		); err != nil {
			return fmt.Errorf("reschedule outbox message: %w", err)
		}
		return nil
	})
}

// MarkPermanentFailure moves a NEW message to FAILED; it is never picked again.
func (r *OutboxRepository) MarkPermanentFailure(ctx context.Context, id int64, reason string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox SET status = 'FAILED', attempts = attempts + 1, last_error = $1
		 WHERE id = $2 AND status = 'NEW'`, reason, id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.ensureExists(ctx, id)
	}
	return nil
}

// ensureExists tells a settled message (no-op) apart from a missing one.
func (r *OutboxRepository) ensureExists(ctx context.Context, id int64) error {
	var exists bool
	err := r.db(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM outbox WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check outbox message: %w", err)
	}
	if !exists {
		return domainErrors.ErrOutboxRecordNotFound
	}
	return nil
}

// IsDedupKeySent reports whether a message other than excludeID with the same
// dedup key has already been delivered.
func (r *OutboxRepository) IsDedupKeySent(ctx context.Context, dedupKey string, excludeID int64) (bool, error) {
	var sent bool
	err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM outbox WHERE dedup_key = $1 AND status = 'SENT' AND id <> $2)`,
		dedupKey, excludeID,
	).Scan(&sent)
	if err != nil {
		return false, fmt.Errorf("check dedup key: %w", err)
	}
	return sent, nil
}

// GetByID retrieves an outbox message by its ID.
func (r *OutboxRepository) GetByID(ctx context.Context, id int64) (*outbox.Message, error) {
	return scanMessage(r.db(ctx).QueryRow(ctx,
		`SELECT `+outboxColumns+` FROM outbox WHERE id = $1`, id))
}
