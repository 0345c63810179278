package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/bookings/internal/domain/audit"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository implements audit.Repository using PostgreSQL.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// Log appends an entry to the audit trail.
func (r *AuditRepository) Log(ctx context.Context, e audit.Entry) error {
	meta := e.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal audit meta: %w", err)
	}

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = ConnFromCtx(ctx, r.pool).Exec(ctx,
		`INSERT INTO audit_log (user_id, action, resource, club_id, outcome, ip, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.UserID, e.Action, e.Resource, e.ClubID, e.Outcome, e.IP, body, createdAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
