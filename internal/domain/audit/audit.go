package audit

import (
	"context"
	"time"
)

// Outcome values recorded in the audit trail.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Entry is one audit trail record.
type Entry struct {
	UserID    *string
	Action    string
	Resource  string
	ClubID    *int64
	Outcome   string
	IP        *string
	Meta      map[string]any
	CreatedAt time.Time
}

// Repository persists audit entries.
type Repository interface {
	Log(ctx context.Context, entry Entry) error
}
