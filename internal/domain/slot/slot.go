package slot

import (
	"fmt"
	"time"

	"github.com/cassiomorais/bookings/internal/domain/errors"
)

// Slot is a (table, start, end) tuple resolved upstream by the scheduling layer.
type Slot struct {
	ClubID  int64
	TableID int64
	Start   time.Time
	End     time.Time
}

// New builds a slot with both bounds normalised to UTC.
func New(clubID, tableID int64, start, end time.Time) (Slot, error) {
	s := Slot{ClubID: clubID, TableID: tableID, Start: start.UTC(), End: end.UTC()}
	if err := s.Validate(); err != nil {
		return Slot{}, err
	}
	return s, nil
}

// Validate checks the slot bounds and identifiers.
func (s Slot) Validate() error {
	if s.ClubID <= 0 {
		return errors.NewValidationError("club_id", "must be positive")
	}
	if s.TableID <= 0 {
		return errors.NewValidationError("table_id", "must be positive")
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return errors.NewValidationError("slot", "start and end are required")
	}
	if !s.End.After(s.Start) {
		return errors.NewValidationError("slot", "end must be after start")
	}
	return nil
}

// SameAs reports whether two slots cover the same table and bounds.
func (s Slot) SameAs(other Slot) bool {
	return s.ClubID == other.ClubID &&
		s.TableID == other.TableID &&
		s.Start.Equal(other.Start) &&
		s.End.Equal(other.End)
}

func (s Slot) String() string {
	return fmt.Sprintf("table=%d [%s, %s)", s.TableID, s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
}
