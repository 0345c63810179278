package hold

import (
	"testing"
	"time"

	"github.com/cassiomorais/bookings/internal/domain/slot"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newTestHold(expiresAt time.Time) *Hold {
	start := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	return &Hold{
		ID:          uuid.New(),
		ClubID:      1,
		TableID:     5,
		SlotStart:   start,
		SlotEnd:     start.Add(3 * time.Hour),
		GuestsCount: 2,
		ExpiresAt:   expiresAt,
	}
}

func TestHold_IsExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt time.Time
		expected  bool
	}{
		{"in the future", now.Add(time.Second), false},
		{"exactly now", now, true},
		{"in the past", now.Add(-time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, newTestHold(tt.expiresAt).IsExpired(now))
		})
	}
}

func TestHold_Matches(t *testing.T) {
	h := newTestHold(time.Now().Add(time.Minute))
	same := h.Slot()

	otherTable := same
	otherTable.TableID = 6

	otherEnd := same
	otherEnd.End = same.End.Add(time.Hour)

	otherClub := same
	otherClub.ClubID = 2

	assert.True(t, h.Matches(same, 2))
	assert.False(t, h.Matches(same, 3))
	assert.False(t, h.Matches(otherTable, 2))
	assert.False(t, h.Matches(otherEnd, 2))
	assert.False(t, h.Matches(otherClub, 2))
}

func TestHold_SlotRoundTrip(t *testing.T) {
	h := newTestHold(time.Now())
	s := h.Slot()

	assert.Equal(t, slot.Slot{ClubID: 1, TableID: 5, Start: h.SlotStart, End: h.SlotEnd}, s)
}
