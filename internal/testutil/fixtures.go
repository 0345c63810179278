package testutil

import (
	"time"

	"github.com/cassiomorais/bookings/internal/domain/booking"
	"github.com/cassiomorais/bookings/internal/domain/slot"
	"github.com/google/uuid"
)

// Reference data shared by the booking tests.
const (
	TestClubID      int64 = 1
	TestTableID     int64 = 5
	TestTableNumber       = 12
	TestMinDeposit  int64 = 150_00
)

// TestStart is the instant the shared test clock starts at.
var TestStart = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// NewTestTables returns a single-table reference set.
func NewTestTables() Tables {
	return Tables{
		TestTableID: {ClubID: TestClubID, Number: TestTableNumber, MinDeposit: TestMinDeposit},
	}
}

// NewTestSlot returns an evening slot on the shared test table, dayOffset
// days after TestStart.
func NewTestSlot(dayOffset int) slot.Slot {
	start := time.Date(2026, 5, 1+dayOffset, 20, 0, 0, 0, time.UTC)
	return slot.Slot{ClubID: TestClubID, TableID: TestTableID, Start: start, End: start.Add(3 * time.Hour)}
}

func NewTestBooking(s slot.Slot, status booking.Status) *booking.Booking {
	now := time.Now().UTC()
	return &booking.Booking{
		ID:             uuid.New(),
		ClubID:         s.ClubID,
		TableID:        s.TableID,
		EventID:        1,
		TableNumber:    TestTableNumber,
		GuestsCount:    4,
		MinRate:        TestMinDeposit,
		TotalRate:      TestMinDeposit,
		SlotStart:      s.Start,
		SlotEnd:        s.End,
		Status:         status,
		QRSecret:       uuid.NewString(),
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func StringPtr(s string) *string {
	return &s
}
