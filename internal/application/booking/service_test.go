package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	bookingApp "github.com/cassiomorais/bookings/internal/application/booking"
	"github.com/cassiomorais/bookings/internal/domain/audit"
	domainBooking "github.com/cassiomorais/bookings/internal/domain/booking"
	domainErrors "github.com/cassiomorais/bookings/internal/domain/errors"
	"github.com/cassiomorais/bookings/internal/domain/hold"
	"github.com/cassiomorais/bookings/internal/domain/outbox"
	"github.com/cassiomorais/bookings/internal/domain/slot"
	"github.com/cassiomorais/bookings/internal/infrastructure/observability"
	"github.com/cassiomorais/bookings/internal/testutil"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const holdTTL = 10 * time.Minute

type fixture struct {
	clock    *testutil.Clock
	holds    *testutil.MockHoldRepository
	bookings *testutil.MockBookingRepository
	outbox   *testutil.MockOutboxRepository
	audit    *testutil.MockAuditRepository
	promo    *testutil.MockPromoAttributor
	tx       *testutil.MockTransactionManager
	metrics  *observability.Metrics
	svc      *bookingApp.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := testutil.NewClock(testutil.TestStart)
	tables := testutil.NewTestTables()
	f := &fixture{
		clock:    clock,
		holds:    testutil.NewMockHoldRepository(clock, tables),
		bookings: testutil.NewMockBookingRepository(clock, tables),
		outbox:   testutil.NewMockOutboxRepository(clock, outbox.DefaultBackoffPolicy()),
		audit:    &testutil.MockAuditRepository{},
		promo:    &testutil.MockPromoAttributor{},
		tx:       testutil.NewMockTransactionManager(),
		metrics:  observability.NewMetrics("test", prometheus.NewRegistry()),
	}
	f.svc = bookingApp.NewService(
		f.holds, f.bookings, f.outbox, f.audit, f.promo, f.tx,
		bookingApp.Config{HoldTTL: holdTTL, ConfirmedTopic: bookingApp.TopicBookingConfirmed},
		zerolog.Nop(), f.metrics,
	).WithClock(clock.Now)
	return f
}

func holdRequest(s slot.Slot, guests int) bookingApp.HoldRequest {
	return bookingApp.HoldRequest{
		ClubID:      s.ClubID,
		TableID:     s.TableID,
		SlotStart:   s.Start,
		SlotEnd:     s.End,
		GuestsCount: guests,
	}
}

// mustHold places a hold and fails the test unless it was created.
func (f *fixture) mustHold(t *testing.T, s slot.Slot, key string) uuid.UUID {
	t.Helper()
	res, err := f.svc.Hold(context.Background(), holdRequest(s, 4), key)
	require.NoError(t, err)
	require.Equal(t, bookingApp.HoldCreated, res.Kind)
	return res.ID
}

func (f *fixture) mustBook(t *testing.T, s slot.Slot) uuid.UUID {
	t.Helper()
	holdID := f.mustHold(t, s, uuid.NewString())
	res, err := f.svc.Confirm(context.Background(), holdID, uuid.NewString())
	require.NoError(t, err)
	require.Equal(t, bookingApp.Booked, res.Kind)
	return res.ID
}

// --- Hold ---

func TestHold_CreatesHold(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)

	res, err := f.svc.Hold(context.Background(), holdRequest(s, 4), "hold-key-1")

	require.NoError(t, err)
	assert.Equal(t, bookingApp.HoldCreated, res.Kind)
	assert.True(t, res.Succeeded())

	h, err := f.svc.FindHold(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestMinDeposit, h.MinDeposit)
	assert.Equal(t, testutil.TestStart.Add(holdTTL), h.ExpiresAt)
	assert.True(t, h.Slot().SameAs(s))

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "booking.hold", entries[0].Action)
	assert.Equal(t, audit.OutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, string(bookingApp.HoldCreated), entries[0].Meta["result"])
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.BookingCommandsTotal.WithLabelValues("hold", "HOLD_CREATED")))
}

func TestHold_ReplaySameKey(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)

	first, err := f.svc.Hold(context.Background(), holdRequest(s, 4), "hold-key-1")
	require.NoError(t, err)

	second, err := f.svc.Hold(context.Background(), holdRequest(s, 4), "hold-key-1")
	require.NoError(t, err)

	assert.Equal(t, bookingApp.HoldCreated, second.Kind)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.holds.Count())
}

func TestHold_SameKeyDifferentRequest(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)
	f.mustHold(t, s, "hold-key-1")

	res, err := f.svc.Hold(context.Background(), holdRequest(s, 6), "hold-key-1")

	require.NoError(t, err)
	assert.Equal(t, bookingApp.IdempotencyConflict, res.Kind)
	assert.Equal(t, uuid.Nil, res.ID)
	assert.Equal(t, audit.OutcomeRejected, f.audit.Entries()[1].Outcome)
}

func TestHold_ReplayAfterExpiry(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)
	first := f.mustHold(t, s, "hold-key-1")

	f.clock.Advance(holdTTL)

	res, err := f.svc.Hold(context.Background(), holdRequest(s, 4), "hold-key-1")
	require.NoError(t, err)
	assert.Equal(t, bookingApp.HoldExpired, res.Kind)
	assert.Equal(t, first, res.ID)

	// The slot is free for a fresh key.
	again, err := f.svc.Hold(context.Background(), holdRequest(s, 4), "hold-key-2")
	require.NoError(t, err)
	assert.Equal(t, bookingApp.HoldCreated, again.Kind)
}

func TestHold_ReplayAfterExpiryWithDifferentRequest(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)
	f.mustHold(t, s, "hold-key-1")

	f.clock.Advance(holdTTL)

	res, err := f.svc.Hold(context.Background(), holdRequest(s, 6), "hold-key-1")
	require.NoError(t, err)
	assert.Equal(t, bookingApp.IdempotencyConflict, res.Kind)
}

func TestHold_SlotAlreadyHeld(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)
	f.mustHold(t, s, "hold-key-1")

	res, err := f.svc.Hold(context.Background(), holdRequest(s, 4), "hold-key-2")

	require.NoError(t, err)
	assert.Equal(t, bookingApp.ActiveHoldExists, res.Kind)
	assert.False(t, res.Succeeded())
}

func TestHold_ExpiredHoldFreesSlot(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)
	first := f.mustHold(t, s, "hold-key-1")

	f.clock.Advance(holdTTL)

	res, err := f.svc.Hold(context.Background(), holdRequest(s, 4), "hold-key-2")
	require.NoError(t, err)
	assert.Equal(t, bookingApp.HoldCreated, res.Kind)
	assert.NotEqual(t, first, res.ID)
	assert.Equal(t, 1, f.holds.Count())
}

func TestHold_ActiveBookingOnSlot(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)
	f.bookings.AddBooking(testutil.NewTestBooking(s, domainBooking.StatusSeated))

	res, err := f.svc.Hold(context.Background(), holdRequest(s, 4), "hold-key-1")

	require.NoError(t, err)
	assert.Equal(t, bookingApp.DuplicateActiveBooking, res.Kind)
	assert.Zero(t, f.holds.Count())
}

func TestHold_InactiveBookingDoesNotBlock(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)
	f.bookings.AddBooking(testutil.NewTestBooking(s, domainBooking.StatusCancelled))

	res, err := f.svc.Hold(context.Background(), holdRequest(s, 4), "hold-key-1")

	require.NoError(t, err)
	assert.Equal(t, bookingApp.HoldCreated, res.Kind)
}

func TestHold_UnknownTable(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)
	s.TableID = 999

	res, err := f.svc.Hold(context.Background(), holdRequest(s, 4), "hold-key-1")

	require.NoError(t, err)
	assert.Equal(t, bookingApp.NotFound, res.Kind)
}

func TestHold_Validation(t *testing.T) {
	s := testutil.NewTestSlot(0)

	tests := []struct {
		name   string
		mutate func(r *bookingApp.HoldRequest)
		key    string
	}{
		{"empty key", func(*bookingApp.HoldRequest) {}, " "},
		{"zero guests", func(r *bookingApp.HoldRequest) { r.GuestsCount = 0 }, "k"},
		{"too many guests", func(r *bookingApp.HoldRequest) { r.GuestsCount = 101 }, "k"},
		{"missing club", func(r *bookingApp.HoldRequest) { r.ClubID = 0 }, "k"},
		{"end before start", func(r *bookingApp.HoldRequest) { r.SlotEnd = r.SlotStart.Add(-time.Hour) }, "k"},
		{"empty range", func(r *bookingApp.HoldRequest) { r.SlotEnd = r.SlotStart }, "k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			req := holdRequest(s, 4)
			tt.mutate(&req)

			_, err := f.svc.Hold(context.Background(), req, tt.key)

			require.ErrorIs(t, err, domainErrors.ErrValidationFailed)
			assert.Zero(t, f.holds.Count())
		})
	}
}

func TestHold_RepositoryErrorPropagates(t *testing.T) {
	f := newFixture(t)
	dbErr := errors.New("connection refused")
	f.holds.CreateFunc = func(context.Context, hold.NewHold) (*hold.Hold, error) {
		return nil, dbErr
	}

	_, err := f.svc.Hold(context.Background(), holdRequest(testutil.NewTestSlot(0), 4), "hold-key-1")

	require.ErrorIs(t, err, dbErr)
	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomeError, entries[0].Outcome)
}

func TestHold_ConcurrentRequestsYieldOneHold(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)

	const n = 20
	results := make([]bookingApp.Result, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Hold(context.Background(), holdRequest(s, 4), uuid.NewString())
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	created := 0
	for _, res := range results {
		switch res.Kind {
		case bookingApp.HoldCreated:
			created++
		case bookingApp.ActiveHoldExists:
		default:
			t.Errorf("unexpected result %s", res.Kind)
		}
	}
	assert.Equal(t, 1, created)
}

// --- Confirm ---

func TestConfirm_CreatesBooking(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)
	holdID := f.mustHold(t, s, "hold-key-1")

	res, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-1")

	require.NoError(t, err)
	assert.Equal(t, bookingApp.Booked, res.Kind)

	b, err := f.svc.FindBooking(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, domainBooking.StatusBooked, b.Status)
	assert.Equal(t, testutil.TestMinDeposit, b.MinRate)
	assert.Equal(t, testutil.TestMinDeposit, b.TotalRate)
	assert.Equal(t, testutil.TestTableNumber, b.TableNumber)
	assert.Equal(t, 4, b.GuestsCount)
	assert.Equal(t, "confirm-key-1", b.IdempotencyKey)
	assert.NotEmpty(t, b.QRSecret)
	assert.True(t, b.Slot().SameAs(s))

	_, err = f.svc.FindHold(context.Background(), holdID)
	assert.ErrorIs(t, err, domainErrors.ErrHoldNotFound)
}

func TestConfirm_ReplaySameKey(t *testing.T) {
	f := newFixture(t)
	holdID := f.mustHold(t, testutil.NewTestSlot(0), "hold-key-1")

	first, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-1")
	require.NoError(t, err)

	second, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-1")
	require.NoError(t, err)

	assert.Equal(t, bookingApp.AlreadyBooked, second.Kind)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Succeeded())
	assert.Equal(t, 1, f.bookings.Count())
}

func TestConfirm_HoldIsSingleUse(t *testing.T) {
	f := newFixture(t)
	holdID := f.mustHold(t, testutil.NewTestSlot(0), "hold-key-1")

	_, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-1")
	require.NoError(t, err)

	res, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-2")
	require.NoError(t, err)
	assert.Equal(t, bookingApp.NotFound, res.Kind)
	assert.Equal(t, 1, f.bookings.Count())
}

func TestConfirm_ExpiredHold(t *testing.T) {
	f := newFixture(t)
	holdID := f.mustHold(t, testutil.NewTestSlot(0), "hold-key-1")

	f.clock.Advance(holdTTL + time.Second)

	res, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-1")

	require.NoError(t, err)
	assert.Equal(t, bookingApp.HoldExpired, res.Kind)
	assert.Equal(t, holdID, res.ID)
	assert.Zero(t, f.bookings.Count())
	assert.Zero(t, f.holds.Count(), "expired hold is consumed")

	again, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-1")
	require.NoError(t, err)
	assert.Equal(t, bookingApp.NotFound, again.Kind)
}

func TestConfirm_ExpiryBoundaryIsExpired(t *testing.T) {
	f := newFixture(t)
	holdID := f.mustHold(t, testutil.NewTestSlot(0), "hold-key-1")

	f.clock.Advance(holdTTL)

	res, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-1")
	require.NoError(t, err)
	assert.Equal(t, bookingApp.HoldExpired, res.Kind)
}

func TestConfirm_UnknownHold(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Confirm(context.Background(), uuid.New(), "confirm-key-1")

	require.NoError(t, err)
	assert.Equal(t, bookingApp.NotFound, res.Kind)
}

func TestConfirm_EmptyKey(t *testing.T) {
	f := newFixture(t)
	holdID := f.mustHold(t, testutil.NewTestSlot(0), "hold-key-1")

	_, err := f.svc.Confirm(context.Background(), holdID, "")

	require.ErrorIs(t, err, domainErrors.ErrValidationFailed)
	assert.Equal(t, 1, f.holds.Count(), "hold survives a rejected request")
}

func TestConfirm_ActiveBookingOnSlot(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)
	holdID := f.mustHold(t, s, "hold-key-1")
	f.bookings.AddBooking(testutil.NewTestBooking(s, domainBooking.StatusBooked))

	res, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-1")

	require.NoError(t, err)
	assert.Equal(t, bookingApp.DuplicateActiveBooking, res.Kind)
	assert.Equal(t, 1, f.bookings.Count())
	assert.Zero(t, f.holds.Count())
}

func TestConfirm_LedgerConflictsMapToResults(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bookingApp.ResultKind
	}{
		{"key taken", domainErrors.ErrIdempotencyConflict, bookingApp.IdempotencyConflict},
		{"slot taken", domainErrors.ErrDuplicateActiveBooking, bookingApp.DuplicateActiveBooking},
		{"table gone", domainErrors.ErrTableNotFound, bookingApp.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			holdID := f.mustHold(t, testutil.NewTestSlot(0), "hold-key-1")
			f.bookings.CreateBookedFunc = func(context.Context, domainBooking.NewBooking) (*domainBooking.Booking, error) {
				return nil, tt.err
			}

			res, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-1")

			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Kind)
		})
	}
}

func TestConfirm_RetryExhaustionIsError(t *testing.T) {
	f := newFixture(t)
	holdID := f.mustHold(t, testutil.NewTestSlot(0), "hold-key-1")
	f.bookings.CreateBookedFunc = func(context.Context, domainBooking.NewBooking) (*domainBooking.Booking, error) {
		return nil, domainErrors.ErrOptimisticRetryExceeded
	}

	_, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-1")

	require.ErrorIs(t, err, domainErrors.ErrOptimisticRetryExceeded)
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.BookingCommandsTotal.WithLabelValues("confirm", "ERROR")))
}

func TestConfirm_ConcurrentSameHoldBooksOnce(t *testing.T) {
	f := newFixture(t)
	holdID := f.mustHold(t, testutil.NewTestSlot(0), "hold-key-1")

	const n = 10
	results := make([]bookingApp.Result, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.Confirm(context.Background(), holdID, "confirm-key-1")
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	booked := 0
	var bookingID uuid.UUID
	for _, res := range results {
		switch res.Kind {
		case bookingApp.Booked:
			booked++
			bookingID = res.ID
		case bookingApp.AlreadyBooked:
		default:
			t.Errorf("unexpected result %s", res.Kind)
		}
	}
	require.Equal(t, 1, booked)
	for _, res := range results {
		assert.Equal(t, bookingID, res.ID)
	}
	assert.Equal(t, 1, f.bookings.Count())
}

func TestConfirm_NoDoubleBookingAcrossSlotReuse(t *testing.T) {
	f := newFixture(t)
	s := testutil.NewTestSlot(0)
	bookingID := f.mustBook(t, s)

	res, err := f.svc.Hold(context.Background(), holdRequest(s, 2), "hold-key-2")
	require.NoError(t, err)
	assert.Equal(t, bookingApp.DuplicateActiveBooking, res.Kind)

	changed, err := f.svc.ChangeStatus(context.Background(), bookingID, domainBooking.StatusCancelled, nil)
	require.NoError(t, err)
	require.Equal(t, bookingApp.StatusChanged, changed.Kind)

	rebooked := f.mustBook(t, s)
	assert.NotEqual(t, bookingID, rebooked)
}

// --- Finalize ---

func TestFinalize_EnqueuesConfirmedEvent(t *testing.T) {
	f := newFixture(t)
	bookingID := f.mustBook(t, testutil.NewTestSlot(0))
	actor := "user-7"

	res, err := f.svc.Finalize(context.Background(), bookingID, &actor)

	require.NoError(t, err)
	assert.Equal(t, bookingApp.Booked, res.Kind)
	assert.Equal(t, bookingID, res.ID)

	msgs := f.outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, bookingApp.TopicBookingConfirmed, msgs[0].Topic)
	assert.Equal(t, outbox.StatusNew, msgs[0].Status)
	require.NotNil(t, msgs[0].DedupKey)
	assert.Equal(t, "booking.confirmed:"+bookingID.String(), *msgs[0].DedupKey)
	assert.Equal(t, bookingID.String(), msgs[0].Payload["booking_id"])
	assert.Equal(t, "BOOKED", msgs[0].Payload["status"])
	assert.Equal(t, *msgs[0].DedupKey, msgs[0].Payload["dedup_key"])

	assert.Equal(t, []uuid.UUID{bookingID}, f.promo.Calls())

	entries := f.audit.Entries()
	last := entries[len(entries)-1]
	assert.Equal(t, "booking.finalize", last.Action)
	require.NotNil(t, last.UserID)
	assert.Equal(t, actor, *last.UserID)
}

func TestFinalize_PromoFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	bookingID := f.mustBook(t, testutil.NewTestSlot(0))
	f.promo.AttachPendingFunc = func(context.Context, uuid.UUID, *string) error {
		return errors.New("promo service unavailable")
	}

	res, err := f.svc.Finalize(context.Background(), bookingID, nil)

	require.NoError(t, err)
	assert.Equal(t, bookingApp.Booked, res.Kind)
	assert.Len(t, f.outbox.Messages(), 1)
}

func TestFinalize_UnknownBooking(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Finalize(context.Background(), uuid.New(), nil)

	require.NoError(t, err)
	assert.Equal(t, bookingApp.NotFound, res.Kind)
	assert.Empty(t, f.outbox.Messages())
	assert.Empty(t, f.promo.Calls())
}

func TestFinalize_EnqueueFailure(t *testing.T) {
	f := newFixture(t)
	bookingID := f.mustBook(t, testutil.NewTestSlot(0))
	f.outbox.EnqueueFunc = func(context.Context, string, map[string]any, *string) (int64, error) {
		return 0, errors.New("disk full")
	}

	_, err := f.svc.Finalize(context.Background(), bookingID, nil)

	require.Error(t, err)
	entries := f.audit.Entries()
	assert.Equal(t, audit.OutcomeError, entries[len(entries)-1].Outcome)
}

func TestFinalize_TwiceEnqueuesSameDedupKey(t *testing.T) {
	f := newFixture(t)
	bookingID := f.mustBook(t, testutil.NewTestSlot(0))

	_, err := f.svc.Finalize(context.Background(), bookingID, nil)
	require.NoError(t, err)
	_, err = f.svc.Finalize(context.Background(), bookingID, nil)
	require.NoError(t, err)

	msgs := f.outbox.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, *msgs[0].DedupKey, *msgs[1].DedupKey)
}

// --- ChangeStatus ---

func TestChangeStatus_Cancel(t *testing.T) {
	f := newFixture(t)
	bookingID := f.mustBook(t, testutil.NewTestSlot(0))

	res, err := f.svc.ChangeStatus(context.Background(), bookingID, domainBooking.StatusCancelled, nil)

	require.NoError(t, err)
	assert.Equal(t, bookingApp.StatusChanged, res.Kind)

	b, err := f.svc.FindBooking(context.Background(), bookingID)
	require.NoError(t, err)
	assert.Equal(t, domainBooking.StatusCancelled, b.Status)

	msgs := f.outbox.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, bookingApp.TopicBookingCancelled, msgs[0].Topic)
	assert.Equal(t, "booking.cancelled:"+bookingID.String()+":CANCELLED", *msgs[0].DedupKey)
}

func TestChangeStatus_SeatThenComplete(t *testing.T) {
	f := newFixture(t)
	bookingID := f.mustBook(t, testutil.NewTestSlot(0))

	for _, status := range []domainBooking.Status{domainBooking.StatusSeated, domainBooking.StatusCompleted} {
		res, err := f.svc.ChangeStatus(context.Background(), bookingID, status, nil)
		require.NoError(t, err)
		assert.Equal(t, bookingApp.StatusChanged, res.Kind)
	}

	msgs := f.outbox.Messages()
	require.Len(t, msgs, 2)
	for _, msg := range msgs {
		assert.Equal(t, bookingApp.TopicBookingStatusChanged, msg.Topic)
	}
}

func TestChangeStatus_InvalidTransition(t *testing.T) {
	f := newFixture(t)
	bookingID := f.mustBook(t, testutil.NewTestSlot(0))

	_, err := f.svc.ChangeStatus(context.Background(), bookingID, domainBooking.StatusCompleted, nil)

	require.ErrorIs(t, err, domainErrors.ErrInvalidStateTransition)
	assert.Empty(t, f.outbox.Messages())
}

func TestChangeStatus_UnknownStatus(t *testing.T) {
	f := newFixture(t)
	bookingID := f.mustBook(t, testutil.NewTestSlot(0))

	_, err := f.svc.ChangeStatus(context.Background(), bookingID, domainBooking.Status("LOST"), nil)

	require.ErrorIs(t, err, domainErrors.ErrValidationFailed)
}

func TestChangeStatus_UnknownBooking(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ChangeStatus(context.Background(), uuid.New(), domainBooking.StatusSeated, nil)

	require.NoError(t, err)
	assert.Equal(t, bookingApp.NotFound, res.Kind)
}

// --- ProlongHold ---

func TestProlongHold(t *testing.T) {
	f := newFixture(t)
	holdID := f.mustHold(t, testutil.NewTestSlot(0), "hold-key-1")
	f.clock.Advance(5 * time.Minute)

	res, err := f.svc.ProlongHold(context.Background(), holdID, 0)

	require.NoError(t, err)
	assert.Equal(t, bookingApp.HoldCreated, res.Kind)
	h, err := f.svc.FindHold(context.Background(), holdID)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(holdTTL), h.ExpiresAt)
}

func TestProlongHold_Expired(t *testing.T) {
	f := newFixture(t)
	holdID := f.mustHold(t, testutil.NewTestSlot(0), "hold-key-1")
	f.clock.Advance(holdTTL)

	res, err := f.svc.ProlongHold(context.Background(), holdID, time.Minute)

	require.NoError(t, err)
	assert.Equal(t, bookingApp.HoldExpired, res.Kind)
	assert.Zero(t, f.holds.Count())
}

func TestProlongHold_Unknown(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ProlongHold(context.Background(), uuid.New(), time.Minute)

	require.NoError(t, err)
	assert.Equal(t, bookingApp.NotFound, res.Kind)
}

// --- Audit ---

func TestAuditFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t)
	f.audit.LogFunc = func(context.Context, audit.Entry) error {
		return errors.New("audit table locked")
	}

	res, err := f.svc.Hold(context.Background(), holdRequest(testutil.NewTestSlot(0), 4), "hold-key-1")

	require.NoError(t, err)
	assert.Equal(t, bookingApp.HoldCreated, res.Kind)
}

func TestAuditRecordsActorFromContext(t *testing.T) {
	f := newFixture(t)
	ctx := bookingApp.WithActor(context.Background(), bookingApp.Actor{
		UserID: testutil.StringPtr("user-1"),
		IP:     testutil.StringPtr("10.0.0.1"),
	})

	_, err := f.svc.Hold(ctx, holdRequest(testutil.NewTestSlot(0), 4), "hold-key-1")
	require.NoError(t, err)

	entries := f.audit.Entries()
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].UserID)
	assert.Equal(t, "user-1", *entries[0].UserID)
	require.NotNil(t, entries[0].IP)
	assert.Equal(t, "10.0.0.1", *entries[0].IP)
	require.NotNil(t, entries[0].ClubID)
	assert.Equal(t, testutil.TestClubID, *entries[0].ClubID)
}
