package testutil

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cassiomorais/bookings/internal/domain/audit"
	"github.com/cassiomorais/bookings/internal/domain/booking"
	domainErrors "github.com/cassiomorais/bookings/internal/domain/errors"
	"github.com/cassiomorais/bookings/internal/domain/hold"
	"github.com/cassiomorais/bookings/internal/domain/outbox"
	"github.com/cassiomorais/bookings/internal/domain/slot"
	"github.com/google/uuid"
)

// --- Clock ---

// Clock is a manually advanced clock shared by the in-memory repositories.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Reference data ---

// Table is the reference row the repositories derive deposits and numbers from.
type Table struct {
	ClubID     int64
	Number     int
	MinDeposit int64
}

// Tables maps table IDs to their reference rows.
type Tables map[int64]Table

func (t Tables) lookup(s slot.Slot) (Table, bool) {
	row, ok := t[s.TableID]
	if !ok || row.ClubID != s.ClubID {
		return Table{}, false
	}
	return row, true
}

// --- Hold Repository Mock ---

// MockHoldRepository is an in-memory hold.Repository that keeps the same
// one-live-hold-per-slot and unique-key rules as the database.
type MockHoldRepository struct {
	mu     sync.Mutex
	holds  map[uuid.UUID]*hold.Hold
	clock  *Clock
	tables Tables

	CreateFunc              func(ctx context.Context, req hold.NewHold) (*hold.Hold, error)
	ConsumeFunc             func(ctx context.Context, id uuid.UUID) (*hold.Hold, error)
	ProlongFunc             func(ctx context.Context, id uuid.UUID, ttl time.Duration) (*hold.Hold, error)
	CleanupExpiredFunc      func(ctx context.Context, now time.Time) (int64, error)
	GetByIDFunc             func(ctx context.Context, id uuid.UUID) (*hold.Hold, error)
	GetByIdempotencyKeyFunc func(ctx context.Context, key string) (*hold.Hold, error)
}

func NewMockHoldRepository(clock *Clock, tables Tables) *MockHoldRepository {
	return &MockHoldRepository{
		holds:  make(map[uuid.UUID]*hold.Hold),
		clock:  clock,
		tables: tables,
	}
}

func (m *MockHoldRepository) Create(ctx context.Context, req hold.NewHold) (*hold.Hold, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	table, ok := m.tables.lookup(req.Slot)
	if !ok {
		return nil, domainErrors.ErrTableNotFound
	}

	now := m.clock.Now()
	for id, h := range m.holds {
		if !h.Slot().SameAs(req.Slot) {
			continue
		}
		if h.IsExpired(now) {
			delete(m.holds, id)
			continue
		}
		return nil, domainErrors.ErrActiveHoldExists
	}
	if req.IdempotencyKey != "" {
		for _, h := range m.holds {
			if h.IdempotencyKey == req.IdempotencyKey {
				return nil, domainErrors.ErrIdempotencyConflict
			}
		}
	}

	h := &hold.Hold{
		ID:             uuid.New(),
		ClubID:         req.Slot.ClubID,
		TableID:        req.Slot.TableID,
		SlotStart:      req.Slot.Start,
		SlotEnd:        req.Slot.End,
		GuestsCount:    req.GuestsCount,
		MinDeposit:     table.MinDeposit,
		ExpiresAt:      now.Add(req.TTL),
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
	}
	m.holds[h.ID] = h
	return copyHold(h), nil
}

func (m *MockHoldRepository) Consume(ctx context.Context, id uuid.UUID) (*hold.Hold, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[id]
	if !ok {
		return nil, domainErrors.ErrHoldNotFound
	}
	delete(m.holds, id)
	if h.IsExpired(m.clock.Now()) {
		return copyHold(h), domainErrors.ErrHoldExpired
	}
	return copyHold(h), nil
}

func (m *MockHoldRepository) Prolong(ctx context.Context, id uuid.UUID, ttl time.Duration) (*hold.Hold, error) {
	if m.ProlongFunc != nil {
		return m.ProlongFunc(ctx, id, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[id]
	if !ok {
		return nil, domainErrors.ErrHoldNotFound
	}
	now := m.clock.Now()
	if h.IsExpired(now) {
		delete(m.holds, id)
		return copyHold(h), domainErrors.ErrHoldExpired
	}
	h.ExpiresAt = now.Add(ttl)
	return copyHold(h), nil
}

func (m *MockHoldRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.CleanupExpiredFunc != nil {
		return m.CleanupExpiredFunc(ctx, now)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, h := range m.holds {
		if h.IsExpired(now) {
			delete(m.holds, id)
			n++
		}
	}
	return n, nil
}

func (m *MockHoldRepository) GetByID(ctx context.Context, id uuid.UUID) (*hold.Hold, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.holds[id]
	if !ok {
		return nil, domainErrors.ErrHoldNotFound
	}
	return copyHold(h), nil
}

func (m *MockHoldRepository) GetByIdempotencyKey(ctx context.Context, key string) (*hold.Hold, error) {
	if m.GetByIdempotencyKeyFunc != nil {
		return m.GetByIdempotencyKeyFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range m.holds {
		if h.IdempotencyKey == key {
			return copyHold(h), nil
		}
	}
	return nil, domainErrors.ErrHoldNotFound
}

// Count returns the number of stored holds, expired or not.
func (m *MockHoldRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.holds)
}

func copyHold(h *hold.Hold) *hold.Hold {
	c := *h
	return &c
}

// --- Booking Repository Mock ---

// MockBookingRepository is an in-memory booking.Repository that keeps the
// unique-key and one-active-booking-per-slot rules of the database.
type MockBookingRepository struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*booking.Booking
	events   map[string]int64
	clock    *Clock
	tables   Tables

	ExistsActiveForFunc     func(ctx context.Context, s slot.Slot) (bool, error)
	CreateBookedFunc        func(ctx context.Context, req booking.NewBooking) (*booking.Booking, error)
	SetStatusFunc           func(ctx context.Context, id uuid.UUID, status booking.Status) (*booking.Booking, error)
	GetByIDFunc             func(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	GetByIdempotencyKeyFunc func(ctx context.Context, key string) (*booking.Booking, error)
}

func NewMockBookingRepository(clock *Clock, tables Tables) *MockBookingRepository {
	return &MockBookingRepository{
		bookings: make(map[uuid.UUID]*booking.Booking),
		events:   make(map[string]int64),
		clock:    clock,
		tables:   tables,
	}
}

// AddBooking stores b as is, bypassing the ledger checks.
func (m *MockBookingRepository) AddBooking(b *booking.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[b.ID] = b
}

func (m *MockBookingRepository) ExistsActiveFor(ctx context.Context, s slot.Slot) (bool, error) {
	if m.ExistsActiveForFunc != nil {
		return m.ExistsActiveForFunc(ctx, s)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.existsActiveLocked(s), nil
}

func (m *MockBookingRepository) existsActiveLocked(s slot.Slot) bool {
	for _, b := range m.bookings {
		if b.IsActive() && b.TableID == s.TableID && b.SlotStart.Equal(s.Start) && b.SlotEnd.Equal(s.End) {
			return true
		}
	}
	return false
}

func (m *MockBookingRepository) CreateBooked(ctx context.Context, req booking.NewBooking) (*booking.Booking, error) {
	if m.CreateBookedFunc != nil {
		return m.CreateBookedFunc(ctx, req)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.bookings {
		if b.IdempotencyKey == req.IdempotencyKey {
			return nil, domainErrors.ErrIdempotencyConflict
		}
	}
	if m.existsActiveLocked(req.Slot) {
		return nil, domainErrors.ErrDuplicateActiveBooking
	}
	table, ok := m.tables.lookup(req.Slot)
	if !ok {
		return nil, domainErrors.ErrTableNotFound
	}

	eventKey := req.Slot.Start.String() + "|" + req.Slot.End.String()
	eventID, ok := m.events[eventKey]
	if !ok {
		eventID = int64(len(m.events) + 1)
		m.events[eventKey] = eventID
	}

	now := m.clock.Now()
	b := &booking.Booking{
		ID:             uuid.New(),
		ClubID:         req.Slot.ClubID,
		TableID:        req.Slot.TableID,
		EventID:        eventID,
		TableNumber:    table.Number,
		GuestsCount:    req.GuestsCount,
		MinRate:        req.MinRate,
		TotalRate:      req.MinRate,
		SlotStart:      req.Slot.Start,
		SlotEnd:        req.Slot.End,
		Status:         booking.StatusBooked,
		QRSecret:       uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.bookings[b.ID] = b
	return copyBooking(b), nil
}

func (m *MockBookingRepository) SetStatus(ctx context.Context, id uuid.UUID, status booking.Status) (*booking.Booking, error) {
	if m.SetStatusFunc != nil {
		return m.SetStatusFunc(ctx, id, status)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, domainErrors.ErrBookingNotFound
	}
	if err := b.TransitionTo(status, m.clock.Now()); err != nil {
		return nil, err
	}
	return copyBooking(b), nil
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bookings[id]
	if !ok {
		return nil, domainErrors.ErrBookingNotFound
	}
	return copyBooking(b), nil
}

func (m *MockBookingRepository) GetByIdempotencyKey(ctx context.Context, key string) (*booking.Booking, error) {
	if m.GetByIdempotencyKeyFunc != nil {
		return m.GetByIdempotencyKeyFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.bookings {
		if b.IdempotencyKey == key {
			return copyBooking(b), nil
		}
	}
	return nil, domainErrors.ErrBookingNotFound
}

// Count returns the number of stored bookings.
func (m *MockBookingRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.bookings)
}

func copyBooking(b *booking.Booking) *booking.Booking {
	c := *b
	return &c
}

// --- Transaction Manager Mock ---

// MockTransactionManager runs units of work one at a time, which stands in
// for serializable isolation in the in-memory tests.
type MockTransactionManager struct {
	mu sync.Mutex

	WithTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.WithTransactionFunc != nil {
		return m.WithTransactionFunc(ctx, fn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

// --- Outbox Repository Mock ---

// MockOutboxRepository is an in-memory outbox.Repository.
type MockOutboxRepository struct {
	mu       sync.Mutex
	messages []*outbox.Message
	nextID   int64
	clock    *Clock
	policy   outbox.BackoffPolicy

	EnqueueFunc              func(ctx context.Context, topic string, payload map[string]any, dedupKey *string) (int64, error)
	PickBatchForSendFunc     func(ctx context.Context, limit int) ([]*outbox.Message, error)
	MarkSentFunc             func(ctx context.Context, id int64) error
	MarkFailedWithRetryFunc  func(ctx context.Context, id int64, reason string) error
	MarkPermanentFailureFunc func(ctx context.Context, id int64, reason string) error
	IsDedupKeySentFunc       func(ctx context.Context, dedupKey string, excludeID int64) (bool, error)
}

func NewMockOutboxRepository(clock *Clock, policy outbox.BackoffPolicy) *MockOutboxRepository {
	return &MockOutboxRepository{clock: clock, policy: policy}
}

func (m *MockOutboxRepository) Enqueue(ctx context.Context, topic string, payload map[string]any, dedupKey *string) (int64, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, topic, payload, dedupKey)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := m.clock.Now()
	m.messages = append(m.messages, &outbox.Message{
		ID:            m.nextID,
		Topic:         topic,
		Payload:       payload,
		DedupKey:      dedupKey,
		Status:        outbox.StatusNew,
		NextAttemptAt: now,
		CreatedAt:     now,
	})
	return m.nextID, nil
}

func (m *MockOutboxRepository) PickBatchForSend(ctx context.Context, limit int) ([]*outbox.Message, error) {
	if m.PickBatchForSendFunc != nil {
		return m.PickBatchForSendFunc(ctx, limit)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var due []*outbox.Message
	for _, msg := range m.messages {
		if msg.Status == outbox.StatusNew && !msg.NextAttemptAt.After(now) {
			c := *msg
			due = append(due, &c)
		}
	}
	slices.SortFunc(due, func(a, b *outbox.Message) int {
		if c := a.NextAttemptAt.Compare(b.NextAttemptAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MockOutboxRepository) MarkSent(ctx context.Context, id int64) error {
	if m.MarkSentFunc != nil {
		return m.MarkSentFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.findLocked(id)
	if !ok {
		return domainErrors.ErrOutboxRecordNotFound
	}
	if msg.Status != outbox.StatusNew {
		return nil
	}
	now := m.clock.Now()
	msg.Status = outbox.StatusSent
	msg.Attempts++
	msg.SentAt = &now
	msg.LastError = nil
	return nil
}

func (m *MockOutboxRepository) MarkFailedWithRetry(ctx context.Context, id int64, reason string) error {
	if m.MarkFailedWithRetryFunc != nil {
		return m.MarkFailedWithRetryFunc(ctx, id, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.findLocked(id)
	if !ok {
		return domainErrors.ErrOutboxRecordNotFound
	}
	if msg.Status != outbox.StatusNew {
		return nil
	}
	msg.Attempts++
	msg.NextAttemptAt = m.policy.NextAttemptAt(m.clock.Now(), msg.Attempts)
	msg.LastError = &reason
	return nil
}

func (m *MockOutboxRepository) MarkPermanentFailure(ctx context.Context, id int64, reason string) error {
	if m.MarkPermanentFailureFunc != nil {
		return m.MarkPermanentFailureFunc(ctx, id, reason)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.findLocked(id)
	if !ok {
		return domainErrors.ErrOutboxRecordNotFound
	}
	if msg.Status != outbox.StatusNew {
		return nil
	}
	msg.Status = outbox.StatusFailed
	msg.Attempts++
	msg.LastError = &reason
	return nil
}

func (m *MockOutboxRepository) IsDedupKeySent(ctx context.Context, dedupKey string, excludeID int64) (bool, error) {
	if m.IsDedupKeySentFunc != nil {
		return m.IsDedupKeySentFunc(ctx, dedupKey, excludeID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range m.messages {
		if msg.ID != excludeID && msg.Status == outbox.StatusSent && msg.DedupKey != nil && *msg.DedupKey == dedupKey {
			return true, nil
		}
	}
	return false, nil
}

// Messages returns a snapshot of every stored message in insertion order.
func (m *MockOutboxRepository) Messages() []outbox.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]outbox.Message, len(m.messages))
	for i, msg := range m.messages {
		out[i] = *msg
	}
	return out
}

// Get returns a snapshot of one message.
func (m *MockOutboxRepository) Get(id int64) (outbox.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.findLocked(id)
	if !ok {
		return outbox.Message{}, false
	}
	return *msg, true
}

func (m *MockOutboxRepository) findLocked(id int64) (*outbox.Message, bool) {
	for _, msg := range m.messages {
		if msg.ID == id {
			return msg, true
		}
	}
	return nil, false
}

// --- Audit Repository Mock ---

// MockAuditRepository records audit entries in memory.
type MockAuditRepository struct {
	mu      sync.Mutex
	entries []audit.Entry

	LogFunc func(ctx context.Context, entry audit.Entry) error
}

func (m *MockAuditRepository) Log(ctx context.Context, entry audit.Entry) error {
	if m.LogFunc != nil {
		return m.LogFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *MockAuditRepository) Entries() []audit.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.entries)
}

// --- Send Port Mock ---

// SentMessage is one call recorded by MockSendPort.
type SentMessage struct {
	Topic   string
	Payload map[string]any
}

// MockSendPort is a mock implementation of outbox.SendPort.
type MockSendPort struct {
	mu    sync.Mutex
	calls []SentMessage

	SendFunc func(ctx context.Context, topic string, payload map[string]any) error
}

func (m *MockSendPort) Send(ctx context.Context, topic string, payload map[string]any) error {
	m.mu.Lock()
	m.calls = append(m.calls, SentMessage{Topic: topic, Payload: payload})
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, topic, payload)
	}
	return nil
}

func (m *MockSendPort) Calls() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}

// --- Promo Attributor Mock ---

// MockPromoAttributor is a mock implementation of the promo attribution port.
type MockPromoAttributor struct {
	mu    sync.Mutex
	calls []uuid.UUID

	AttachPendingFunc func(ctx context.Context, bookingID uuid.UUID, externalUserID *string) error
}

func (m *MockPromoAttributor) AttachPending(ctx context.Context, bookingID uuid.UUID, externalUserID *string) error {
	m.mu.Lock()
	m.calls = append(m.calls, bookingID)
	m.mu.Unlock()
	if m.AttachPendingFunc != nil {
		return m.AttachPendingFunc(ctx, bookingID, externalUserID)
	}
	return nil
}

func (m *MockPromoAttributor) Calls() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.calls)
}
