package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cassiomorais/bookings/internal/domain/audit"
	domainBooking "github.com/cassiomorais/bookings/internal/domain/booking"
	domainErrors "github.com/cassiomorais/bookings/internal/domain/errors"
	"github.com/cassiomorais/bookings/internal/domain/hold"
	"github.com/cassiomorais/bookings/internal/domain/slot"
	"github.com/cassiomorais/bookings/internal/infrastructure/observability"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cassiomorais/bookings/internal/application/booking"

// Event topics written to the outbox.
const (
	TopicBookingConfirmed     = "booking.confirmed"
	TopicBookingCancelled     = "booking.cancelled"
	TopicBookingStatusChanged = "booking.status_changed"
)

// Config holds the service tunables.
type Config struct {
	HoldTTL        time.Duration
	ConfirmedTopic string
}

// DefaultConfig returns a ten minute hold TTL.
func DefaultConfig() Config {
	return Config{HoldTTL: 10 * time.Minute, ConfirmedTopic: TopicBookingConfirmed}
}

// HoldRequest asks for a table slot to be held.
type HoldRequest struct {
	ClubID      int64     `validate:"gt=0"`
	TableID     int64     `validate:"gt=0"`
	SlotStart   time.Time `validate:"required"`
	SlotEnd     time.Time `validate:"required,gtfield=SlotStart"`
	GuestsCount int       `validate:"gt=0,lte=100"`
}

// Service orchestrates holds, confirmations and finalization.
type Service struct {
	holds    hold.Repository
	bookings domainBooking.Repository
	outbox   OutboxWriter
	audit    audit.Repository
	promo    PromoAttributor
	tx       TransactionManager
	cfg      Config
	validate *validator.Validate
	logger   zerolog.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
	now      func() time.Time
}

// NewService creates a new Service. promo and metrics may be nil.
func NewService(
	holds hold.Repository,
	bookings domainBooking.Repository,
	outbox OutboxWriter,
	auditRepo audit.Repository,
	promo PromoAttributor,
	tx TransactionManager,
	cfg Config,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *Service {
	logger = logger.With().Str("component", "booking_service").Logger()
	if promo == nil {
		promo = NopPromoAttributor{Logger: logger}
	}
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = DefaultConfig().HoldTTL
	}
	if cfg.ConfirmedTopic == "" {
		cfg.ConfirmedTopic = TopicBookingConfirmed
	}
	return &Service{
		holds:    holds,
		bookings: bookings,
		outbox:   outbox,
		audit:    auditRepo,
		promo:    promo,
		tx:       tx,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		metrics:  metrics,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

// WithClock replaces the time source used to judge replayed holds; it should
// match the hold store's clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Hold places a hold on a table slot. Replaying the same request with the
// same key returns the original hold.
func (s *Service) Hold(ctx context.Context, req HoldRequest, idemKey string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Hold", trace.WithAttributes(
		attribute.Int64("club_id", req.ClubID),
		attribute.Int64("table_id", req.TableID),
	))
	defer span.End()
	start := time.Now()

	res, err := s.hold(ctx, req, idemKey)
	s.observe(span, "hold", start, res, err)
	if err != nil {
		s.logFailure(ctx, err, "hold", map[string]string{
			"table_id":        strconv.FormatInt(req.TableID, 10),
			"idempotency_key": idemKey,
		})
	}
	s.record(ctx, "booking.hold", "table:"+strconv.FormatInt(req.TableID, 10), &req.ClubID, nil, res, err, map[string]any{
		"idempotency_key": idemKey,
		"slot_start":      req.SlotStart.UTC().Format(time.RFC3339),
		"slot_end":        req.SlotEnd.UTC().Format(time.RFC3339),
		"guests_count":    req.GuestsCount,
	})
	return res, err
}

func (s *Service) hold(ctx context.Context, req HoldRequest, idemKey string) (Result, error) {
	if err := s.validateHold(req, idemKey); err != nil {
		return Result{}, err
	}
	sl, err := slot.New(req.ClubID, req.TableID, req.SlotStart, req.SlotEnd)
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.holds.GetByIdempotencyKey(ctx, idemKey)
		switch {
		case err == nil:
			res = replayHold(existing, sl, req.GuestsCount, s.now())
			return nil
		case !errors.Is(err, domainErrors.ErrHoldNotFound):
			return err
		}

		active, err := s.bookings.ExistsActiveFor(ctx, sl)
		if err != nil {
			return err
		}
		if active {
			res = result(DuplicateActiveBooking, uuid.Nil)
			return nil
		}

		h, err := s.holds.Create(ctx, hold.NewHold{
			Slot:           sl,
			GuestsCount:    req.GuestsCount,
			TTL:            s.cfg.HoldTTL,
			IdempotencyKey: idemKey,
		})
		switch {
		case err == nil:
			res = result(HoldCreated, h.ID)
		case errors.Is(err, domainErrors.ErrActiveHoldExists):
			res = result(ActiveHoldExists, uuid.Nil)
		case errors.Is(err, domainErrors.ErrIdempotencyConflict):
			res = result(IdempotencyConflict, uuid.Nil)
		case errors.Is(err, domainErrors.ErrTableNotFound):
			res = result(NotFound, uuid.Nil)
		default:
			return err
		}
		return nil
	})
	return res, err
}

// replayHold answers a retried hold request. A matching hold that expired but
// has not been swept yet is reported as expired; its id is no longer usable.
func replayHold(existing *hold.Hold, requested slot.Slot, guestsCount int, now time.Time) Result {
	switch {
	case !existing.Matches(requested, guestsCount):
		return result(IdempotencyConflict, uuid.Nil)
	case existing.IsExpired(now):
		return result(HoldExpired, existing.ID)
	default:
		return result(HoldCreated, existing.ID)
	}
}

// Confirm turns a hold into a booking. The hold is consumed whatever the
// outcome; replaying the same key returns the booking it created.
func (s *Service) Confirm(ctx context.Context, holdID uuid.UUID, idemKey string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Confirm", trace.WithAttributes(
		attribute.String("hold_id", holdID.String()),
	))
	defer span.End()
	start := time.Now()

	res, clubID, err := s.confirm(ctx, holdID, idemKey)
	s.observe(span, "confirm", start, res, err)
	if err != nil {
		s.logFailure(ctx, err, "confirm", map[string]string{
			"hold_id":         holdID.String(),
			"idempotency_key": idemKey,
		})
	}
	s.record(ctx, "booking.confirm", "hold:"+holdID.String(), clubID, nil, res, err, map[string]any{
		"idempotency_key": idemKey,
	})
	return res, err
}

func (s *Service) confirm(ctx context.Context, holdID uuid.UUID, idemKey string) (Result, *int64, error) {
	if strings.TrimSpace(idemKey) == "" {
		return Result{}, nil, domainErrors.NewValidationError("idempotency_key", "cannot be empty")
	}

	var (
		res    Result
		clubID *int64
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		clubID = nil

		existing, err := s.bookings.GetByIdempotencyKey(ctx, idemKey)
		switch {
		case err == nil:
			clubID = &existing.ClubID
			res = result(AlreadyBooked, existing.ID)
			return nil
		case !errors.Is(err, domainErrors.ErrBookingNotFound):
			return err
		}

		h, err := s.holds.Consume(ctx, holdID)
		switch {
		case errors.Is(err, domainErrors.ErrHoldNotFound):
			res = result(NotFound, uuid.Nil)
			return nil
		case errors.Is(err, domainErrors.ErrHoldExpired):
			res = result(HoldExpired, holdID)
			return nil
		case err != nil:
			return err
		}
		clubID = &h.ClubID

		active, err := s.bookings.ExistsActiveFor(ctx, h.Slot())
		if err != nil {
			return err
		}
		if active {
			res = result(DuplicateActiveBooking, uuid.Nil)
			return nil
		}

		b, err := s.bookings.CreateBooked(ctx, domainBooking.NewBooking{
			Slot:           h.Slot(),
			GuestsCount:    h.GuestsCount,
			MinRate:        h.MinDeposit,
			IdempotencyKey: idemKey,
		})
		switch {
		case err == nil:
			res = result(Booked, b.ID)
		case errors.Is(err, domainErrors.ErrIdempotencyConflict):
			res = result(IdempotencyConflict, uuid.Nil)
		case errors.Is(err, domainErrors.ErrDuplicateActiveBooking):
			res = result(DuplicateActiveBooking, uuid.Nil)
		case errors.Is(err, domainErrors.ErrTableNotFound):
			res = result(NotFound, uuid.Nil)
		default:
			return err
		}
		return nil
	})
	return res, clubID, err
}

// Finalize publishes the booking.confirmed event for a booking and hands it
// to promo attribution. Promo failures are logged and ignored.
func (s *Service) Finalize(ctx context.Context, bookingID uuid.UUID, actorID *string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Finalize", trace.WithAttributes(
		attribute.String("booking_id", bookingID.String()),
	))
	defer span.End()
	start := time.Now()

	res, clubID, err := s.finalize(ctx, bookingID, actorID)
	s.observe(span, "finalize", start, res, err)
	if err != nil {
		s.logFailure(ctx, err, "finalize", map[string]string{"booking_id": bookingID.String()})
	}
	s.record(ctx, "booking.finalize", "booking:"+bookingID.String(), clubID, actorID, res, err, map[string]any{
		"topic": s.cfg.ConfirmedTopic,
	})
	return res, err
}

func (s *Service) finalize(ctx context.Context, bookingID uuid.UUID, actorID *string) (Result, *int64, error) {
	b, err := s.bookings.GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrBookingNotFound) {
			return result(NotFound, uuid.Nil), nil, nil
		}
		return Result{}, nil, err
	}

	if err := s.promo.AttachPending(ctx, b.ID, actorID); err != nil {
		s.logger.Warn().Err(err).Str("booking_id", b.ID.String()).Msg("Promo attribution failed")
	}

	topic := s.cfg.ConfirmedTopic
	dedupKey := topic + ":" + b.ID.String()
	if _, err := s.outbox.Enqueue(ctx, topic, bookingPayload(b, dedupKey), &dedupKey); err != nil {
		return Result{}, &b.ClubID, fmt.Errorf("enqueue %s: %w", topic, err)
	}
	s.countEnqueued(topic)

	return result(Booked, b.ID), &b.ClubID, nil
}

// ChangeStatus moves a booking forward (seat, complete, cancel, no-show) and
// enqueues the matching event in the same transaction.
func (s *Service) ChangeStatus(ctx context.Context, bookingID uuid.UUID, status domainBooking.Status, actorID *string) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "booking.ChangeStatus", trace.WithAttributes(
		attribute.String("booking_id", bookingID.String()),
		attribute.String("status", string(status)),
	))
	defer span.End()
	start := time.Now()

	res, clubID, err := s.changeStatus(ctx, bookingID, status)
	s.observe(span, "change_status", start, res, err)
	if err != nil && !errors.Is(err, domainErrors.ErrInvalidStateTransition) {
		s.logFailure(ctx, err, "change_status", map[string]string{
			"booking_id": bookingID.String(),
			"status":     string(status),
		})
	}
	s.record(ctx, "booking.change_status", "booking:"+bookingID.String(), clubID, actorID, res, err, map[string]any{
		"status": string(status),
	})
	return res, err
}

func (s *Service) changeStatus(ctx context.Context, bookingID uuid.UUID, status domainBooking.Status) (Result, *int64, error) {
	if !status.Valid() {
		return Result{}, nil, domainErrors.NewValidationError("status", "unknown booking status "+string(status))
	}

	topic := TopicBookingStatusChanged
	if status == domainBooking.StatusCancelled {
		topic = TopicBookingCancelled
	}

	var (
		res    Result
		clubID *int64
	)
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		b, err := s.bookings.SetStatus(ctx, bookingID, status)
		if err != nil {
			if errors.Is(err, domainErrors.ErrBookingNotFound) {
				res = result(NotFound, uuid.Nil)
				return nil
			}
			return err
		}
		clubID = &b.ClubID

		dedupKey := topic + ":" + b.ID.String() + ":" + string(b.Status)
		payload := bookingPayload(b, dedupKey)
		if _, err := s.outbox.Enqueue(ctx, topic, payload, &dedupKey); err != nil {
			return fmt.Errorf("enqueue %s: %w", topic, err)
		}
		res = result(StatusChanged, b.ID)
		return nil
	})
	if err == nil && res.Kind == StatusChanged {
		s.countEnqueued(topic)
	}
	return res, clubID, err
}

// ProlongHold extends a live hold by ttl, or the configured hold TTL when ttl
// is not positive.
func (s *Service) ProlongHold(ctx context.Context, holdID uuid.UUID, ttl time.Duration) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "booking.ProlongHold", trace.WithAttributes(
		attribute.String("hold_id", holdID.String()),
	))
	defer span.End()
	start := time.Now()

	if ttl <= 0 {
		ttl = s.cfg.HoldTTL
	}

	var res Result
	h, err := s.holds.Prolong(ctx, holdID, ttl)
	switch {
	case err == nil:
		res = result(HoldCreated, h.ID)
	case errors.Is(err, domainErrors.ErrHoldNotFound):
		res, err = result(NotFound, uuid.Nil), nil
	case errors.Is(err, domainErrors.ErrHoldExpired):
		res, err = result(HoldExpired, holdID), nil
	default:
		s.logFailure(ctx, err, "prolong_hold", map[string]string{"hold_id": holdID.String()})
	}
	s.observe(span, "prolong_hold", start, res, err)
	return res, err
}

// FindHold returns a hold by ID.
func (s *Service) FindHold(ctx context.Context, holdID uuid.UUID) (*hold.Hold, error) {
	return s.holds.GetByID(ctx, holdID)
}

// FindBooking returns a booking by ID.
func (s *Service) FindBooking(ctx context.Context, bookingID uuid.UUID) (*domainBooking.Booking, error) {
	return s.bookings.GetByID(ctx, bookingID)
}

func bookingPayload(b *domainBooking.Booking, dedupKey string) map[string]any {
	return map[string]any{
		"booking_id":   b.ID.String(),
		"club_id":      b.ClubID,
		"table_id":     b.TableID,
		"table_number": b.TableNumber,
		"event_id":     b.EventID,
		"guests_count": b.GuestsCount,
		"status":       string(b.Status),
		"slot_start":   b.SlotStart.UTC().Format(time.RFC3339),
		"slot_end":     b.SlotEnd.UTC().Format(time.RFC3339),
		"dedup_key":    dedupKey,
	}
}

func (s *Service) validateHold(req HoldRequest, idemKey string) error {
	if strings.TrimSpace(idemKey) == "" {
		return domainErrors.NewValidationError("idempotency_key", "cannot be empty")
	}
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return domainErrors.NewValidationError(verrs[0].Field(), "failed '"+verrs[0].Tag()+"' check")
		}
		return fmt.Errorf("%w: %w", domainErrors.ErrInvalidInput, err)
	}
	return nil
}

func (s *Service) observe(span trace.Span, command string, start time.Time, res Result, err error) {
	outcome := string(res.Kind)
	switch {
	case errors.Is(err, domainErrors.ErrValidationFailed):
		outcome = "INVALID"
		span.SetStatus(codes.Error, err.Error())
	case err != nil:
		outcome = "ERROR"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	default:
		span.SetAttributes(attribute.String("result", outcome))
		if res.ID != uuid.Nil {
			span.SetAttributes(attribute.String("result_id", res.ID.String()))
		}
	}

	if s.metrics != nil {
		s.metrics.BookingCommandsTotal.WithLabelValues(command, outcome).Inc()
		s.metrics.BookingCommandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	}
}

func (s *Service) countEnqueued(topic string) {
	if s.metrics != nil {
		s.metrics.OutboxEnqueued.WithLabelValues(topic).Inc()
	}
}

func (s *Service) logFailure(ctx context.Context, err error, operation string, ids map[string]string) {
	if errors.Is(err, domainErrors.ErrValidationFailed) {
		return
	}
	ev := s.logger.Error().Ctx(ctx).Err(err).Str("operation", operation)
	for k, v := range ids {
		ev = ev.Str(k, v)
	}
	ev.Msg("Booking command failed")
}

// record writes the audit entry for a command. Audit failures never change
// the command's outcome.
func (s *Service) record(ctx context.Context, action, resource string, clubID *int64, actorID *string, res Result, err error, meta map[string]any) {
	if s.audit == nil {
		return
	}

	actor := ActorFromContext(ctx)
	if actorID != nil {
		actor.UserID = actorID
	}

	outcome := audit.OutcomeSuccess
	switch {
	case err != nil:
		outcome = audit.OutcomeError
		meta["error"] = err.Error()
	case !res.Succeeded():
		outcome = audit.OutcomeRejected
	}
	if res.Kind != "" {
		meta["result"] = string(res.Kind)
	}
	if res.ID != uuid.Nil {
		meta["result_id"] = res.ID.String()
	}

	entry := audit.Entry{
		UserID:    actor.UserID,
		Action:    action,
		Resource:  resource,
		ClubID:    clubID,
		Outcome:   outcome,
		IP:        actor.IP,
		Meta:      meta,
		CreatedAt: time.Now().UTC(),
	}
	if logErr := s.audit.Log(context.WithoutCancel(ctx), entry); logErr != nil {
		s.logger.Warn().Err(logErr).Str("action", action).Str("resource", resource).Msg("Audit log write failed")
	}
}
