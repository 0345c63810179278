package outbox

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	domainOutbox "github.com/cassiomorais/bookings/internal/domain/outbox"
	"github.com/cassiomorais/bookings/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/cassiomorais/bookings/internal/application/outbox"

// maxReasonLen bounds the last_error stored on a message.
const maxReasonLen = 1024

// Delivery outcomes reported on the outbox_delivery_total metric.
const (
	OutcomeSent      = "sent"
	OutcomeDuplicate = "duplicate"
	OutcomeRetry     = "retry"
	OutcomeFailed    = "failed"
	OutcomeExhausted = "exhausted"
)

// Config holds the worker tunables.
type Config struct {
	BatchSize    int
	IdleInterval time.Duration
	// MaxAttempts moves a message to FAILED once this many attempts have
	// failed. Zero retries forever.
	MaxAttempts int
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:    10,
		IdleInterval: 2 * time.Second,
		MaxAttempts:  10,
	}
}

// Worker drains the outbox through a SendPort.
type Worker struct {
	repo    domainOutbox.Repository
	sender  domainOutbox.SendPort
	cfg     Config
	logger  zerolog.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer
}

// NewWorker creates a new Worker. metrics may be nil.
func NewWorker(repo domainOutbox.Repository, sender domainOutbox.SendPort, cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Worker {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = def.IdleInterval
	}
	return &Worker{
		repo:    repo,
		sender:  sender,
		cfg:     cfg,
		logger:  logger.With().Str("component", "outbox_worker").Logger(),
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next poll; an empty batch or a failed poll waits IdleInterval.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().Int("batch_size", w.cfg.BatchSize).Msg("Outbox worker started")
	for {
		if ctx.Err() != nil {
			w.logger.Info().Msg("Outbox worker stopped")
			return nil
		}

		n, err := w.ProcessBatch(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).Msg("Outbox poll failed")
		}
		if err == nil && n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Outbox worker stopped")
			return nil
		case <-time.After(w.cfg.IdleInterval):
		}
	}
}

// ProcessBatch picks one batch of due messages and delivers each of them.
// Deliveries already started are finished even if ctx is cancelled.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	msgs, err := w.repo.PickBatchForSend(ctx, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("pick outbox batch: %w", err)
	}
	if w.metrics != nil {
		w.metrics.OutboxBatchSize.Observe(float64(len(msgs)))
	}

	deliverCtx := context.WithoutCancel(ctx)
	for _, msg := range msgs {
		w.deliver(deliverCtx, msg)
	}
	return len(msgs), nil
}

func (w *Worker) deliver(ctx context.Context, msg *domainOutbox.Message) {
	ctx, span := w.tracer.Start(ctx, "outbox.deliver",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.Int64("outbox.id", msg.ID),
			attribute.String("outbox.topic", msg.Topic),
			attribute.Int("outbox.attempts", msg.Attempts),
		))
	defer span.End()

	log := w.logger.With().Ctx(ctx).Int64("outbox_id", msg.ID).Str("topic", msg.Topic).Logger()

	outcome, err := w.send(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error().Err(err).Str("outcome", outcome).Msg("Failed to record outbox delivery")
	}
	span.SetAttributes(attribute.String("outbox.outcome", outcome))

	switch outcome {
	case OutcomeRetry:
		log.Warn().Int("attempts", msg.Attempts+1).Msg("Outbox delivery failed, will retry")
	case OutcomeFailed, OutcomeExhausted:
		log.Error().Int("attempts", msg.Attempts+1).Str("outcome", outcome).Msg("Outbox message moved to FAILED")
	default:
		log.Debug().Str("outcome", outcome).Msg("Outbox message delivered")
	}

	if w.metrics != nil {
		w.metrics.OutboxDelivered.WithLabelValues(msg.Topic, outcome).Inc()
	}
}

// send delivers msg and records the outcome. The returned error only
// reports a failure to record it.
func (w *Worker) send(ctx context.Context, msg *domainOutbox.Message) (string, error) {
	if msg.DedupKey != nil && *msg.DedupKey != "" {
		sent, err := w.repo.IsDedupKeySent(ctx, *msg.DedupKey, msg.ID)
		if err != nil {
			return OutcomeRetry, w.repo.MarkFailedWithRetry(ctx, msg.ID, truncate("dedup check: "+err.Error()))
		}
		if sent {
			return OutcomeDuplicate, w.repo.MarkSent(ctx, msg.ID)
		}
	}

	sendErr := w.sender.Send(ctx, msg.Topic, msg.Payload)
	switch {
	case sendErr == nil:
		return OutcomeSent, w.repo.MarkSent(ctx, msg.ID)
	case domainOutbox.IsPermanent(sendErr):
		return OutcomeFailed, w.repo.MarkPermanentFailure(ctx, msg.ID, truncate(sendErr.Error()))
	case w.cfg.MaxAttempts > 0 && msg.Attempts+1 >= w.cfg.MaxAttempts:
		return OutcomeExhausted, w.repo.MarkPermanentFailure(ctx, msg.ID, truncate(sendErr.Error()))
	default:
		return OutcomeRetry, w.repo.MarkFailedWithRetry(ctx, msg.ID, truncate(sendErr.Error()))
	}
}

// truncate makes reason storable as TEXT and cuts it to maxReasonLen bytes
// on a character boundary.
func truncate(reason string) string {
	reason = strings.ReplaceAll(strings.ToValidUTF8(reason, "?"), "\x00", "")
	if len(reason) <= maxReasonLen {
		return reason
	}
	n := maxReasonLen
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}
