package booking

import (
	"context"
	"time"

	"github.com/cassiomorais/bookings/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// HoldCleaner removes expired holds.
type HoldCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// SweepLock keeps sweepers on different instances from running at once.
type SweepLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// ExpirySweeper periodically deletes expired holds. Expired holds never
// block a slot, so the sweeper only keeps the table small.
type ExpirySweeper struct {
	holds    HoldCleaner
	interval time.Duration
	logger   zerolog.Logger
	metrics  *observability.Metrics
	lock     SweepLock
	now      func() time.Time
}

// NewExpirySweeper creates an ExpirySweeper. metrics may be nil.
func NewExpirySweeper(holds HoldCleaner, interval time.Duration, logger zerolog.Logger, metrics *observability.Metrics) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{
		holds:    holds,
		interval: interval,
		logger:   logger.With().Str("component", "expiry_sweeper").Logger(),
		metrics:  metrics,
		now:      time.Now,
	}
}

// WithClock replaces the time source used to decide expiry.
func (s *ExpirySweeper) WithClock(now func() time.Time) *ExpirySweeper {
	s.now = now
	return s
}

// WithLock makes each sweep conditional on holding l.
func (s *ExpirySweeper) WithLock(l SweepLock) *ExpirySweeper {
	s.lock = l
	return s
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("Expired hold sweep failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce deletes every hold expired at the current instant. It does
// nothing when another instance is sweeping. The lock is released when the
// sweep ends, so it only keeps sweeps from overlapping.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int64, error) {
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			return 0, err
		}
		if !ok {
			s.logger.Debug().Msg("Sweep lock held elsewhere, skipping")
			return 0, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to release sweep lock")
			}
		}()
	}

	n, err := s.holds.CleanupExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int64("deleted", n).Msg("Expired holds removed")
		if s.metrics != nil {
			s.metrics.ExpiredHoldsDeleted.Add(float64(n))
		}
	}
	return n, nil
}
