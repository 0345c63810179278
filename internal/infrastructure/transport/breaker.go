package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/bookings/internal/domain/outbox"
	"github.com/cassiomorais/bookings/internal/infrastructure/observability"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker in front of a transport.
type BreakerConfig struct {
	Name           string
	MaxFailures    uint32        // consecutive failures that open the breaker
	OpenTimeout    time.Duration // time spent open before probing
	HalfOpenProbes uint32        // requests let through while half-open
	Interval       time.Duration // closed-state counter reset period, 0 keeps counts
}

// BreakerSender guards a SendPort with a circuit breaker. While the breaker
// is open deliveries fail fast with a retryable error, so the outbox backs off
// instead of hammering a dead transport.
type BreakerSender struct {
	next    outbox.SendPort
	cb      *gobreaker.CircuitBreaker[struct{}]
	name    string
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewBreakerSender wraps next. metrics may be nil.
func NewBreakerSender(next outbox.SendPort, cfg BreakerConfig, logger zerolog.Logger, metrics *observability.Metrics) *BreakerSender {
	if cfg.Name == "" {
		cfg.Name = "outbox-transport"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.HalfOpenProbes == 0 {
		cfg.HalfOpenProbes = 1
	}

	s := &BreakerSender{
		next:    next,
		name:    cfg.Name,
		logger:  logger.With().Str("component", "breaker_sender").Str("breaker", cfg.Name).Logger(),
		metrics: metrics,
	}
	s.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenProbes,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		// A rejected message says nothing about the transport's health.
		IsSuccessful: func(err error) bool {
			return err == nil || outbox.IsPermanent(err)
		},
		OnStateChange: s.onStateChange,
	})
	if metrics != nil {
		metrics.CircuitBreakerState.WithLabelValues(cfg.Name).Set(0)
	}
	return s
}

// Send delivers through the wrapped transport unless the breaker is open.
func (s *BreakerSender) Send(ctx context.Context, topic string, payload map[string]any) error {
	_, err := s.cb.Execute(func() (struct{}, error) {
		return struct{}{}, s.next.Send(ctx, topic, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("transport %s unavailable: %w", s.name, err)
	}
	return err
}

// State returns the breaker's current state.
func (s *BreakerSender) State() gobreaker.State {
	return s.cb.State()
}

func (s *BreakerSender) onStateChange(name string, from, to gobreaker.State) {
	s.logger.Warn().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Circuit breaker state changed")
	if s.metrics != nil {
		s.metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
	}
}

func stateValue(st gobreaker.State) float64 {
	switch st {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
