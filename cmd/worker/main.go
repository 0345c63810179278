package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	bookingApp "github.com/cassiomorais/bookings/internal/application/booking"
	outboxApp "github.com/cassiomorais/bookings/internal/application/outbox"
	"github.com/cassiomorais/bookings/internal/bootstrap"
	"github.com/cassiomorais/bookings/internal/domain/outbox"
	infraRedis "github.com/cassiomorais/bookings/internal/infrastructure/redis"
	"github.com/cassiomorais/bookings/internal/infrastructure/transport"
	"github.com/cassiomorais/bookings/internal/repository/postgres"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "bookings-worker", "bookings_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config
	workerCfg := cfg.Worker

	// --- Repositories ---
	holdRepo := postgres.NewHoldRepository(app.Pool, app.TxManager)
	outboxRepo := postgres.NewOutboxRepository(app.Pool, app.TxManager, outbox.BackoffPolicy{
		Base:   cfg.Outbox.BackoffBase,
		Max:    cfg.Outbox.BackoffMax,
		Jitter: cfg.Outbox.BackoffJitter,
	}, cfg.Outbox.LeaseDuration)

	// --- Transport: Redis streams behind a circuit breaker ---
	sender := transport.NewBreakerSender(
		infraRedis.NewStreamSender(app.Redis, cfg.Redis.StreamPrefix, cfg.Redis.StreamMaxLen),
		transport.BreakerConfig{
			Name:           "redis-streams",
			MaxFailures:    workerCfg.BreakerMaxFailures,
			OpenTimeout:    workerCfg.BreakerOpenTimeout,
			HalfOpenProbes: workerCfg.BreakerHalfOpenProbes,
		},
		app.Logger,
		app.Metrics,
	)

	// Sweeps never overlap across instances; a crashed holder blocks others for at most one interval.
	sweepLock := infraRedis.NewDistributedLock(app.Redis, "bookings:sweep-expired-holds", workerCfg.SweepInterval)
	sweeper := bookingApp.NewExpirySweeper(holdRepo, workerCfg.SweepInterval, app.Logger, app.Metrics).WithLock(sweepLock)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Outbox workers. Leases and SKIP LOCKED keep their batches disjoint.
	for i := range workerCfg.Concurrency {
		worker := outboxApp.NewWorker(outboxRepo, sender, outboxApp.Config{
			BatchSize:    workerCfg.BatchSize,
			IdleInterval: workerCfg.IdleInterval,
			MaxAttempts:  cfg.Outbox.MaxAttempts,
		}, app.Logger.With().Int("worker", i).Logger(), app.Metrics)
		g.Go(func() error {
			return worker.Run(gCtx)
		})
	}

	// 2. Expired hold sweeper.
	g.Go(func() error {
		return sweeper.Run(gCtx)
	})

	// 3. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	app.Logger.Info().
		Int("concurrency", workerCfg.Concurrency).
		Int("batch_size", workerCfg.BatchSize).
		Str("stream_prefix", cfg.Redis.StreamPrefix).
		Msg("Worker started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
