package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	bookingApp "github.com/cassiomorais/bookings/internal/application/booking"
	"github.com/cassiomorais/bookings/internal/bootstrap"
	"github.com/cassiomorais/bookings/internal/domain/outbox"
	"github.com/cassiomorais/bookings/internal/interfaces/http/handlers"
	"github.com/cassiomorais/bookings/internal/repository/postgres"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "bookings-api", "bookings")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config

	// --- Repositories ---
	holdRepo := postgres.NewHoldRepository(app.Pool, app.TxManager)
	bookingRepo := postgres.NewBookingRepository(app.Pool, app.TxManager)
	outboxRepo := postgres.NewOutboxRepository(app.Pool, app.TxManager, outbox.BackoffPolicy{
		Base:   cfg.Outbox.BackoffBase,
		Max:    cfg.Outbox.BackoffMax,
		Jitter: cfg.Outbox.BackoffJitter,
	}, cfg.Outbox.LeaseDuration)
	auditRepo := postgres.NewAuditRepository(app.Pool)

	// --- Application services ---
	bookingService := bookingApp.NewService(
		holdRepo,
		bookingRepo,
		outboxRepo,
		auditRepo,
		nil,
		app.TxManager,
		bookingApp.Config{
			HoldTTL:        cfg.Booking.HoldTTL,
			ConfirmedTopic: cfg.Booking.ConfirmedTopic,
		},
		app.Logger,
		app.Metrics,
	)

	// --- Build router ---
	health := handlers.NewHealthHandler().
		With("database", handlers.PingerFunc(app.Pool.Ping)).
		With("redis", handlers.PingerFunc(func(ctx context.Context) error {
			return app.Redis.Ping(ctx).Err()
		}))

	router := handlers.NewRouter(handlers.RouterDeps{
		Service: bookingService,
		Health:  health,
		Metrics: app.Metrics,
		CORS:    cfg.Server.CORS,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
