package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/cassiomorais/bookings/internal/infrastructure/config"
	"github.com/cassiomorais/bookings/internal/infrastructure/observability"
	"github.com/cassiomorais/bookings/pkg/retry"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	var (
		direction string
		dbURL     string
		path      string
		steps     int
		attempts  uint
	)

	flag.StringVar(&direction, "direction", "up", "Migration direction: up or down")
	flag.StringVar(&dbURL, "db", "", "Database URL (or set DATABASE_URL env var)")
	flag.StringVar(&path, "path", "internal/repository/postgres/migrations", "Path to migration files")
	flag.IntVar(&steps, "steps", 0, "Apply only this many migrations; 0 applies all")
	flag.UintVar(&attempts, "connect-attempts", 10, "Times to try reaching the database before giving up")
	flag.Parse()

	logger := observability.InitLogger("info", os.Stdout).With().Str("service", "bookings-migrate").Logger()

	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		cfg, err := config.Load()
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load config")
		}
		dbURL = cfg.Database.DatabaseURL()
	}

	// The database container may still be starting when this runs.
	m, err := retry.DoWithResult(context.Background(), retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}, retry.Options{
		OnRetry: func(n uint, err error) {
			logger.Warn().Err(err).Uint("attempt", n+1).Msg("Database not reachable yet")
		},
	}, func() (*migrate.Migrate, error) {
		return migrate.New("file://"+path, dbURL)
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create migrate instance")
	}
	defer m.Close()

	if err := run(m, direction, steps); err != nil {
		logger.Error().Err(err).Str("direction", direction).Msg("Migration failed")
		m.Close()
		os.Exit(1)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		logger.Warn().Err(err).Msg("Could not read schema version")
		return
	}
	logger.Info().Str("direction", direction).Uint("version", version).Bool("dirty", dirty).Msg("Migrations complete")
}

func run(m *migrate.Migrate, direction string, steps int) error {
	var err error
	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return errors.New("unknown direction " + direction + " (use 'up' or 'down')")
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}
