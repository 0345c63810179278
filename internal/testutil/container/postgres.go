package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer wraps the testcontainers PostgreSQL container with a pool
type PostgresContainer struct {
	Container        *tcpostgres.PostgresContainer
	Pool             *pgxpool.Pool
	ConnectionString string
}

// PostgresContainerOption configures the PostgreSQL container
type PostgresContainerOption func(*postgresContainerOptions)

type postgresContainerOptions struct {
	image          string
	migrationsPath string
}

// WithImage sets the PostgreSQL image to use
func WithImage(image string) PostgresContainerOption {
	return func(o *postgresContainerOptions) {
		o.image = image
	}
}

// WithMigrations applies the migrations found in path after startup
func WithMigrations(path string) PostgresContainerOption {
	return func(o *postgresContainerOptions) {
		o.migrationsPath = path
	}
}

// StartPostgresContainer starts a PostgreSQL container, applies migrations and
// returns a wrapper with a connected pool
func StartPostgresContainer(ctx context.Context, opts ...PostgresContainerOption) (*PostgresContainer, error) {
	options := &postgresContainerOptions{
		image: "postgres:16-alpine",
	}
	for _, opt := range opts {
		opt(options)
	}

	pgContainer, err := tcpostgres.Run(ctx, options.image,
		tcpostgres.WithDatabase("bookings"),
		tcpostgres.WithUsername("bookings"),
		tcpostgres.WithPassword("bookings"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	connectionString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = testcontainers.TerminateContainer(pgContainer)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	if options.migrationsPath != "" {
		if err := runMigrations(options.migrationsPath, connectionString); err != nil {
			_ = testcontainers.TerminateContainer(pgContainer)
			return nil, err
		}
	}

	pool, err := pgxpool.New(ctx, connectionString)
	if err != nil {
		_ = testcontainers.TerminateContainer(pgContainer)
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		_ = testcontainers.TerminateContainer(pgContainer)
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresContainer{
		Container:        pgContainer,
		Pool:             pool,
		ConnectionString: connectionString,
	}, nil
}

func runMigrations(path, connectionString string) error {
	m, err := migrate.New("file://"+path, connectionString)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Truncate empties the given tables and resets their sequences
func (p *PostgresContainer) Truncate(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := p.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" RESTART IDENTITY CASCADE"); err != nil {
			return fmt.Errorf("failed to truncate %s: %w", table, err)
		}
	}
	return nil
}

// Terminate closes the pool and terminates the container
func (p *PostgresContainer) Terminate(ctx context.Context) error {
	if p.Pool != nil {
		p.Pool.Close()
	}
	if p.Container != nil {
		if err := testcontainers.TerminateContainer(p.Container); err != nil {
			return fmt.Errorf("failed to terminate postgres container: %w", err)
		}
	}
	return nil
}
