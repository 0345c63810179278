package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cassiomorais/bookings/internal/infrastructure/config"
	"github.com/cassiomorais/bookings/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/bookings/internal/infrastructure/redis"
	"github.com/cassiomorais/bookings/internal/repository/postgres"
	"github.com/cassiomorais/bookings/pkg/retry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Version is stamped at build time with -ldflags "-X ...bootstrap.Version=...".
var Version = "dev"

type App struct {
	Config    *config.Config
	Logger    zerolog.Logger
	Pool      *pgxpool.Pool
	Redis     *redis.Client
	Metrics   *observability.Metrics
	TxManager *postgres.TxManager

	shutdownTracer func(context.Context) error
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("service", serviceName).Str("instance", cfg.InstanceID).Logger()
	logger.Info().Str("version", Version).Msg("Starting")

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.EnableTracing,
		ServiceName: serviceName,
		Version:     Version,
		Endpoint:    cfg.Observability.OTLPEndpoint,
		Insecure:    cfg.Observability.OTLPInsecure,
		SampleRatio: cfg.Observability.SampleRatio,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		shutdownTracer = func(context.Context) error { return nil }
	} else if cfg.Observability.EnableTracing {
		logger.Info().Str("endpoint", cfg.Observability.OTLPEndpoint).Msg("Tracing enabled")
	}

	var metrics *observability.Metrics
	if cfg.Observability.EnableMetrics {
		metrics = observability.NewMetrics(metricsNamespace, nil)
		logger.Info().Msg("Metrics initialized")
	}

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		_ = shutdownTracer(context.Background())
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	redisClient, err := infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		pool.Close()
		_ = shutdownTracer(context.Background())
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	return &App{
		Config:         cfg,
		Logger:         logger,
		Pool:           pool,
		Redis:          redisClient,
		Metrics:        metrics,
		TxManager:      postgres.NewTxManager(pool, TxConfig(cfg.Tx), logger, metrics),
		shutdownTracer: shutdownTracer,
	}, nil
}

// TxConfig translates the tx config section into transaction manager settings.
func TxConfig(c config.TxConfig) postgres.TxConfig {
	return postgres.TxConfig{
		IsoLevel: isoLevel(c.Isolation),
		Retry: retry.Config{
			MaxAttempts:  c.MaxAttempts,
			InitialDelay: c.InitialDelay,
			MaxDelay:     c.MaxDelay,
			MaxJitter:    c.MaxJitter,
		},
		SlowThreshold: c.SlowThreshold,
	}
}

func isoLevel(name string) pgx.TxIsoLevel {
	switch strings.ToLower(name) {
	case "repeatable_read":
		return pgx.RepeatableRead
	case "read_committed":
		return pgx.ReadCommitted
	default:
		return pgx.Serializable
	}
}

func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdownTracer(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Tracer shutdown failed")
	}
	a.Redis.Close()
	a.Pool.Close()
}
