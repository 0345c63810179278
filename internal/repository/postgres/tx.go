package postgres

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/bookings/internal/domain/errors"
	"github.com/cassiomorais/bookings/internal/infrastructure/observability"
	"github.com/cassiomorais/bookings/pkg/retry"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ctxKey is an unexported type for context keys in this package.
type ctxKey int

const txKey ctxKey = iota

// DBTX is the common query interface satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TxConfig configures transaction isolation, conflict retries and slow-transaction logging.
type TxConfig struct {
	IsoLevel      pgx.TxIsoLevel
	Retry         retry.Config
	SlowThreshold time.Duration
}

// DefaultTxConfig returns serializable transactions with the default retry budget.
func DefaultTxConfig() TxConfig {
	return TxConfig{
		IsoLevel:      pgx.Serializable,
		Retry:         retry.DefaultConfig(),
		SlowThreshold: 500 * time.Millisecond,
	}
}

// TxManager runs units of work in transactions and retries serialization
// failures and deadlocks with capped, jittered exponential backoff.
type TxManager struct {
	pool    *pgxpool.Pool
	cfg     TxConfig
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewTxManager creates a new transaction manager. metrics may be nil.
func NewTxManager(pool *pgxpool.Pool, cfg TxConfig, logger zerolog.Logger, metrics *observability.Metrics) *TxManager {
	return &TxManager{
		pool:    pool,
		cfg:     cfg,
		logger:  logger.With().Str("component", "tx_manager").Logger(),
		metrics: metrics,
	}
}

// WithTransaction executes fn inside a database transaction.
// The transaction is committed if fn returns nil, rolled back otherwise.
// A call made inside an existing transaction runs in a savepoint of it and is
// not retried on its own; the outermost call owns the retry loop. Exhausted
// retries surface as ErrOptimisticRetryExceeded wrapping the last conflict.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return runNested(ctx, tx, fn)
	}

	attempts := 0
	err := retry.Do(ctx, m.cfg.Retry, retry.Options{
		RetryIf: IsTransient,
		OnRetry: func(n uint, err error) {
			if m.metrics != nil {
				m.metrics.TxRetries.Inc()
			}
			m.logger.Debug().Err(err).Uint("attempt", n+1).Msg("Transaction conflict, retrying")
		},
	}, func() error {
		attempts++
		return m.runOnce(ctx, fn)
	})
	if err != nil && IsTransient(err) {
		if m.metrics != nil {
			m.metrics.TxRetryExhausted.Inc()
		}
		m.logger.Warn().Err(err).Int("attempts", attempts).Msg("Transaction retries exhausted")
		return fmt.Errorf("%w after %d attempts: %w", domainErrors.ErrOptimisticRetryExceeded, attempts, err)
	}
	return err
}

func (m *TxManager) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()

	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: m.cfg.IsoLevel})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed (%v) after error: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	m.observe(time.Since(start))
	return nil
}

// runNested runs fn in a savepoint so that a failed statement inside it does
// not abort the enclosing transaction.
func runNested(ctx context.Context, tx pgx.Tx, fn func(ctx context.Context) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin savepoint: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey, sp)); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback to savepoint failed (%v) after error: %w", rbErr, err)
		}
		return err
	}

	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (m *TxManager) observe(elapsed time.Duration) {
	if m.metrics != nil {
		m.metrics.TxDuration.Observe(elapsed.Seconds())
	}
	if m.cfg.SlowThreshold <= 0 || elapsed <= m.cfg.SlowThreshold {
		return
	}
	if m.metrics != nil {
		m.metrics.TxSlow.Inc()
	}
	m.logger.Warn().
		Dur("elapsed", elapsed).
		Dur("threshold", m.cfg.SlowThreshold).
		Msg("Slow transaction")
}

// ConnFromCtx returns the transaction from context if present, otherwise the pool.
func ConnFromCtx(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx, ok := ctx.Value(txKey).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// outsideTx returns a context whose queries run on the pool even when ctx
// carries a transaction, so they see rows committed by others since it began.
func outsideTx(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey, nil)
}
