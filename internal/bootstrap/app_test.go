package bootstrap

import (
	"testing"
	"time"

	"github.com/cassiomorais/bookings/internal/infrastructure/config"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestTxConfig(t *testing.T) {
	got := TxConfig(config.TxConfig{
		Isolation:     "repeatable_read",
		MaxAttempts:   7,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      time.Second,
		MaxJitter:     5 * time.Millisecond,
		SlowThreshold: 250 * time.Millisecond,
	})

	assert.Equal(t, pgx.RepeatableRead, got.IsoLevel)
	assert.Equal(t, uint(7), got.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, got.Retry.InitialDelay)
	assert.Equal(t, time.Second, got.Retry.MaxDelay)
	assert.Equal(t, 5*time.Millisecond, got.Retry.MaxJitter)
	assert.Equal(t, 250*time.Millisecond, got.SlowThreshold)
}

func TestIsoLevel(t *testing.T) {
	assert.Equal(t, pgx.Serializable, isoLevel(""))
	assert.Equal(t, pgx.Serializable, isoLevel("SERIALIZABLE"))
	assert.Equal(t, pgx.RepeatableRead, isoLevel("Repeatable_Read"))
	assert.Equal(t, pgx.ReadCommitted, isoLevel("read_committed"))
}
