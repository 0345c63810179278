package postgres

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cassiomorais/bookings/internal/testutil/container"
	"github.com/cassiomorais/bookings/pkg/retry"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testDB is nil when Docker is unavailable or -short is set; integration tests skip then.
var testDB *container.PostgresContainer

func TestMain(m *testing.M) {
	flag.Parse()

	if !testing.Short() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		db, err := container.StartPostgresContainer(ctx, container.WithMigrations("migrations"))
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "postgres container unavailable, skipping integration tests: %v\n", err)
		} else {
			testDB = db
		}
	}

	code := m.Run()

	if testDB != nil {
		_ = testDB.Terminate(context.Background())
	}
	os.Exit(code)
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type integration struct {
	txm   *TxManager
	clock *testClock
	club  int64
	table int64
}

const testMinDeposit int64 = 200_00

// setupIntegration resets the schema and seeds one club with one table.
func setupIntegration(t *testing.T) *integration {
	t.Helper()
	if testDB == nil {
		t.Skip("integration test requires Docker")
	}
	ctx := context.Background()

	require.NoError(t, testDB.Truncate(ctx, "audit_log", "outbox", "bookings", "holds", "events", "club_tables", "clubs"))

	var club, table int64
	require.NoError(t, testDB.Pool.QueryRow(ctx,
		`INSERT INTO clubs (name) VALUES ('Night Owl') RETURNING id`).Scan(&club))
	require.NoError(t, testDB.Pool.QueryRow(ctx,
		`INSERT INTO club_tables (club_id, number, capacity, min_deposit_cents) VALUES ($1, 7, 6, $2) RETURNING id`,
		club, testMinDeposit).Scan(&table))

	cfg := TxConfig{
		IsoLevel: pgx.Serializable,
		Retry: retry.Config{
			MaxAttempts:  10,
			InitialDelay: 5 * time.Millisecond,
			MaxDelay:     50 * time.Millisecond,
			MaxJitter:    5 * time.Millisecond,
		},
	}

	return &integration{
		txm:   NewTxManager(testDB.Pool, cfg, zerolog.Nop(), nil),
		clock: &testClock{now: time.Now().UTC().Truncate(time.Microsecond)},
		club:  club,
		table: table,
	}
}
