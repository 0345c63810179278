package redis

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cassiomorais/bookings/internal/domain/outbox"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdder struct {
	args []*redis.XAddArgs
	err  error
}

func (f *fakeAdder) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	f.args = append(f.args, a)
	return redis.NewStringResult("1700000000000-0", f.err)
}

func TestStreamSender_Send(t *testing.T) {
	adder := &fakeAdder{}
	sender := NewStreamSender(adder, "", 1000)
	sender.now = func() time.Time { return time.Unix(1700000000, 0) }

	err := sender.Send(context.Background(), "booking.confirmed", map[string]any{
		"booking_id": "b-1",
		"dedup_key":  "booking.confirmed:b-1",
	})
	require.NoError(t, err)
	require.Len(t, adder.args, 1)

	args := adder.args[0]
	assert.Equal(t, "events:booking.confirmed", args.Stream)
	assert.Equal(t, int64(1000), args.MaxLen)
	assert.True(t, args.Approx)

	values, ok := args.Values.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "booking.confirmed", values["topic"])
	assert.Equal(t, "booking.confirmed:b-1", values["dedup_key"])
	assert.Equal(t, int64(1700000000), values["timestamp"])
	assert.JSONEq(t, `{"booking_id":"b-1","dedup_key":"booking.confirmed:b-1"}`, values["payload"].(string))
}

func TestStreamSender_RedisErrorIsRetryable(t *testing.T) {
	sender := NewStreamSender(&fakeAdder{err: errors.New("connection refused")}, "bus:", 0)

	err := sender.Send(context.Background(), "booking.cancelled", map[string]any{"booking_id": "b-2"})
	require.Error(t, err)
	assert.False(t, outbox.IsPermanent(err))
	assert.Contains(t, err.Error(), "bus:booking.cancelled")
}

func TestStreamSender_PermanentFailures(t *testing.T) {
	adder := &fakeAdder{}
	sender := NewStreamSender(adder, "", 0)

	err := sender.Send(context.Background(), "", map[string]any{})
	assert.True(t, outbox.IsPermanent(err))

	err = sender.Send(context.Background(), "booking.confirmed", map[string]any{"bad": math.NaN()})
	assert.True(t, outbox.IsPermanent(err))

	assert.Empty(t, adder.args)
}
