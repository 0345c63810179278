package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLockStore emulates SET NX and the release script over a map.
type fakeLockStore struct {
	values map[string]string
	err    error
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: make(map[string]string)}
}

func (f *fakeLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, taken := f.values[key]; taken {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeLockStore) release(keys []string, args []any) *redis.Cmd {
	if f.values[keys[0]] != args[0].(string) {
		return redis.NewCmdResult(int64(0), nil)
	}
	delete(f.values, keys[0])
	return redis.NewCmdResult(int64(1), nil)
}

func (f *fakeLockStore) Eval(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.release(keys, args)
}

func (f *fakeLockStore) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return f.release(keys, args)
}

func (f *fakeLockStore) EvalRO(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeLockStore) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd {
	return f.EvalSha(ctx, sha1, keys, args...)
}

func (f *fakeLockStore) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeLockStore) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestDistributedLock_IsExclusive(t *testing.T) {
	store := newFakeLockStore()
	ctx := context.Background()

	first := NewDistributedLock(store, "sweep:holds", time.Minute)
	second := NewDistributedLock(store, "sweep:holds", time.Minute)
	assert.Equal(t, "lock:sweep:holds", first.Key())

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, first.IsAcquired())

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, second.Release(ctx), "releasing an unheld lock is a no-op")

	require.NoError(t, first.Release(ctx))
	assert.False(t, first.IsAcquired())

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistributedLock_ReleaseAfterLeaseLost(t *testing.T) {
	store := newFakeLockStore()
	ctx := context.Background()

	lock := NewDistributedLock(store, "sweep:holds", time.Minute)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// The lease lapsed and someone else took it.
	store.values[lock.Key()] = "other-owner"

	assert.ErrorIs(t, lock.Release(ctx), ErrLockNotHeld)
	assert.Equal(t, "other-owner", store.values[lock.Key()])
}

func TestDistributedLock_AcquireError(t *testing.T) {
	store := newFakeLockStore()
	store.err = errors.New("connection refused")

	ok, err := NewDistributedLock(store, "sweep:holds", time.Minute).Acquire(context.Background())
	assert.False(t, ok)
	assert.ErrorContains(t, err, "lock:sweep:holds")
}
