package lock

import (
	"context"
	"testing"
	"time"

	"mallledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLockerAcquireAndRelease(t *testing.T) {
	_, client := testutil.NewRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	lease, result, err := locker.Acquire(ctx, OrderLockKey(7), 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, Acquired, result)

	_, result, err = locker.Acquire(ctx, OrderLockKey(7), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, Contended, result)

	_, result, _ = locker.Acquire(ctx, OrderLockKey(8), 5*time.Second)
	assert.Equal(t, Acquired, result, "不同买家互不影响")

	require.NoError(t, lease.Release(ctx))
	_, result, _ = locker.Acquire(ctx, OrderLockKey(7), 5*time.Second)
	assert.Equal(t, Acquired, result)
}

func TestRedisLockerExpires(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	_, result, _ := locker.Acquire(ctx, "k", 5*time.Second)
	require.Equal(t, Acquired, result)

	mr.FastForward(6 * time.Second)
	_, result, _ = locker.Acquire(ctx, "k", 5*time.Second)
	assert.Equal(t, Acquired, result)
}

func TestReleaseDoesNotDeleteOthersLock(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	ctx := context.Background()

	stale := NewDistributedLock(client, "k", "old-holder", time.Second)
	ok, err := stale.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)
	fresh := NewDistributedLock(client, "k", "new-holder", 5*time.Second)
	ok, err = fresh.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, stale.Release(ctx))
	value, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "new-holder", value)
}

func TestRedisLockerUnavailable(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	locker := NewRedisLocker(client)
	mr.Close()

	lease, result, err := locker.Acquire(context.Background(), "k", time.Second)
	assert.Nil(t, lease)
	assert.Equal(t, Unavailable, result)
	assert.Error(t, err)
}

func TestJobMutex(t *testing.T) {
	_, client := testutil.NewRedis(t)
	m := NewJobMutex(client)
	ctx := context.Background()

	unlock, result, err := m.TryLock(ctx, "subsidy", time.Minute)
	require.NoError(t, err)
	require.Equal(t, Acquired, result)

	_, result, _ = m.TryLock(ctx, "subsidy", time.Minute)
	assert.Equal(t, Contended, result)

	unlock()
	_, result, err = m.TryLock(ctx, "subsidy", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, Acquired, result)
}
