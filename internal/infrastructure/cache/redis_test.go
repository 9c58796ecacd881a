package cache

import (
	"context"
	"testing"
	"time"

	"mallledger/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyStore(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	store := NewIdempotencyStore(client, 24*time.Hour)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Put(ctx, "req-1", "ORD001"))
	require.NoError(t, store.Put(ctx, "req-1", "ORD002"))

	orderNo, found, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ORD001", orderNo)

	mr.FastForward(25 * time.Hour)
	_, found, err = store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIdempotencyStoreUnavailable(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	store := NewIdempotencyStore(client, time.Hour)
	mr.Close()

	_, _, err := store.Get(context.Background(), "req-1")
	assert.Error(t, err)
}
