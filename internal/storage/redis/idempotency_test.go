package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewIdempotencyStore(rdb, time.Hour), mr
}

func TestIdempotencyStore_Lock(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	ok, err := s.TryLock(ctx, "c-1", "k-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryLock(ctx, "c-1", "k-1")
	require.NoError(t, err)
	assert.False(t, ok, "second lock must fail")

	ok, err = s.TryLock(ctx, "c-2", "k-1")
	require.NoError(t, err)
	assert.True(t, ok, "keys are scoped per customer")

	require.NoError(t, s.Release(ctx, "c-1", "k-1"))
	ok, err = s.TryLock(ctx, "c-1", "k-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdempotencyStore_RememberRecall(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	_, found, err := s.Recall(ctx, "c-1", "k-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Remember(ctx, "c-1", "k-1", "order-1"))
	v, found, err := s.Recall(ctx, "c-1", "k-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "order-1", v)

	mr.FastForward(2 * time.Hour)
	_, found, err = s.Recall(ctx, "c-1", "k-1")
	require.NoError(t, err)
	assert.False(t, found, "records expire")
}

func TestIdempotencyStore_Unavailable(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()

	_, err := s.TryLock(context.Background(), "c-1", "k-1")
	assert.Error(t, err)
	_, _, err = s.Recall(context.Background(), "c-1", "k-1")
	assert.Error(t, err)
	assert.Error(t, s.Ping(context.Background()))
}
