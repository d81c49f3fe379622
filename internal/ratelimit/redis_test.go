package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("RECIPE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("RECIPE_TEST_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	store := NewRedisStore(rdb, WithKeyPrefix("test:ratelimit:"+uuid.NewString()+":"))
	require.NoError(t, store.Ping(context.Background()))

	t.Cleanup(func() {
		ctx := context.Background()
		iter := rdb.Scan(ctx, 0, store.prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			rdb.Del(ctx, iter.Val())
		}
		store.Close()
	})
	return store
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	store := NewRedisStore(nil, WithKeyPrefix(":custom:ns:"))
	assert.Equal(t, "custom:ns:10.0.0.1", store.key("10.0.0.1"))

	store = NewRedisStore(nil)
	assert.Equal(t, "recipeproxy:ratelimit:c", store.key("c"))
}

func TestRedisStoreRecord(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	ok, n, err := store.Record(ctx, "c", now, time.Minute, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, n)

	ok, n, err = store.Record(ctx, "c", now.Add(time.Second), time.Minute, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	ok, n, err = store.Record(ctx, "c", now.Add(2*time.Second), time.Minute, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, n)

	ok, _, err = store.Record(ctx, "c", now.Add(time.Minute), time.Minute, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := store.rdb.PTTL(ctx, store.key("c")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestRedisStoreOccupancy(t *testing.T) {
	store := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	store.Record(ctx, "a", now, time.Minute, 10)
	store.Record(ctx, "a", now.Add(time.Second), time.Minute, 10)
	store.Record(ctx, "b", now.Add(2*time.Second), time.Minute, 10)

	clients, requests, err := store.Occupancy(ctx, now.Add(-time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, clients)
	assert.Equal(t, int64(3), requests)

	clients, requests, err = store.Occupancy(ctx, now.Add(1500*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, clients)
	assert.Equal(t, int64(1), requests)
}
