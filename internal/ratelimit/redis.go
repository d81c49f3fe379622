package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// recordScript prunes, counts and conditionally appends in one round trip.
// Scores are Unix milliseconds; the key expires one window after the last
// admitted request.
var recordScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count >= capacity then
  return {0, count}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, count + 1}
`)

// RedisStore is a WindowStore backed by one sorted set per client, letting
// several proxy replicas share the same windows.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisOption func(*RedisStore)

// WithKeyPrefix sets the key namespace, "recipeproxy:ratelimit" by default.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

// NewRedisStore wraps an existing client. Close closes the client.
func NewRedisStore(rdb redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "recipeproxy:ratelimit",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(client string) string {
	return s.prefix + ":" + client
}

// Record implements WindowStore.
func (s *RedisStore) Record(ctx context.Context, key string, now time.Time, window time.Duration, capacity int) (bool, int, error) {
	res, err := recordScript.Run(ctx, s.rdb,
		[]string{s.key(key)},
		now.UnixMilli(),
		window.Milliseconds(),
		capacity,
		strconv.FormatInt(now.UnixMilli(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("redis window record: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("redis window record: unexpected reply length %d", len(res))
	}
	return res[0] == 1, int(res[1]), nil
}

// Occupancy implements WindowStore by scanning the key namespace.
func (s *RedisStore) Occupancy(ctx context.Context, since time.Time) (int, int64, error) {
	var keys []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, 0, fmt.Errorf("redis window scan: %w", err)
	}
	if len(keys) == 0 {
		return 0, 0, nil
	}

	lower := "(" + strconv.FormatInt(since.UnixMilli(), 10)
	pipe := s.rdb.Pipeline()
	counts := make([]*redis.IntCmd, len(keys))
	for i, k := range keys {
		counts[i] = pipe.ZCount(ctx, k, lower, "+inf")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, fmt.Errorf("redis window count: %w", err)
	}

	var clients int
	var requests int64
	for _, c := range counts {
		if n := c.Val(); n > 0 {
			clients++
			requests += n
		}
	}
	return clients, requests, nil
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
