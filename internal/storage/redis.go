package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"recipeproxy/internal/models"

	"github.com/redis/go-redis/v9"
)

const maxMergeAttempts = 10

// RedisStorage stores each recipe as a JSON array of ingredient strings under
// prefix + name. Merges use WATCH/MULTI so concurrent writers never lose
// ingredients.
type RedisStorage struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStorage pings rdb and returns a store owning it. An empty prefix
// stores recipes under their bare names.
func NewRedisStorage(ctx context.Context, rdb redis.UniversalClient, prefix string) (*RedisStorage, error) {
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisStorage{rdb: rdb, prefix: prefix}, nil
}

func (rs *RedisStorage) key(name string) string {
	return rs.prefix + name
}

func (rs *RedisStorage) GetRecipe(ctx context.Context, name string) (*models.Recipe, error) {
	ingredients, err := readIngredients(ctx, rs.rdb, rs.key(name))
	if err != nil {
		return nil, err
	}
	return &models.Recipe{Name: name, Ingredients: ingredients}, nil
}

func (rs *RedisStorage) AddIngredients(ctx context.Context, name string, ingredients []string) (*models.Recipe, int, error) {
	key := rs.key(name)

	var merged []string
	var added int
	txf := func(tx *redis.Tx) error {
		existing, err := readIngredients(ctx, tx, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		merged, added = MergeIngredients(existing, ingredients)

		data, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to encode ingredients: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxMergeAttempts; attempt++ {
		err := rs.rdb.Watch(ctx, txf, key)
		if err == nil {
			return &models.Recipe{Name: name, Ingredients: merged}, added, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, 0, fmt.Errorf("failed to save recipe %s: %w", name, err)
		}
	}
	return nil, 0, fmt.Errorf("failed to save recipe %s: too much contention", name)
}

func (rs *RedisStorage) Ping(ctx context.Context) error {
	return rs.rdb.Ping(ctx).Err()
}

func (rs *RedisStorage) Close() error {
	return rs.rdb.Close()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readIngredients(ctx context.Context, c getter, key string) ([]string, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return decodeIngredients(key, data)
}
