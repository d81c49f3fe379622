package storage

import (
	"context"
	"fmt"

	"recipeproxy/internal/models"

	"github.com/redis/go-redis/v9"
)

// Factory creates storage instances from configuration.
type Factory struct{}

// NewFactory creates a new storage factory
func NewFactory() *Factory {
	return &Factory{}
}

// Create instantiates a storage provider based on the provided configuration.
// Supported providers:
//   - memory: in-process map, lost on restart
//   - redis: one JSON array value per recipe
//   - sqlite: single file database
//   - postgres: PostgreSQL through a pgx pool
func (f *Factory) Create(ctx context.Context, config models.StoreConfig) (Storage, error) {
	if err := f.ValidateConfig(config); err != nil {
		return nil, err
	}

	switch config.Type {
	case models.StoreTypeMemory:
		return NewMemoryStorage(), nil
	case models.StoreTypeRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
			PoolSize: config.Redis.PoolSize,
		})
		return NewRedisStorage(ctx, rdb, config.Redis.Prefix)
	case models.StoreTypeSQLite:
		return NewSQLiteStorage(ctx, config.DSN)
	case models.StoreTypePostgres:
		return NewPostgresStorage(ctx, config.DSN)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}

// GetSupportedProviders returns a list of all supported storage provider types
func (f *Factory) GetSupportedProviders() []string {
	return []string{models.StoreTypeMemory, models.StoreTypeRedis, models.StoreTypeSQLite, models.StoreTypePostgres}
}

// ValidateConfig validates that a storage configuration is valid for its type
func (f *Factory) ValidateConfig(config models.StoreConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("unsupported storage configuration: %w", err)
	}
	return nil
}
