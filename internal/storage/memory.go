package storage

import (
	"context"
	"slices"
	"sync"

	"recipeproxy/internal/models"
)

// MemoryStorage keeps recipes in a map guarded by a RWMutex. Values handed
// out are copies so callers cannot mutate stored state.
type MemoryStorage struct {
	mu      sync.RWMutex
	recipes map[string][]string
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{recipes: make(map[string][]string)}
}

func (ms *MemoryStorage) GetRecipe(ctx context.Context, name string) (*models.Recipe, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ingredients, ok := ms.recipes[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &models.Recipe{Name: name, Ingredients: slices.Clone(ingredients)}, nil
}

func (ms *MemoryStorage) AddIngredients(ctx context.Context, name string, ingredients []string) (*models.Recipe, int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	merged, added := MergeIngredients(ms.recipes[name], ingredients)
	ms.recipes[name] = merged
	return &models.Recipe{Name: name, Ingredients: slices.Clone(merged)}, added, nil
}

func (ms *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (ms *MemoryStorage) Close() error {
	return nil
}
