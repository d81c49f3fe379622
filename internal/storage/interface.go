package storage

import (
	"context"
	"errors"

	"recipeproxy/internal/models"
)

// ErrNotFound is returned when no recipe is stored under a name.
var ErrNotFound = errors.New("recipe not found")

// Storage defines recipe persistence for a shard store. Names arrive already
// sanitized; every backend treats them as opaque keys.
type Storage interface {
	// GetRecipe returns the stored ingredients for name or ErrNotFound.
	GetRecipe(ctx context.Context, name string) (*models.Recipe, error)

	// AddIngredients merges ingredients into the stored list, creating the
	// recipe when missing. It returns the resulting recipe and how many
	// ingredients were new.
	AddIngredients(ctx context.Context, name string, ingredients []string) (*models.Recipe, int, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases connections and background resources.
	Close() error
}

// MergeIngredients appends every incoming value not already present in
// existing, comparing by exact string match. Order of first occurrence is
// kept. The returned slice never aliases existing.
func MergeIngredients(existing, incoming []string) ([]string, int) {
	merged := make([]string, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)

	seen := make(map[string]struct{}, len(merged)+len(incoming))
	for _, v := range merged {
		seen[v] = struct{}{}
	}

	added := 0
	for _, v := range incoming {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
		added++
	}
	return merged, added
}
