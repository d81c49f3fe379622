package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"recipeproxy/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS recipes (
	name        TEXT PRIMARY KEY,
	ingredients JSONB NOT NULL DEFAULT '[]'::jsonb,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStorage implements Storage on PostgreSQL. Merges lock the recipe
// row for the duration of the transaction.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage creates a pool for dsn and ensures the schema exists.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for PostgreSQL storage")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func (ps *PostgresStorage) GetRecipe(ctx context.Context, name string) (*models.Recipe, error) {
	var data []byte
	err := ps.pool.QueryRow(ctx, `SELECT ingredients FROM recipes WHERE name = $1`, name).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recipe %s: %w", name, err)
	}

	ingredients, err := decodeIngredients(name, data)
	if err != nil {
		return nil, err
	}
	return &models.Recipe{Name: name, Ingredients: ingredients}, nil
}

func (ps *PostgresStorage) AddIngredients(ctx context.Context, name string, ingredients []string) (*models.Recipe, int, error) {
	var merged []string
	var added int

	err := pgx.BeginFunc(ctx, ps.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO recipes (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("failed to create recipe %s: %w", name, err)
		}

		var data []byte
		if err := tx.QueryRow(ctx,
			`SELECT ingredients FROM recipes WHERE name = $1 FOR UPDATE`, name).Scan(&data); err != nil {
			return fmt.Errorf("failed to lock recipe %s: %w", name, err)
		}

		existing, err := decodeIngredients(name, data)
		if err != nil {
			return err
		}
		merged, added = MergeIngredients(existing, ingredients)

		encoded, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to encode ingredients: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE recipes SET ingredients = $2, updated_at = now() WHERE name = $1`, name, encoded); err != nil {
			return fmt.Errorf("failed to save recipe %s: %w", name, err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return &models.Recipe{Name: name, Ingredients: merged}, added, nil
}

func (ps *PostgresStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close closes the connection pool.
func (ps *PostgresStorage) Close() error {
	ps.pool.Close()
	return nil
}
