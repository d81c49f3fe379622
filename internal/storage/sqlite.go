package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recipeproxy/internal/models"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS recipes (
	name        TEXT PRIMARY KEY,
	ingredients TEXT NOT NULL DEFAULT '[]',
	updated_at  TEXT NOT NULL
)`

// SQLiteStorage keeps recipes in a single SQLite file. Ingredients are a JSON
// array column. The pool is limited to one connection so merges serialize.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens dsn and creates the schema when missing.
func NewSQLiteStorage(ctx context.Context, dsn string) (*SQLiteStorage, error) {
	if dsn == "" {
		return nil, fmt.Errorf("connection string is required for SQLite storage")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (ss *SQLiteStorage) GetRecipe(ctx context.Context, name string) (*models.Recipe, error) {
	ingredients, err := sqliteIngredients(ctx, ss.db, name)
	if err != nil {
		return nil, err
	}
	return &models.Recipe{Name: name, Ingredients: ingredients}, nil
}

func (ss *SQLiteStorage) AddIngredients(ctx context.Context, name string, ingredients []string) (*models.Recipe, int, error) {
	tx, err := ss.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := sqliteIngredients(ctx, tx, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, 0, err
	}

	merged, added := MergeIngredients(existing, ingredients)
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode ingredients: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recipes (name, ingredients, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET ingredients = excluded.ingredients, updated_at = excluded.updated_at`,
		name, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to save recipe %s: %w", name, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, fmt.Errorf("failed to commit recipe %s: %w", name, err)
	}
	return &models.Recipe{Name: name, Ingredients: merged}, added, nil
}

func (ss *SQLiteStorage) Ping(ctx context.Context) error {
	return ss.db.PingContext(ctx)
}

// Close closes the storage connection
func (ss *SQLiteStorage) Close() error {
	return ss.db.Close()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteIngredients(ctx context.Context, q queryRower, name string) ([]string, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT ingredients FROM recipes WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe %s: %w", name, err)
	}
	return decodeIngredients(name, []byte(data))
}

func decodeIngredients(name string, data []byte) ([]string, error) {
	var ingredients []string
	if err := json.Unmarshal(data, &ingredients); err != nil {
		return nil, fmt.Errorf("failed to decode ingredients of %s: %w", name, err)
	}
	if ingredients == nil {
		ingredients = []string{}
	}
	return ingredients, nil
}
