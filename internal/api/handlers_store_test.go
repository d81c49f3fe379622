package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"recipeproxy/internal/models"
	"recipeproxy/internal/storage"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStorage struct {
	storage.Storage
	err error
}

func (b brokenStorage) GetRecipe(ctx context.Context, name string) (*models.Recipe, error) {
	return nil, b.err
}

func (b brokenStorage) AddIngredients(ctx context.Context, name string, ingredients []string) (*models.Recipe, int, error) {
	return nil, 0, b.err
}

func (b brokenStorage) Ping(ctx context.Context) error { return b.err }

func newStoreRouter(t *testing.T, store storage.Storage) *mux.Router {
	t.Helper()
	handlers := NewStoreHandlers(store, "redis-service", clockwork.NewFakeClockAt(epoch))
	return SetupStoreRoutes(handlers, models.NewDefaultConfig())
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestStoreGetRecipeNotFound(t *testing.T) {
	router := newStoreRouter(t, storage.NewMemoryStorage())

	rr := serve(router, http.MethodGet, "/recipe/pizza", "")

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Recipe not found", decodeBody(t, rr)["error"])
}

func TestStoreAddAndGetRecipe(t *testing.T) {
	router := newStoreRouter(t, storage.NewMemoryStorage())

	rr := serve(router, http.MethodPost, "/recipe/pizza", `{"ingredients":["dough","cheese"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "Ingredients for pizza saved.", body["message"])
	assert.Equal(t, 2.0, body["added"])

	rr = serve(router, http.MethodPost, "/recipe/pizza", `{"ingredients":["cheese","basil"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body = decodeBody(t, rr)
	assert.Equal(t, 1.0, body["added"])
	assert.Equal(t, 3.0, body["total"])

	rr = serve(router, http.MethodGet, "/recipe/pizza", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body = decodeBody(t, rr)
	assert.Equal(t, "pizza", body["name"])
	assert.Equal(t, []any{"dough", "cheese", "basil"}, body["ingredients"])
}

func TestStoreSanitizesName(t *testing.T) {
	store := storage.NewMemoryStorage()
	router := newStoreRouter(t, store)

	rr := serve(router, http.MethodPost, "/recipe/%20Hot%20Dog%3F%20", `{"ingredients":["bun"]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	recipe, err := store.GetRecipe(context.Background(), "Hot Dog")
	require.NoError(t, err)
	assert.Equal(t, []string{"bun"}, recipe.Ingredients)

	rr = serve(router, http.MethodGet, "/recipe/%3F%3F", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStoreAddIngredientsValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"not an array", `{"ingredients":"salt"}`, http.StatusBadRequest},
		{"missing", `{}`, http.StatusBadRequest},
		{"null", `{"ingredients":null}`, http.StatusBadRequest},
		{"malformed", `{"ingredients":[`, http.StatusBadRequest},
		{"empty array", `{"ingredients":[]}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newStoreRouter(t, storage.NewMemoryStorage())
			rr := serve(router, http.MethodPost, "/recipe/soup", tt.body)
			assert.Equal(t, tt.code, rr.Code, rr.Body.String())
		})
	}
}

func TestStoreBackendFailures(t *testing.T) {
	router := newStoreRouter(t, brokenStorage{err: errors.New("dial tcp: connection refused")})

	rr := serve(router, http.MethodGet, "/recipe/soup", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to retrieve recipe", decodeBody(t, rr)["error"])

	rr = serve(router, http.MethodPost, "/recipe/soup", `{"ingredients":["salt"]}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to save recipe", decodeBody(t, rr)["error"])
}

func TestStoreHealthCheck(t *testing.T) {
	rr := serve(newStoreRouter(t, storage.NewMemoryStorage()), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, models.StatusHealthy, body["status"])
	assert.Equal(t, "redis-service", body["service"])
	assert.Equal(t, "2026-03-01T12:00:00Z", body["timestamp"])

	rr = serve(newStoreRouter(t, brokenStorage{err: errors.New("ping timeout")}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body = decodeBody(t, rr)
	assert.Equal(t, models.StatusUnhealthy, body["status"])
	assert.Equal(t, "ping timeout", body["error"])
}
