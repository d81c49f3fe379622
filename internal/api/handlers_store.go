package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"recipeproxy/internal/models"
	"recipeproxy/internal/storage"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
)

const storePingTimeout = 2 * time.Second

// StoreHandlers serves the shard store API over a storage backend.
type StoreHandlers struct {
	store       storage.Storage
	serviceName string
	clock       clockwork.Clock
}

// NewStoreHandlers creates the shard store handlers. A nil clock means the
// wall clock.
func NewStoreHandlers(store storage.Storage, serviceName string, clock clockwork.Clock) *StoreHandlers {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StoreHandlers{store: store, serviceName: serviceName, clock: clock}
}

// GetRecipe returns the stored ingredients
// GET /recipe/{name}
func (h *StoreHandlers) GetRecipe(w http.ResponseWriter, r *http.Request) {
	name, ok := storeRecipeName(w, r)
	if !ok {
		return
	}

	recipe, err := h.store.GetRecipe(r.Context(), name)
	if errors.Is(err, storage.ErrNotFound) {
		writeErrorResponse(w, r, http.StatusNotFound, models.ErrorCodeNotFound, "Recipe not found")
		return
	}
	if err != nil {
		slog.Error("Failed to retrieve recipe", "recipe", name, "error", err, "request_id", RequestID(r.Context()))
		writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to retrieve recipe")
		return
	}

	writeJSONResponse(w, r, http.StatusOK, recipe)
}

// AddIngredients merges the posted ingredients into the stored recipe
// POST /recipe/{name}
func (h *StoreHandlers) AddIngredients(w http.ResponseWriter, r *http.Request) {
	name, ok := storeRecipeName(w, r)
	if !ok {
		return
	}

	var req models.RecipeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	var values []any
	if len(req.Ingredients) == 0 || json.Unmarshal(req.Ingredients, &values) != nil || values == nil {
		writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeValidation, models.MsgIngredientsNotArray)
		return
	}

	recipe, added, err := h.store.AddIngredients(r.Context(), name, models.SanitizeIngredients(values))
	if err != nil {
		slog.Error("Failed to save recipe", "recipe", name, "error", err, "request_id", RequestID(r.Context()))
		writeErrorResponse(w, r, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to save recipe")
		return
	}

	slog.Info("Recipe saved",
		"recipe", name,
		"added", added,
		"total", len(recipe.Ingredients),
		"request_id", RequestID(r.Context()),
	)
	writeJSONResponse(w, r, http.StatusOK, models.MessageResponse{
		Message: fmt.Sprintf("Ingredients for %s saved.", name),
		Added:   added,
		Total:   len(recipe.Ingredients),
	})
}

// HealthCheck reports whether the backend answers a ping
// GET /health
func (h *StoreHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storePingTimeout)
	defer cancel()

	resp := models.StoreHealthResponse{
		Status:    models.StatusHealthy,
		Service:   h.serviceName,
		Timestamp: h.clock.Now(),
	}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		slog.Error("Store health check failed", "error", err)
		resp.Status = models.StatusUnhealthy
		resp.Error = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, r, status, resp)
}

func storeRecipeName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := models.SanitizeRecipeName(mux.Vars(r)["name"])
	if name == "" {
		writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeValidation, models.MsgRecipeNameRequired)
		return "", false
	}
	return name, true
}
