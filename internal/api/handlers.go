package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"recipeproxy/internal/gateway"
	"recipeproxy/internal/health"
	"recipeproxy/internal/models"
	"recipeproxy/internal/ratelimit"
	"recipeproxy/internal/shard"
	"recipeproxy/internal/version"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
)

const maxRequestBodySize = 1 << 20

// Forwarder sends a validated recipe request to its shard.
type Forwarder interface {
	Forward(ctx context.Context, req gateway.Request) *gateway.Response
}

// HealthChecker composes the aggregate shard health report.
type HealthChecker interface {
	CheckAll(ctx context.Context) *models.HealthReport
}

// Handlers contains HTTP handlers for the recipe proxy
type Handlers struct {
	forwarder      Forwarder
	health         HealthChecker
	shards         *shard.Map
	limiter        ratelimit.Limiter
	serviceName    string
	shardBaseURL   string
	trustForwarded bool
	version        version.Info
	clock          clockwork.Clock
	started        time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handlers)

// WithLimiter enables admission control on the recipe routes and rate limit
// statistics on /metrics.
func WithLimiter(l ratelimit.Limiter) HandlerOption {
	return func(h *Handlers) { h.limiter = l }
}

// WithVersion sets the build information reported by /metrics.
func WithVersion(info version.Info) HandlerOption {
	return func(h *Handlers) { h.version = info }
}

// WithClock replaces the wall clock used for uptime and request timing.
func WithClock(clock clockwork.Clock) HandlerOption {
	return func(h *Handlers) { h.clock = clock }
}

// NewHandlers creates a new handlers instance
func NewHandlers(forwarder Forwarder, checker HealthChecker, shards *shard.Map, config *models.Config, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		forwarder:      forwarder,
		health:         checker,
		shards:         shards,
		serviceName:    config.Upstream.ServiceName,
		shardBaseURL:   config.Shards.BaseURL,
		trustForwarded: config.RateLimit.TrustForwarded,
		clock:          clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.started = h.clock.Now()
	return h
}

// SaveRecipe validates the name and ingredients and forwards them
// POST /recipe/{name}
func (h *Handlers) SaveRecipe(w http.ResponseWriter, r *http.Request) {
	name, ok := h.validateName(w, r)
	if !ok {
		return
	}

	var req models.RecipeRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
		return
	}

	ingredients, err := models.ValidateIngredients(req.Ingredients)
	if err != nil {
		writeValidationError(w, r, err)
		return
	}

	if received := countElements(req.Ingredients); received != len(ingredients) {
		slog.Debug("Ingredients filtered",
			"recipe", name,
			"received", received,
			"kept", len(ingredients),
			"request_id", RequestID(r.Context()),
		)
	}

	h.forward(w, r, gateway.Request{
		Method:      http.MethodPost,
		Name:        name,
		Ingredients: ingredients,
	})
}

// GetRecipe validates the name and forwards the lookup
// GET /recipe/{name}
func (h *Handlers) GetRecipe(w http.ResponseWriter, r *http.Request) {
	name, ok := h.validateName(w, r)
	if !ok {
		return
	}

	h.forward(w, r, gateway.Request{
		Method: http.MethodGet,
		Name:   name,
	})
}

func (h *Handlers) validateName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := models.ValidateRecipeName(mux.Vars(r)["name"])
	if err != nil {
		writeValidationError(w, r, err)
		return "", false
	}
	return name, true
}

func (h *Handlers) forward(w http.ResponseWriter, r *http.Request, req gateway.Request) {
	req.ClientAddr = ratelimit.ClientIP(h.trustForwarded)(r)
	req.Start = RequestStart(r.Context())

	resp := h.forwarder.Forward(r.Context(), req)
	if resp.Shard.Name != "" {
		w.Header().Set("X-Recipe-Shard", resp.Shard.Name)
	}
	writeJSONResponse(w, r, resp.Status, resp.Body)
}

// HealthCheck reports the aggregate health of all shards
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := h.health.CheckAll(r.Context())
	writeJSONResponse(w, r, health.StatusCode(report), report)
}

// Metrics reports process and routing statistics as JSON
// GET /metrics
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	now := h.clock.Now()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	metrics := models.RuntimeMetrics{
		Service:   h.serviceName,
		Timestamp: now,
		Uptime:    now.Sub(h.started).Seconds(),
		Memory: models.MemoryStats{
			Alloc:      mem.Alloc,
			TotalAlloc: mem.TotalAlloc,
			Sys:        mem.Sys,
			HeapAlloc:  mem.HeapAlloc,
			NumGC:      mem.NumGC,
		},
		Goroutines: runtime.NumGoroutine(),
		Environment: models.EnvironmentReport{
			Version:      h.version.Version,
			GoVersion:    runtime.Version(),
			Platform:     runtime.GOOS + "/" + runtime.GOARCH,
			ShardBaseURL: h.shardBaseURL,
			RoutingRules: h.shards.Rules(),
		},
	}

	if h.limiter != nil {
		stats := h.limiter.Stats(r.Context())
		metrics.RateLimitStats = models.RateLimitStats{
			Enabled:       true,
			ActiveClients: stats.ActiveClients,
			TotalRequests: stats.WindowedRequests,
			Admitted:      stats.Admitted,
			Denied:        stats.Denied,
		}
	}

	writeJSONResponse(w, r, http.StatusOK, metrics)
}

// writeRateLimited answers a request rejected by the limiter.
func writeRateLimited(w http.ResponseWriter, r *http.Request, d ratelimit.Decision) {
	errorResp := models.NewErrorResponse("Too many requests", models.ErrorCodeRateLimited)
	errorResp.RetryAfter = ratelimit.RetryAfterSeconds(d)
	errorResp.RequestID = RequestID(r.Context())
	writeJSONResponse(w, r, http.StatusTooManyRequests, errorResp)
}

// writeJSONResponse writes a JSON response and logs its completion. It is the
// only place a response status is written, so every request logs once.
func writeJSONResponse(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already written, so only log.
		slog.Error("Error encoding JSON response", "error", err)
	}

	level := slog.LevelInfo
	if statusCode >= http.StatusInternalServerError {
		level = slog.LevelError
	} else if statusCode >= http.StatusBadRequest {
		level = slog.LevelWarn
	}
	slog.Log(r.Context(), level, "HTTP response",
		"method", r.Method,
		"path", r.URL.Path,
		"status", statusCode,
		"duration_ms", time.Since(RequestStart(r.Context())).Milliseconds(),
		"request_id", RequestID(r.Context()),
	)
}

// writeErrorResponse writes an error response
func writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	errorResp := models.NewErrorResponse(message, errorCode)
	errorResp.RequestID = RequestID(r.Context())
	writeJSONResponse(w, r, statusCode, errorResp)
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeValidation, ve.Message)
		return
	}
	writeErrorResponse(w, r, http.StatusBadRequest, models.ErrorCodeBadRequest, err.Error())
}

func countElements(raw json.RawMessage) int {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return 0
	}
	return len(elems)
}
