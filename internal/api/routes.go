package api

import (
	"net/http"

	"recipeproxy/internal/models"
	"recipeproxy/internal/ratelimit"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// RouteOption configures optional route behavior.
type RouteOption func(*mux.Router)

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
// Health and metrics polling is not traced.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(r *mux.Router) {
		r.Use(otelmux.Middleware(serviceName,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/metrics"
			}),
		))
	}
}

// SetupRoutes configures the HTTP routes of the recipe proxy. Only the recipe
// routes pass through the rate limiter.
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.Methods(http.MethodOptions).HandlerFunc(preflightHandler)

	recipes := router.PathPrefix("/recipe").Subrouter()
	if handlers.limiter != nil && config.RateLimit.Enabled {
		recipes.Use(ratelimit.Middleware(
			handlers.limiter,
			ratelimit.ClientIP(config.RateLimit.TrustForwarded),
			writeRateLimited,
		))
	}
	recipes.HandleFunc("/{name}", handlers.SaveRecipe).Methods(http.MethodPost)
	recipes.HandleFunc("/{name}", handlers.GetRecipe).Methods(http.MethodGet)

	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/metrics", handlers.Metrics).Methods(http.MethodGet)

	useCommonMiddleware(router, handlers.clock, config.Server.CORS)
	return router
}

// SetupStoreRoutes configures the HTTP routes of a shard store.
func SetupStoreRoutes(handlers *StoreHandlers, config *models.Config, opts ...RouteOption) *mux.Router {
	router := mux.NewRouter()

	for _, opt := range opts {
		opt(router)
	}

	router.Methods(http.MethodOptions).HandlerFunc(preflightHandler)
	router.HandleFunc("/recipe/{name}", handlers.AddIngredients).Methods(http.MethodPost)
	router.HandleFunc("/recipe/{name}", handlers.GetRecipe).Methods(http.MethodGet)
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	useCommonMiddleware(router, handlers.clock, config.Server.CORS)
	return router
}

func useCommonMiddleware(router *mux.Router, clock clockwork.Clock, cors models.CORSConfig) {
	withContext := requestContextMiddleware(clock)

	router.Use(withContext)
	router.Use(recoveryMiddleware)
	if cors.Enabled {
		router.Use(corsMiddleware(cors))
	}

	router.NotFoundHandler = withContext(http.HandlerFunc(notFoundHandler))
	router.MethodNotAllowedHandler = withContext(http.HandlerFunc(methodNotAllowedHandler))
}
