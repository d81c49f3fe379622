package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recipeproxy/internal/api"
	"recipeproxy/internal/config"
	"recipeproxy/internal/gateway"
	"recipeproxy/internal/health"
	"recipeproxy/internal/logger"
	"recipeproxy/internal/models"
	"recipeproxy/internal/observability"
	"recipeproxy/internal/ratelimit"
	"recipeproxy/internal/shard"
	"recipeproxy/internal/upstream"
	"recipeproxy/internal/version"

	"github.com/redis/go-redis/v9"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	exampleFile = flag.String("write-example", "", "Write an example configuration file and exit")
)

func main() {
	flag.Parse()
	defer logger.ExitOnPanic()

	if *exampleFile != "" {
		if err := config.SaveExample(*exampleFile); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ver := version.GetInfo()

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, cfg.Upstream.ServiceName, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	shards, err := shard.NewMap(cfg.Shards)
	if err != nil {
		slog.Error("Invalid shard map", "error", err)
		os.Exit(1)
	}
	for _, s := range shards.Shards() {
		slog.Info("Shard route", "shard", s.Name, "range", s.Range(), "addr", s.Addr, "fallback", s.Fallback)
	}

	client := upstream.NewFromConfig(cfg.Upstream, otelProvider.TracingEnabled())

	var forwarder api.Forwarder = gateway.New(shards, client, cfg.Upstream.ServiceName)
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedForwarder(forwarder)
		if err != nil {
			slog.Error("Failed to create instrumented forwarder", "error", err)
			os.Exit(1)
		}
		forwarder = instrumented
	}

	checker := health.New(shards, client, cfg.Upstream.ServiceName,
		health.WithTimeout(cfg.Upstream.HealthTimeout),
		health.WithHealthPath(cfg.Shards.HealthPath),
	)

	handlerOpts := []api.HandlerOption{api.WithVersion(ver)}
	if cfg.RateLimit.Enabled {
		limiter, err := initializeLimiter(context.Background(), cfg)
		if err != nil {
			slog.Error("Failed to initialize rate limiter", "error", err)
			os.Exit(1)
		}
		defer limiter.Close()
		handlerOpts = append(handlerOpts, api.WithLimiter(limiter))
	}

	handlers := api.NewHandlers(forwarder, checker, shards, cfg, handlerOpts...)

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if otelProvider.TracingEnabled() {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider)
		if err := metricsServer.Listen(); err != nil {
			slog.Error("Metrics server failed to bind", "error", err)
			os.Exit(1)
		}
		go func() {
			defer logger.ExitOnPanic()
			if err := metricsServer.Start(); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		defer logger.ExitOnPanic()
		slog.Info("Recipe proxy listening",
			"addr", server.Addr,
			"rate_limit", cfg.RateLimit.Enabled,
			"window", cfg.RateLimit.Window,
			"capacity", cfg.RateLimit.Capacity,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
}

// initializeLimiter builds the sliding window limiter over the configured
// window store. With metrics enabled the limiter is instrumented.
func initializeLimiter(ctx context.Context, cfg *models.Config) (ratelimit.Limiter, error) {
	rl := cfg.RateLimit

	var store ratelimit.WindowStore
	switch rl.Store {
	case models.RateLimitStoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     rl.Redis.Addr,
			Password: rl.Redis.Password,
			DB:       rl.Redis.DB,
			PoolSize: rl.Redis.PoolSize,
		})
		redisStore := ratelimit.NewRedisStore(rdb, ratelimit.WithKeyPrefix(rl.Redis.Prefix))
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(pingCtx); err != nil {
			redisStore.Close()
			return nil, fmt.Errorf("rate limit redis %s: %w", rl.Redis.Addr, err)
		}
		store = redisStore
	default:
		store = ratelimit.NewMemoryStore(nil, rl.CleanupInterval)
	}

	var limiter ratelimit.Limiter = ratelimit.NewSlidingWindow(store, rl.Window, rl.Capacity)
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedLimiter(limiter)
		if err != nil {
			limiter.Close()
			return nil, err
		}
		limiter = instrumented
	}

	slog.Info("Rate limiter initialized", "store", rl.Store, "window", rl.Window, "capacity", rl.Capacity)
	return limiter, nil
}
