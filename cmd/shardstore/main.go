// Command shardstore runs one recipe shard: a small HTTP service that keeps
// recipe ingredient lists in the configured storage backend. The proxy
// routes each recipe name to exactly one shard store.
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
	"recipeproxy/internal/logger"
	"recipeproxy/internal/observability"
	"recipeproxy/internal/storage"
	"recipeproxy/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	port        = flag.Int("port", 0, "Listen port, overrides server.port")
	serviceName = flag.String("name", "redis-service", "Service name reported by /health")
)

func main() {
	flag.Parse()
	defer logger.ExitOnPanic()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	ver := version.GetInfo()

	log, closer, err := logger.Setup(cfg.Logging, *serviceName, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	cfg.Observability.ServiceName = *serviceName
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

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	storageInstance, err := storage.NewFactory().Create(initCtx, cfg.Store)
	cancel()
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err, "type", cfg.Store.Type)
		os.Exit(1)
	}
	defer storageInstance.Close()

	// Wrap storage with instrumentation if metrics are enabled
	var activeStorage storage.Storage = storageInstance
	if cfg.Metrics.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(storageInstance)
		if err != nil {
			slog.Error("Failed to create instrumented storage", "error", err)
			os.Exit(1)
		}
		activeStorage = instrumented
	}

	handlers := api.NewStoreHandlers(activeStorage, *serviceName, nil)

	routeOpts := []api.RouteOption{}
	if otelProvider.TracingEnabled() {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(*serviceName))
	}
	router := api.SetupStoreRoutes(handlers, cfg, routeOpts...)

	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider)
		if err := metricsServer.Listen(); err != nil {
			// Several shards on one host share the default metrics port.
			slog.Warn("Metrics server disabled", "error", err)
			metricsServer = nil
		} else {
			go func() {
				defer logger.ExitOnPanic()
				if err := metricsServer.Start(); err != nil {
					slog.Error("Metrics server failed", "error", err)
				}
			}()
		}
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
		slog.Info("Shard store listening", "addr", server.Addr, "storage", cfg.Store.Type)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

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
