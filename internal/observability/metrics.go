package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"recipeproxy/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves Prometheus exposition on its own port so scrapes are
// neither rate limited nor mixed with the JSON /metrics route of the proxy.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
}

// NewMetricsServer creates a metrics HTTP server. Without a Prometheus
// exporter the mux is empty and every path answers 404.
func NewMetricsServer(cfg models.MetricsConfig, provider *Provider) *MetricsServer {
	mux := http.NewServeMux()

	if provider != nil && provider.promExporter != nil {
		mux.Handle(cfg.Path, promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: mux,
		},
	}
}

// Listen binds the listening socket so the caller learns about port
// conflicts before Serve runs in the background.
func (ms *MetricsServer) Listen() error {
	ln, err := net.Listen("tcp", ms.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	ms.listener = ln
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (ms *MetricsServer) Addr() string {
	if ms.listener != nil {
		return ms.listener.Addr().String()
	}
	return ms.server.Addr
}

// Start serves metrics in a blocking call, binding first if Listen was not
// called. Returns nil after a graceful Shutdown.
func (ms *MetricsServer) Start() error {
	if ms.listener == nil {
		if err := ms.Listen(); err != nil {
			return err
		}
	}
	slog.Info("Starting metrics server", "addr", ms.Addr())
	if err := ms.server.Serve(ms.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
