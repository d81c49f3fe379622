// Package health probes every shard and folds the results into one report.
// A failing probe is recorded in the report, never returned as an error.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"recipeproxy/internal/models"
	"recipeproxy/internal/shard"
	"recipeproxy/internal/upstream"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

// Caller performs a classified backend call.
type Caller interface {
	Do(ctx context.Context, call upstream.Call) upstream.Result
}

// Aggregator checks all shards of a map concurrently.
type Aggregator struct {
	shards      *shard.Map
	client      Caller
	serviceName string
	healthPath  string
	timeout     time.Duration
	clock       clockwork.Clock
	started     time.Time
}

type Option func(*Aggregator)

// WithHealthPath sets the probe path, "/health" by default.
func WithHealthPath(path string) Option {
	return func(a *Aggregator) { a.healthPath = path }
}

// WithTimeout sets the per-probe timeout, 5s by default.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) { a.timeout = d }
}

// WithClock replaces the wall clock.
func WithClock(clock clockwork.Clock) Option {
	return func(a *Aggregator) { a.clock = clock }
}

// New creates an Aggregator. Uptime is measured from this call.
func New(shards *shard.Map, client Caller, serviceName string, opts ...Option) *Aggregator {
	a := &Aggregator{
		shards:      shards,
		client:      client,
		serviceName: serviceName,
		healthPath:  "/health",
		timeout:     5 * time.Second,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.started = a.clock.Now()
	return a
}

// CheckAll probes every shard and waits for all probes before composing the
// report. The report is healthy only if every shard is.
func (a *Aggregator) CheckAll(ctx context.Context) *models.HealthReport {
	now := a.clock.Now()
	shards := a.shards.Shards()
	results := make([]models.ShardHealth, len(shards))

	var g errgroup.Group
	for i, s := range shards {
		i, s := i, s
		g.Go(func() error {
			results[i] = a.probe(ctx, s, now)
			return nil
		})
	}
	g.Wait()

	report := &models.HealthReport{
		Status:       models.StatusHealthy,
		Service:      a.serviceName,
		Timestamp:    now,
		Uptime:       now.Sub(a.started).Seconds(),
		Dependencies: make(map[string]models.ShardHealth, len(shards)),
	}
	for i, s := range shards {
		report.Dependencies[s.Name] = results[i]
	}
	if !report.Healthy() {
		report.Status = models.StatusDegraded
	}
	return report
}

// StatusCode maps a report to its HTTP status.
func StatusCode(report *models.HealthReport) int {
	if report.Status == models.StatusHealthy {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

func (a *Aggregator) probe(ctx context.Context, s shard.Shard, started time.Time) models.ShardHealth {
	res := a.client.Do(ctx, upstream.Call{
		Method:  http.MethodGet,
		URL:     s.Addr + a.healthPath,
		Header:  http.Header{"X-Proxy-Service": []string{a.serviceName}},
		Timeout: a.timeout,
	})

	h := models.ShardHealth{
		URL:          s.Addr,
		Range:        s.Range(),
		ResponseTime: a.clock.Since(started).Milliseconds(),
	}

	// A 200 is healthy whatever the body; the body is reported only when it
	// decoded as an object.
	if res.Status == http.StatusOK && (res.Kind == upstream.KindOK || res.Kind == upstream.KindOther) {
		h.Status = models.StatusHealthy
		if res.Kind == upstream.KindOK {
			h.Response = res.Body
		}
		return h
	}

	h.Status = models.StatusUnhealthy
	switch {
	case res.Kind == upstream.KindOK, res.Kind == upstream.KindUpstreamError,
		res.Kind == upstream.KindOther && res.Status != 0:
		h.Error = fmt.Sprintf("unexpected status code %d", res.Status)
	default:
		h.Error = res.Kind.String()
		if res.Err != nil {
			h.Error = res.Err.Error()
		}
	}

	slog.Error("Shard health check failed",
		"shard", s.Name,
		"url", s.Addr,
		"error", h.Error,
	)
	return h
}
