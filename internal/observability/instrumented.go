package observability

import (
	"context"
	"time"

	"recipeproxy/internal/gateway"
	"recipeproxy/internal/ratelimit"
	"recipeproxy/internal/upstream"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "recipeproxy"

// InstrumentOption overrides the global providers, mainly for tests.
type InstrumentOption func(*instrumentConfig)

type instrumentConfig struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

func WithTracerProvider(tp trace.TracerProvider) InstrumentOption {
	return func(c *instrumentConfig) { c.tracerProvider = tp }
}

func WithMeterProvider(mp metric.MeterProvider) InstrumentOption {
	return func(c *instrumentConfig) { c.meterProvider = mp }
}

func newInstrumentConfig(opts []InstrumentOption) instrumentConfig {
	c := instrumentConfig{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Forwarder is the gateway contract wrapped by InstrumentedForwarder.
type Forwarder interface {
	Forward(ctx context.Context, req gateway.Request) *gateway.Response
}

// InstrumentedForwarder records a span, a latency histogram and an outcome
// counter for every forwarded request.
type InstrumentedForwarder struct {
	inner    Forwarder
	tracer   trace.Tracer
	duration metric.Float64Histogram
	requests metric.Int64Counter
}

// NewInstrumentedForwarder wraps inner.
func NewInstrumentedForwarder(inner Forwarder, opts ...InstrumentOption) (*InstrumentedForwarder, error) {
	cfg := newInstrumentConfig(opts)
	meter := cfg.meterProvider.Meter(instrumentationName + "/gateway")

	duration, err := meter.Float64Histogram(
		"recipeproxy.forward.duration",
		metric.WithDescription("Duration of forwarded recipe requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requests, err := meter.Int64Counter(
		"recipeproxy.forward.requests",
		metric.WithDescription("Number of forwarded recipe requests by shard and outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedForwarder{
		inner:    inner,
		tracer:   cfg.tracerProvider.Tracer(instrumentationName + "/gateway"),
		duration: duration,
		requests: requests,
	}, nil
}

func (f *InstrumentedForwarder) Forward(ctx context.Context, req gateway.Request) *gateway.Response {
	ctx, span := f.tracer.Start(ctx, "gateway.Forward",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("recipe.method", req.Method),
			attribute.Int("recipe.ingredients", len(req.Ingredients)),
		),
	)
	defer span.End()

	start := time.Now()
	resp := f.inner.Forward(ctx, req)
	elapsed := time.Since(start).Seconds()

	attrs := []attribute.KeyValue{
		attribute.String("shard", resp.Shard.Name),
		attribute.String("method", req.Method),
		attribute.String("outcome", resp.Kind.String()),
	}
	f.duration.Record(ctx, elapsed, metric.WithAttributes(attrs...))
	f.requests.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.Int("status", resp.Status))...))

	span.SetAttributes(
		attribute.String("recipe.shard", resp.Shard.Name),
		attribute.Int("http.response.status_code", resp.Status),
		attribute.String("recipe.outcome", resp.Kind.String()),
	)
	switch resp.Kind {
	case upstream.KindOK, upstream.KindUpstreamError:
		span.SetStatus(codes.Ok, "")
	default:
		if resp.Err != nil {
			span.RecordError(resp.Err)
		}
		span.SetStatus(codes.Error, resp.Kind.String())
	}
	return resp
}

// InstrumentedLimiter counts admission decisions and exposes window
// occupancy as an observable gauge.
type InstrumentedLimiter struct {
	inner     ratelimit.Limiter
	decisions metric.Int64Counter
	reg       metric.Registration
}

// NewInstrumentedLimiter wraps inner.
func NewInstrumentedLimiter(inner ratelimit.Limiter, opts ...InstrumentOption) (*InstrumentedLimiter, error) {
	cfg := newInstrumentConfig(opts)
	meter := cfg.meterProvider.Meter(instrumentationName + "/ratelimit")

	decisions, err := meter.Int64Counter(
		"recipeproxy.ratelimit.decisions",
		metric.WithDescription("Number of rate limit decisions"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	active, err := meter.Int64ObservableGauge(
		"recipeproxy.ratelimit.active_clients",
		metric.WithDescription("Clients with at least one request in the current window"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, err
	}

	l := &InstrumentedLimiter{inner: inner, decisions: decisions}
	l.reg, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(active, int64(inner.Stats(ctx).ActiveClients))
		return nil
	}, active)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *InstrumentedLimiter) Admit(ctx context.Context, clientID string) ratelimit.Decision {
	d := l.inner.Admit(ctx, clientID)
	decision := "allowed"
	if !d.Allowed {
		decision = "denied"
	}
	l.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", decision)))
	return d
}

func (l *InstrumentedLimiter) Stats(ctx context.Context) ratelimit.Stats {
	return l.inner.Stats(ctx)
}

// Close unregisters the gauge callback and closes the wrapped limiter.
func (l *InstrumentedLimiter) Close() error {
	if l.reg != nil {
		l.reg.Unregister()
	}
	return l.inner.Close()
}
