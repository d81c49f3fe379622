package observability

import (
	"context"
	"errors"
	"time"

	"recipeproxy/internal/models"
	"recipeproxy/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	added    metric.Int64Counter
}

// NewInstrumentedStorage creates a storage wrapper that records a span, a
// latency histogram and an error counter for every call. A miss is not an
// error.
func NewInstrumentedStorage(inner storage.Storage, opts ...InstrumentOption) (*InstrumentedStorage, error) {
	cfg := newInstrumentConfig(opts)
	meter := cfg.meterProvider.Meter(instrumentationName + "/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	added, err := meter.Int64Counter(
		"storage.ingredients.added",
		metric.WithDescription("Number of ingredients newly stored"),
		metric.WithUnit("{ingredient}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   cfg.tracerProvider.Tracer(instrumentationName + "/storage"),
		duration: duration,
		errors:   errCounter,
		added:    added,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func (s *InstrumentedStorage) GetRecipe(ctx context.Context, name string) (*models.Recipe, error) {
	ctx, span := s.startSpan(ctx, "GetRecipe", attribute.String("recipe.name", name))
	start := time.Now()
	result, err := s.inner.GetRecipe(ctx, name)
	span.SetAttributes(attribute.Bool("recipe.found", err == nil))
	s.record(ctx, span, "GetRecipe", start, err)
	return result, err
}

func (s *InstrumentedStorage) AddIngredients(ctx context.Context, name string, ingredients []string) (*models.Recipe, int, error) {
	ctx, span := s.startSpan(ctx, "AddIngredients",
		attribute.String("recipe.name", name),
		attribute.Int("recipe.ingredients", len(ingredients)),
	)
	start := time.Now()
	result, added, err := s.inner.AddIngredients(ctx, name, ingredients)
	if err == nil {
		s.added.Add(ctx, int64(added))
		span.SetAttributes(attribute.Int("recipe.added", added))
	}
	s.record(ctx, span, "AddIngredients", start, err)
	return result, added, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
