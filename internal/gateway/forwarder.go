// Package gateway forwards validated recipe requests to the owning shard and
// translates every backend outcome into exactly one client response: the
// backend's own error, a 503 when the backend cannot be reached, or a 500 for
// local failures.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"recipeproxy/internal/models"
	"recipeproxy/internal/shard"
	"recipeproxy/internal/upstream"

	"github.com/jonboulle/clockwork"
)

// Client-facing messages for failures the proxy answers itself.
const (
	MsgServiceUnavailable = "Recipe service is temporarily unavailable"
	MsgInternalError      = "Internal proxy error"
)

// Values of _metadata.error.
const (
	MetaUpstreamError = "Redis service error"
	MetaUnreachable   = "Service unreachable"
	MetaInternal      = "Internal error"
)

// Caller performs a classified backend call. *upstream.Client implements it.
type Caller interface {
	Do(ctx context.Context, call upstream.Call) upstream.Result
}

// Request is a validated recipe operation.
type Request struct {
	Method      string
	Name        string
	Ingredients []string // POST only
	ClientAddr  string
	Start       time.Time
}

// Response is what the router writes back to the client.
type Response struct {
	Status int
	Body   map[string]any
	Shard  shard.Shard
	Kind   upstream.Kind
	Err    error // for logs only
}

// Forwarder routes requests through the shard map.
type Forwarder struct {
	shards      *shard.Map
	client      Caller
	serviceName string
	clock       clockwork.Clock
}

type Option func(*Forwarder)

// WithClock replaces the wall clock used for processing times.
func WithClock(clock clockwork.Clock) Option {
	return func(f *Forwarder) { f.clock = clock }
}

// New creates a Forwarder. serviceName is sent as X-Proxy-Service and
// reported as _metadata.proxyService.
func New(shards *shard.Map, client Caller, serviceName string, opts ...Option) *Forwarder {
	f := &Forwarder{
		shards:      shards,
		client:      client,
		serviceName: serviceName,
		clock:       clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward resolves the shard for req.Name, calls it and classifies the result.
func (f *Forwarder) Forward(ctx context.Context, req Request) *Response {
	if req.Start.IsZero() {
		req.Start = f.clock.Now()
	}

	s := f.shards.Resolve(req.Name)
	call := upstream.Call{
		Method: req.Method,
		URL:    s.Addr + "/recipe/" + url.PathEscape(req.Name),
		Header: http.Header{},
	}
	call.Header.Set("X-Proxy-Service", f.serviceName)
	if req.ClientAddr != "" {
		call.Header.Set("X-Forwarded-For", req.ClientAddr)
	}
	if req.Method == http.MethodPost {
		ingredients := req.Ingredients
		if ingredients == nil {
			ingredients = []string{}
		}
		call.Body = map[string]any{"ingredients": ingredients}
	}

	slog.Info("Routing recipe request",
		"method", req.Method,
		"recipe", req.Name,
		"shard", s.Name,
		"range", s.Range(),
		"upstream", s.Addr,
		"ingredients", len(req.Ingredients),
	)

	res := f.client.Do(ctx, call)

	meta := models.Metadata{
		ProxyService: f.serviceName,
		Timestamp:    req.Start,
		Shard:        s.Name,
	}
	resp := &Response{Shard: s, Kind: res.Kind, Err: res.Err}

	switch res.Kind {
	case upstream.KindOK:
		elapsed := f.clock.Since(req.Start)
		meta.ProcessingTime = &elapsed
		resp.Status = res.Status
		resp.Body = withMetadata(res.Body, meta)

	case upstream.KindUpstreamError:
		slog.Warn("Shard responded with error",
			"shard", s.Name,
			"status", res.Status,
			"recipe", req.Name,
		)
		meta.Error = MetaUpstreamError
		resp.Status = res.Status
		resp.Body = withMetadata(res.Body, meta)

	case upstream.KindUnreachable:
		slog.Error("Shard unreachable",
			"shard", s.Name,
			"upstream", s.Addr,
			"error", res.Err,
		)
		meta.Error = MetaUnreachable
		resp.Status = http.StatusServiceUnavailable
		resp.Body = withMetadata(map[string]any{"error": MsgServiceUnavailable}, meta)

	default:
		slog.Error("Failed to forward recipe request",
			"shard", s.Name,
			"kind", res.Kind.String(),
			"error", res.Err,
		)
		meta.Error = MetaInternal
		resp.Status = http.StatusInternalServerError
		resp.Body = withMetadata(map[string]any{"error": MsgInternalError}, meta)
	}

	return resp
}

// withMetadata returns a copy of body carrying _metadata. Backend fields are
// never overwritten: if the backend already sent a _metadata object, only the
// keys it lacks are added. A _metadata value of any other type is kept as is
// and the response goes out unannotated.
func withMetadata(body map[string]any, meta models.Metadata) map[string]any {
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		out[k] = v
	}

	fields := meta.Fields()
	raw, present := out[models.MetadataKey]
	if !present {
		out[models.MetadataKey] = fields
		return out
	}
	existing, ok := raw.(map[string]any)
	if !ok {
		return out
	}

	merged := make(map[string]any, len(existing)+len(fields))
	for k, v := range fields {
		merged[k] = v
	}
	for k, v := range existing {
		merged[k] = v
	}
	out[models.MetadataKey] = merged
	return out
}
