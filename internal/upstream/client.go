// Package upstream performs HTTP calls to shard backends and classifies the
// outcome into a tagged Result, so callers switch on Result.Kind rather than
// inspecting error values.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"recipeproxy/internal/models"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// maxBodySize bounds how much of a backend response is read.
const maxBodySize = 1 << 20

// Kind classifies the outcome of a backend call.
type Kind int

const (
	// KindOK means the backend answered with a 2xx status and a JSON object.
	KindOK Kind = iota
	// KindUpstreamError means the backend answered with a non-2xx status.
	KindUpstreamError
	// KindUnreachable means no complete response arrived: connection
	// failure, timeout or cancellation.
	KindUnreachable
	// KindOther covers local failures such as an unencodable request or an
	// unparseable success body.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindUpstreamError:
		return "upstream_error"
	case KindUnreachable:
		return "unreachable"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Call describes one backend request.
type Call struct {
	Method string
	URL    string
	// Body is JSON-encoded when non-nil.
	Body   any
	Header http.Header
	// Timeout overrides the client default when positive.
	Timeout time.Duration
}

// Result is the classified outcome of a Call. Status and Body are set for
// KindOK and KindUpstreamError; Err is set for every other kind and is meant
// for logs only.
type Result struct {
	Kind     Kind
	Status   int
	Body     map[string]any
	Err      error
	Duration time.Duration
}

// Client issues backend calls with a bounded timeout.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

type Option func(*clientOptions)

type clientOptions struct {
	timeout   time.Duration
	transport http.RoundTripper
	limiter   *rate.Limiter
	tracing   bool
}

// WithTimeout sets the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) { o.timeout = d }
}

// WithTransport replaces the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) { o.transport = rt }
}

// WithThrottle caps outbound requests across all shards. A non-positive rps
// leaves calls unthrottled.
func WithThrottle(rps float64, burst int) Option {
	return func(o *clientOptions) {
		if rps > 0 {
			o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithTracing propagates trace context to backends and records client spans.
func WithTracing() Option {
	return func(o *clientOptions) { o.tracing = true }
}

// New creates a Client.
func New(opts ...Option) *Client {
	o := clientOptions{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	rt := o.transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if o.limiter != nil {
		rt = &throttledTransport{base: rt, limiter: o.limiter}
	}
	if o.tracing {
		rt = otelhttp.NewTransport(rt)
	}

	return &Client{
		http:    &http.Client{Transport: rt},
		timeout: o.timeout,
	}
}

// NewFromConfig builds a Client from the upstream configuration section.
func NewFromConfig(cfg models.UpstreamConfig, tracing bool) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	}

	opts := []Option{
		WithTimeout(cfg.Timeout),
		WithTransport(transport),
		WithThrottle(cfg.MaxRequestsPerSecond, cfg.Burst),
	}
	if tracing {
		opts = append(opts, WithTracing())
	}
	return New(opts...)
}

// Do performs call and classifies the outcome. It never returns an error
// value directly; failures are reported through Result.Kind.
func (c *Client) Do(ctx context.Context, call Call) Result {
	start := time.Now()
	res := c.do(ctx, call)
	res.Duration = time.Since(start)
	return res
}

func (c *Client) do(ctx context.Context, call Call) Result {
	var body io.Reader
	if call.Body != nil {
		data, err := json.Marshal(call.Body)
		if err != nil {
			return Result{Kind: KindOther, Err: fmt.Errorf("failed to encode request body: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	timeout := c.timeout
	if call.Timeout > 0 {
		timeout = call.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return Result{Kind: KindOther, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	for k, values := range call.Header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Kind: KindUnreachable, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return Result{Kind: KindUnreachable, Status: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{
			Kind:   KindUpstreamError,
			Status: resp.StatusCode,
			Body:   errorBody(resp.StatusCode, data),
		}
	}

	obj, err := decodeObject(data)
	if err != nil {
		return Result{Kind: KindOther, Status: resp.StatusCode, Err: err}
	}
	return Result{Kind: KindOK, Status: resp.StatusCode, Body: obj}
}

// decodeObject parses a success body. An empty body decodes to an empty
// object; anything other than a JSON object is an error.
func decodeObject(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	if obj == nil {
		return nil, errors.New("response body is not a JSON object")
	}
	return obj, nil
}

// errorBody keeps a JSON object error body as is. Other bodies are wrapped
// as {"error": text} so the status can still be passed through.
func errorBody(status int, data []byte) map[string]any {
	if obj, err := decodeObject(data); err == nil && len(bytes.TrimSpace(data)) > 0 {
		return obj
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		text = http.StatusText(status)
	}
	return map[string]any{"error": text}
}
