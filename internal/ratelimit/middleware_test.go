package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAllowsAndSetsHeaders(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute, 3)
	handler := Middleware(l, nil, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/recipe/apple", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "3", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1772366460", rr.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rr.Header().Get("Retry-After"))
}

func TestMiddlewareDeniesOverLimit(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute, 1)
	handler := Middleware(l, nil, nil)(okHandler())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/recipe/apple", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusOK, send().Code)

	rr := send()
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Too many requests", body["error"])
	assert.Equal(t, float64(60), body["retryAfter"])
}

func TestMiddlewareCustomDenied(t *testing.T) {
	l, _ := newTestLimiter(t, time.Minute, 1)

	var got Decision
	denied := func(w http.ResponseWriter, r *http.Request, d Decision) {
		got = d
		w.WriteHeader(http.StatusTeapot)
	}
	handler := Middleware(l, func(*http.Request) string { return "fixed" }, denied)(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.False(t, got.Allowed)
	assert.Equal(t, time.Minute, got.RetryAfter)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		trust   bool
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:   "remote address without port",
			remote: "192.0.2.1:1234",
			want:   "192.0.2.1",
		},
		{
			name:   "ipv6 remote address",
			remote: "[2001:db8::1]:443",
			want:   "2001:db8::1",
		},
		{
			name:    "forwarded headers ignored by default",
			remote:  "192.0.2.1:1234",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
			want:    "192.0.2.1",
		},
		{
			name:    "first forwarded address when trusted",
			trust:   true,
			remote:  "192.0.2.1:1234",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"},
			want:    "203.0.113.9",
		},
		{
			name:    "x-real-ip when trusted",
			trust:   true,
			remote:  "192.0.2.1:1234",
			headers: map[string]string{"X-Real-IP": "203.0.113.7"},
			want:    "203.0.113.7",
		},
		{
			name:   "unparseable remote address",
			remote: "pipe",
			want:   "pipe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(tt.trust)(req))
		})
	}
}
