// Package models - API response types.
// Error bodies keep the {error: reason} shape that browser clients of the
// proxy already parse; health and metrics responses mirror the shard layout.
package models

import (
	"time"
)

// MetadataKey is the top-level key under which routing metadata is attached
// to every response that touched a backend.
const MetadataKey = "_metadata"

// ErrorResponse is the body of every locally produced error.
type ErrorResponse struct {
	Error      string    `json:"error"`
	Code       string    `json:"code,omitempty"`
	RetryAfter int       `json:"retryAfter,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Metadata describes how the proxy handled a forwarded request.
type Metadata struct {
	ProxyService   string
	Timestamp      time.Time
	ProcessingTime *time.Duration
	Shard          string
	Error          string
}

// Fields renders the metadata as a JSON object. Timestamps are RFC 3339 with
// milliseconds and processingTime is in whole milliseconds.
func (m Metadata) Fields() map[string]any {
	fields := map[string]any{
		"proxyService": m.ProxyService,
		"timestamp":    m.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	if m.ProcessingTime != nil {
		fields["processingTime"] = m.ProcessingTime.Milliseconds()
	}
	if m.Shard != "" {
		fields["shard"] = m.Shard
	}
	if m.Error != "" {
		fields["error"] = m.Error
	}
	return fields
}

// HealthReport is the aggregate liveness verdict across all shards.
type HealthReport struct {
	Status       string                 `json:"status"`
	Service      string                 `json:"service"`
	Timestamp    time.Time              `json:"timestamp"`
	Uptime       float64                `json:"uptime"`
	Dependencies map[string]ShardHealth `json:"dependencies"`
}

// ShardHealth is the probe outcome for one shard.
type ShardHealth struct {
	Status       string `json:"status"`
	URL          string `json:"url"`
	Range        string `json:"range"`
	ResponseTime int64  `json:"responseTime"`
	Response     any    `json:"response,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Healthy reports whether every dependency is healthy.
func (h *HealthReport) Healthy() bool {
	for _, dep := range h.Dependencies {
		if dep.Status != StatusHealthy {
			return false
		}
	}
	return true
}

// RuntimeMetrics is the body of GET /metrics on the proxy listener.
type RuntimeMetrics struct {
	Service        string            `json:"service"`
	Timestamp      time.Time         `json:"timestamp"`
	Uptime         float64           `json:"uptime"`
	Memory         MemoryStats       `json:"memory"`
	Goroutines     int               `json:"goroutines"`
	RateLimitStats RateLimitStats    `json:"rateLimitStats"`
	Environment    EnvironmentReport `json:"environment"`
}

type MemoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"total_alloc"`
	Sys        uint64 `json:"sys"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	NumGC      uint32 `json:"num_gc"`
}

type RateLimitStats struct {
	Enabled       bool  `json:"enabled"`
	ActiveClients int   `json:"activeIPs"`
	TotalRequests int64 `json:"totalRequests"`
	Admitted      int64 `json:"admitted"`
	Denied        int64 `json:"denied"`
}

type EnvironmentReport struct {
	Version      string            `json:"version"`
	GoVersion    string            `json:"goVersion"`
	Platform     string            `json:"platform"`
	ShardBaseURL string            `json:"shardBaseUrl"`
	RoutingRules map[string]string `json:"routingRules"`
}

// StoreHealthResponse is returned by the shard store's /health endpoint.
type StoreHealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// MessageResponse acknowledges a shard store write.
type MessageResponse struct {
	Message string `json:"message"`
	Added   int    `json:"added"`
	Total   int    `json:"total"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// Error codes attached to locally produced errors
const (
	ErrorCodeValidation         = "VALIDATION_ERROR"
	ErrorCodeBadRequest         = "BAD_REQUEST"
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeRateLimited        = "RATE_LIMIT_EXCEEDED"
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrorCodeInternalError      = "INTERNAL_ERROR"
	ErrorCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     message,
		Code:      code,
		Timestamp: time.Now(),
	}
}
