package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_Fields(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	elapsed := 42 * time.Millisecond

	fields := Metadata{
		ProxyService:   "recipe-proxy",
		Timestamp:      ts,
		ProcessingTime: &elapsed,
		Shard:          "redis-service-1",
	}.Fields()

	assert.Equal(t, "recipe-proxy", fields["proxyService"])
	assert.Equal(t, "2026-03-01T12:00:00.000Z", fields["timestamp"])
	assert.Equal(t, int64(42), fields["processingTime"])
	assert.Equal(t, "redis-service-1", fields["shard"])
	assert.NotContains(t, fields, "error")
}

func TestMetadata_FieldsOmitsProcessingTimeOnFailure(t *testing.T) {
	fields := Metadata{ProxyService: "recipe-proxy", Timestamp: time.Now(), Error: "Service unreachable"}.Fields()

	assert.NotContains(t, fields, "processingTime")
	assert.Equal(t, "Service unreachable", fields["error"])
}

func TestHealthReport_Healthy(t *testing.T) {
	report := &HealthReport{Dependencies: map[string]ShardHealth{
		"a": {Status: StatusHealthy},
		"b": {Status: StatusHealthy},
	}}
	assert.True(t, report.Healthy())

	report.Dependencies["c"] = ShardHealth{Status: StatusUnhealthy}
	assert.False(t, report.Healthy())
}

func TestNewErrorResponse_JSONShape(t *testing.T) {
	resp := NewErrorResponse("Too many requests", ErrorCodeRateLimited)
	resp.RetryAfter = 60

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Too many requests", decoded["error"])
	assert.Equal(t, float64(60), decoded["retryAfter"])
	assert.Equal(t, ErrorCodeRateLimited, decoded["code"])
}
