package version

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.BuildDate)
	assert.NotEmpty(t, info.Hostname)
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"))
	assert.Contains(t, info.Platform, "/")

	_, err := uuid.Parse(info.InstanceID)
	require.NoError(t, err, "instance id should be a UUID")

	// Cached per process
	again := GetInfo()
	assert.Equal(t, info.InstanceID, again.InstanceID)
	assert.Equal(t, info.Hostname, again.Hostname)
}

func TestInfoString(t *testing.T) {
	tests := []struct {
		name     string
		info     Info
		expected string
	}{
		{
			name:     "full version info",
			info:     Info{Version: "1.2.3", GitCommit: "abc1234", BuildDate: "2026-02-21T10:00:00Z"},
			expected: "recipeproxy version 1.2.3 (commit: abc1234, built: 2026-02-21T10:00:00Z)",
		},
		{
			name:     "unknown values",
			info:     Info{Version: "unknown", GitCommit: "unknown", BuildDate: "unknown"},
			expected: "recipeproxy version unknown (commit: unknown, built: unknown)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.info.String())
		})
	}
}
