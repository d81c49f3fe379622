package shard

import (
	"testing"

	"recipeproxy/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultMap(t *testing.T) *Map {
	t.Helper()
	m, err := NewMap(models.ShardsConfig{
		BaseURL:  "http://shards",
		Backends: models.DefaultShards(),
	})
	require.NoError(t, err)
	return m
}

func TestResolveBoundaries(t *testing.T) {
	m := defaultMap(t)

	tests := []struct {
		name string
		want string
	}{
		{"Apple", "redis-service-1"},
		{"guava", "redis-service-1"},
		{"Honey", "redis-service-2"},
		{"Rice", "redis-service-2"},
		{"Salt", "redis-service-3"},
		{"Zest", "redis-service-3"},
		{"7-Up", "redis-service-3"},
		{"_secret", "redis-service-3"},
		{"", "redis-service-3"},
		{"élan", "redis-service-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Resolve(tt.name).Name)
		})
	}
}

func TestResolveTotalAndStable(t *testing.T) {
	m := defaultMap(t)
	valid := map[string]bool{"redis-service-1": true, "redis-service-2": true, "redis-service-3": true}

	for c := 'a'; c <= 'z'; c++ {
		first := m.Resolve(string(c))
		assert.True(t, valid[first.Name], "letter %c resolved to %s", c, first.Name)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, m.Resolve(string(c)), "letter %c is not stable", c)
		}
		assert.Equal(t, first, m.Resolve(string(c-'a'+'A')), "upper-case %c differs", c)
	}
}

func TestResolveAddresses(t *testing.T) {
	m := defaultMap(t)
	assert.Equal(t, "http://shards:3001", m.Resolve("apple").Addr)
	assert.Equal(t, "http://shards:3004", m.Resolve("honey").Addr)
	assert.Equal(t, "http://shards:3003", m.Resolve("salt").Addr)
}

func TestRules(t *testing.T) {
	m := defaultMap(t)
	want := map[string]string{
		"A-G": "http://shards:3001",
		"H-R": "http://shards:3004",
		"S-Z": "http://shards:3003",
	}
	if diff := cmp.Diff(want, m.Rules()); diff != "" {
		t.Errorf("Rules() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "redis-service-3", m.Fallback().Name)
}

func TestShardsReturnsCopy(t *testing.T) {
	m := defaultMap(t)
	shards := m.Shards()
	shards[0].Addr = "http://mutated"
	assert.Equal(t, "http://shards:3001", m.Resolve("apple").Addr)
}

func TestNewRejectsInvalidPartitions(t *testing.T) {
	tests := []struct {
		name    string
		shards  []Shard
		wantErr string
	}{
		{
			name:    "empty",
			shards:  nil,
			wantErr: "no shards configured",
		},
		{
			name: "gap",
			shards: []Shard{
				{Name: "one", Addr: "http://one", From: 'a', To: 'f'},
				{Name: "two", Addr: "http://two", From: 'h', To: 'z', Fallback: true},
			},
			wantErr: "letter g is not assigned",
		},
		{
			name: "overlap",
			shards: []Shard{
				{Name: "one", Addr: "http://one", From: 'a', To: 'm'},
				{Name: "two", Addr: "http://two", From: 'm', To: 'z', Fallback: true},
			},
			wantErr: "letter m assigned to both one and two",
		},
		{
			name: "no fallback",
			shards: []Shard{
				{Name: "one", Addr: "http://one", From: 'a', To: 'm'},
				{Name: "two", Addr: "http://two", From: 'n', To: 'z'},
			},
			wantErr: "no fallback shard",
		},
		{
			name: "two fallbacks",
			shards: []Shard{
				{Name: "one", Addr: "http://one", From: 'a', To: 'm', Fallback: true},
				{Name: "two", Addr: "http://two", From: 'n', To: 'z', Fallback: true},
			},
			wantErr: "multiple fallback shards",
		},
		{
			name: "reversed range",
			shards: []Shard{
				{Name: "one", Addr: "http://one", From: 'z', To: 'a', Fallback: true},
			},
			wantErr: "invalid range",
		},
		{
			name: "missing address",
			shards: []Shard{
				{Name: "one", From: 'a', To: 'z', Fallback: true},
			},
			wantErr: "has no address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.shards)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewMapParsesLetters(t *testing.T) {
	m, err := NewMap(models.ShardsConfig{
		BaseURL: "http://base",
		Backends: []models.ShardConfig{
			{Name: "only", From: " A ", To: "Z", Addr: "http://only:9000/", Fallback: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "http://only:9000", m.Resolve("x").Addr)
	assert.Equal(t, "A-Z", m.Resolve("x").Range())

	_, err = NewMap(models.ShardsConfig{
		BaseURL: "http://base",
		Backends: []models.ShardConfig{
			{Name: "bad", From: "ab", To: "z", Port: 1, Fallback: true},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard bad: from")

	_, err = NewMap(models.ShardsConfig{
		BaseURL: "http://base",
		Backends: []models.ShardConfig{
			{Name: "bad", From: "a", To: "9", Port: 1, Fallback: true},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard bad: to")
}
