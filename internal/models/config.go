// Package models - Service configuration.
// This file defines the configuration tree shared by the recipe proxy and the
// shard store binaries. Defaults come from NewDefaultConfig, the YAML file is
// layered on top, and RECIPE_* environment variables win last.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Window store backends for the rate limiter
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Recipe store backends for the shard store service
const (
	StoreTypeMemory   = "memory"
	StoreTypeRedis    = "redis"
	StoreTypeSQLite   = "sqlite"
	StoreTypePostgres = "postgres"
)

// Config is the root configuration structure.
//
// Sections:
// - Server: HTTP listener settings
// - Shards: backend shard map (letter ranges and addresses)
// - Upstream: timeouts and throttling for backend calls
// - RateLimit: per-client sliding window settings
// - Logging, Metrics, Observability: ambient concerns
// - Store: recipe persistence, read only by the shard store binary
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Shards        ShardsConfig        `yaml:"shards" json:"shards"`
	Upstream      UpstreamConfig      `yaml:"upstream" json:"upstream"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" json:"rate_limit"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Store         StoreConfig         `yaml:"store" json:"store"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port" env:"RECIPE_PORT, overwrite"`
	Host         string        `yaml:"host" json:"host" env:"RECIPE_HOST, overwrite"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"RECIPE_READ_TIMEOUT, overwrite"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"RECIPE_WRITE_TIMEOUT, overwrite"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout" env:"RECIPE_IDLE_TIMEOUT, overwrite"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" env:"RECIPE_CORS_ENABLED, overwrite"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" env:"RECIPE_CORS_ALLOWED_ORIGINS, overwrite"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

// ShardsConfig describes the static shard map. Each backend owns an inclusive
// letter range; the single fallback backend also receives names whose first
// character is not a letter.
type ShardsConfig struct {
	BaseURL    string        `yaml:"base_url" json:"base_url" env:"RECIPE_SHARD_BASE_URL, overwrite"`
	HealthPath string        `yaml:"health_path" json:"health_path" env:"RECIPE_SHARD_HEALTH_PATH, overwrite"`
	Backends   []ShardConfig `yaml:"backends" json:"backends"`
}

type ShardConfig struct {
	Name     string `yaml:"name" json:"name"`
	From     string `yaml:"from" json:"from"`
	To       string `yaml:"to" json:"to"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Addr     string `yaml:"addr,omitempty" json:"addr,omitempty"`
	Fallback bool   `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// Address returns the backend base URL: the explicit addr override when set,
// otherwise baseURL joined with the shard port.
func (sc ShardConfig) Address(baseURL string) string {
	if sc.Addr != "" {
		return strings.TrimRight(sc.Addr, "/")
	}
	return fmt.Sprintf("%s:%d", strings.TrimRight(baseURL, "/"), sc.Port)
}

type UpstreamConfig struct {
	ServiceName          string        `yaml:"service_name" json:"service_name" env:"RECIPE_UPSTREAM_SERVICE_NAME, overwrite"`
	Timeout              time.Duration `yaml:"timeout" json:"timeout" env:"RECIPE_UPSTREAM_TIMEOUT, overwrite"`
	HealthTimeout        time.Duration `yaml:"health_timeout" json:"health_timeout" env:"RECIPE_UPSTREAM_HEALTH_TIMEOUT, overwrite"`
	MaxRequestsPerSecond float64       `yaml:"max_requests_per_second" json:"max_requests_per_second" env:"RECIPE_UPSTREAM_MAX_RPS, overwrite"`
	Burst                int           `yaml:"burst" json:"burst" env:"RECIPE_UPSTREAM_BURST, overwrite"`
	MaxIdleConnsPerHost  int           `yaml:"max_idle_conns_per_host" json:"max_idle_conns_per_host"`
}

type RateLimitConfig struct {
	Enabled         bool          `yaml:"enabled" json:"enabled" env:"RECIPE_RATE_LIMIT_ENABLED, overwrite"`
	Window          time.Duration `yaml:"window" json:"window" env:"RECIPE_RATE_LIMIT_WINDOW, overwrite"`
	Capacity        int           `yaml:"capacity" json:"capacity" env:"RECIPE_RATE_LIMIT_CAPACITY, overwrite"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" json:"cleanup_interval" env:"RECIPE_RATE_LIMIT_CLEANUP_INTERVAL, overwrite"`
	Store           string        `yaml:"store" json:"store" env:"RECIPE_RATE_LIMIT_STORE, overwrite"`
	TrustForwarded  bool          `yaml:"trust_forwarded" json:"trust_forwarded" env:"RECIPE_RATE_LIMIT_TRUST_FORWARDED, overwrite"`
	Redis           RedisConfig   `yaml:"redis" json:"redis" env:", prefix=RECIPE_RATE_LIMIT_"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr" env:"REDIS_ADDR, overwrite"`
	Password string `yaml:"password" json:"-" env:"REDIS_PASSWORD, overwrite"`
	DB       int    `yaml:"db" json:"db" env:"REDIS_DB, overwrite"`
	PoolSize int    `yaml:"pool_size" json:"pool_size" env:"REDIS_POOL_SIZE, overwrite"`
	Prefix   string `yaml:"prefix" json:"prefix" env:"REDIS_PREFIX, overwrite"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level" env:"RECIPE_LOG_LEVEL, overwrite"`
	Format   string `yaml:"format" json:"format" env:"RECIPE_LOG_FORMAT, overwrite"`
	Output   string `yaml:"output" json:"output" env:"RECIPE_LOG_OUTPUT, overwrite"`
	FilePath string `yaml:"file_path" json:"file_path" env:"RECIPE_LOG_FILE_PATH, overwrite"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"RECIPE_METRICS_ENABLED, overwrite"`
	Path    string `yaml:"path" json:"path" env:"RECIPE_METRICS_PATH, overwrite"`
	Port    int    `yaml:"port" json:"port" env:"RECIPE_METRICS_PORT, overwrite"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name" env:"RECIPE_SERVICE_NAME, overwrite"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled" env:"RECIPE_TRACING_ENABLED, overwrite"`
	Exporter     string  `yaml:"exporter" json:"exporter" env:"RECIPE_TRACING_EXPORTER, overwrite"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint" env:"RECIPE_TRACING_OTLP_ENDPOINT, overwrite"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate" env:"RECIPE_TRACING_SAMPLE_RATE, overwrite"`
}

// StoreConfig selects the persistence backend of the shard store service.
type StoreConfig struct {
	Type  string      `yaml:"type" json:"type" env:"RECIPE_STORE_TYPE, overwrite"`
	DSN   string      `yaml:"dsn" json:"-" env:"RECIPE_STORE_DSN, overwrite"`
	Redis RedisConfig `yaml:"redis" json:"redis" env:", prefix=RECIPE_STORE_"`
}

// DefaultShards returns the documented routing table: a-g, h-r and s-z, with
// the last shard absorbing digits, symbols and non-ASCII first characters.
func DefaultShards() []ShardConfig {
	return []ShardConfig{
		{Name: "redis-service-1", From: "a", To: "g", Port: 3001},
		{Name: "redis-service-2", From: "h", To: "r", Port: 3004},
		{Name: "redis-service-3", From: "s", To: "z", Port: 3003, Fallback: true},
	}
}

// NewDefaultConfig creates a configuration that matches the three-shard
// local deployment: proxy on 3002, shards on 3001/3004/3003.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         3002,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
				MaxAge:         86400,
			},
		},
		Shards: ShardsConfig{
			BaseURL:    "http://host.docker.internal",
			HealthPath: "/health",
			Backends:   DefaultShards(),
		},
		Upstream: UpstreamConfig{
			ServiceName:         "recipe-proxy",
			Timeout:             10 * time.Second,
			HealthTimeout:       5 * time.Second,
			Burst:               10,
			MaxIdleConnsPerHost: 16,
		},
		RateLimit: RateLimitConfig{
			Enabled:         true,
			Window:          time.Minute,
			Capacity:        100,
			CleanupInterval: 5 * time.Minute,
			Store:           RateLimitStoreMemory,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "recipeproxy:ratelimit",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "recipe-proxy",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
		Store: StoreConfig{
			Type: StoreTypeMemory,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Shards.Validate(); err != nil {
		return fmt.Errorf("invalid shards config: %w", err)
	}

	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("invalid upstream config: %w", err)
	}

	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("invalid rate limit config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("invalid store config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	return nil
}

// Validate checks per-backend fields. The partition invariant over a..z is
// enforced when the shard map is built.
func (sc *ShardsConfig) Validate() error {
	if len(sc.Backends) == 0 {
		return errors.New("at least one shard backend is required")
	}

	seen := make(map[string]bool, len(sc.Backends))
	for i, b := range sc.Backends {
		if b.Name == "" {
			return fmt.Errorf("shard %d: name cannot be empty", i+1)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate shard name: %s", b.Name)
		}
		seen[b.Name] = true

		if b.Addr == "" {
			if sc.BaseURL == "" {
				return fmt.Errorf("shard %s: base_url or addr is required", b.Name)
			}
			if b.Port <= 0 || b.Port > 65535 {
				return fmt.Errorf("shard %s: port must be between 1 and 65535", b.Name)
			}
		}
	}

	if sc.HealthPath == "" || !strings.HasPrefix(sc.HealthPath, "/") {
		return errors.New("health path must start with /")
	}

	return nil
}

func (uc *UpstreamConfig) Validate() error {
	if uc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}
	if uc.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if uc.HealthTimeout <= 0 {
		return errors.New("health timeout must be positive")
	}
	if uc.MaxRequestsPerSecond < 0 {
		return errors.New("max requests per second cannot be negative")
	}
	if uc.MaxRequestsPerSecond > 0 && uc.Burst <= 0 {
		return errors.New("burst must be positive when outbound throttling is enabled")
	}
	return nil
}

func (rl *RateLimitConfig) Validate() error {
	if !rl.Enabled {
		return nil
	}

	if rl.Window <= 0 {
		return errors.New("window must be positive")
	}
	if rl.Capacity <= 0 {
		return errors.New("capacity must be positive")
	}
	if rl.CleanupInterval < 0 {
		return errors.New("cleanup interval cannot be negative")
	}

	switch rl.Store {
	case RateLimitStoreMemory:
	case RateLimitStoreRedis:
		if rl.Redis.Addr == "" {
			return errors.New("redis address is required when store is redis")
		}
	default:
		return fmt.Errorf("invalid rate limit store: %s", rl.Store)
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !containsString(validLevels, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	if !containsString(validFormats, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !containsString(validOutputs, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (stc *StoreConfig) Validate() error {
	switch stc.Type {
	case StoreTypeMemory:
		return nil
	case StoreTypeRedis:
		if stc.Redis.Addr == "" {
			return errors.New("redis address is required for redis store")
		}
	case StoreTypeSQLite, StoreTypePostgres:
		if stc.DSN == "" {
			return fmt.Errorf("dsn is required for %s store", stc.Type)
		}
	default:
		return fmt.Errorf("invalid store type: %s", stc.Type)
	}
	return nil
}

func containsString(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
