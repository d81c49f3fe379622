package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"recipeproxy/internal/models"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and process environment variables.
func Load(configPath string) (*models.Config, error) {
	return LoadWithLookuper(context.Background(), configPath, envconfig.OsLookuper())
}

// LoadWithLookuper layers defaults, the optional YAML file and the variables
// visible through lookuper, then validates the result.
func LoadWithLookuper(ctx context.Context, configPath string, lookuper envconfig.Lookuper) (*models.Config, error) {
	config := models.NewDefaultConfig()

	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	applyLegacyEnvironment(config, lookuper)

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   config,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := applyShardOverrides(config, lookuper); err != nil {
		return nil, fmt.Errorf("failed to apply shard overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// applyLegacyEnvironment honors the variable names of the original compose
// deployment. RECIPE_* variables are applied afterwards and take precedence.
func applyLegacyEnvironment(config *models.Config, lookuper envconfig.Lookuper) {
	if base, ok := lookuper.Lookup("REDIS_SERVICE_BASE_URL"); ok && base != "" {
		slog.Warn("Legacy environment variable in use; prefer RECIPE_SHARD_BASE_URL.", "env", "REDIS_SERVICE_BASE_URL")
		config.Shards.BaseURL = base
	}

	if port, ok := lookuper.Lookup("PORT"); ok && port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			slog.Warn("Ignoring non-numeric PORT", "value", port)
			return
		}
		slog.Warn("Legacy environment variable in use; prefer RECIPE_PORT.", "env", "PORT")
		config.Server.Port = p
	}
}

// applyShardOverrides reads RECIPE_SHARD_<N>_ADDR and RECIPE_SHARD_<N>_PORT
// where N is the 1-based position of the backend in the shard list.
func applyShardOverrides(config *models.Config, lookuper envconfig.Lookuper) error {
	for i := range config.Shards.Backends {
		backend := &config.Shards.Backends[i]
		prefix := fmt.Sprintf("RECIPE_SHARD_%d_", i+1)

		if addr, ok := lookuper.Lookup(prefix + "ADDR"); ok && addr != "" {
			backend.Addr = addr
		}

		if port, ok := lookuper.Lookup(prefix + "PORT"); ok && port != "" {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("%sPORT: %w", prefix, err)
			}
			backend.Port = p
		}
	}
	return nil
}

// SaveExample writes the default configuration as an example YAML file.
func SaveExample(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()
	config.Shards.BaseURL = "http://localhost"
	config.Store.DSN = "file:/var/lib/recipes/recipes.db"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
