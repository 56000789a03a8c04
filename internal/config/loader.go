package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Load loads configuration from a file path and applies environment variable overrides
// Validation is deferred to allow CLI flag overrides to be applied first
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := applyEnvironmentOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile overlays a JSON file onto cfg; absent keys keep their defaults
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigFileNotFound
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfigFormat, err)
	}
	return nil
}

func truthy(v string) bool {
	return v == "true" || v == "1"
}

// applyEnvironmentOverrides applies configuration from environment variables
func applyEnvironmentOverrides(cfg *Config) error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("STORE"); v != "" {
		cfg.Store = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("AUTO_MIGRATE"); v != "" {
		cfg.AutoMigrate = truthy(v)
	}
	if v := os.Getenv("DEV_MODE"); v != "" {
		cfg.DevMode = truthy(v)
	}

	if v := os.Getenv("JWT_HS256_SECRET"); v != "" {
		cfg.JWT.HS256Secret = v
	}
	if v := os.Getenv("JWT_ISSUER"); v != "" {
		cfg.JWT.Issuer = v
	}
	if v := os.Getenv("JWT_AUDIENCE"); v != "" {
		cfg.JWT.Audience = v
	}

	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		cfg.RateLimit.Enabled = truthy(v)
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"RATE_LIMIT_WINDOW_SECONDS", &cfg.RateLimit.WindowSeconds},
		{"RATE_LIMIT_MAX_REQUESTS", &cfg.RateLimit.MaxRequests},
		{"RATE_LIMIT_BURST", &cfg.RateLimit.Burst},
		{"USAGE_BUFFER", &cfg.Usage.Buffer},
		{"USAGE_BATCH_SIZE", &cfg.Usage.BatchSize},
	}
	for _, iv := range ints {
		v := os.Getenv(iv.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", iv.key, err)
		}
		*iv.dst = n
	}

	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.ShutdownTimeout = Duration{d}
	}

	return nil
}
