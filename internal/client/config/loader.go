package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Load reads defaults, then the JSON file at configPath (if any), then
// JOURNAL_* environment overrides. Validation is left to the caller so
// command-line flags can still be applied.
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

// loadFromFile overlays the JSON file onto cfg; absent keys keep their defaults
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

func applyEnvironmentOverrides(cfg *Config) error {
	if v := os.Getenv("JOURNAL_SERVER_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("JOURNAL_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("JOURNAL_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("JOURNAL_DEBUG_SUB"); v != "" {
		cfg.DebugSub = v
	}
	if v := os.Getenv("JOURNAL_USER_ID"); v != "" {
		cfg.UserID = v
	}
	if v := os.Getenv("JOURNAL_CONFLICT_POLICY"); v != "" {
		cfg.Policy = v
	}
	if v := os.Getenv("JOURNAL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("JOURNAL_KDF_ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JOURNAL_KDF_ITERATIONS: %w", err)
		}
		cfg.KDFIterations = n
	}
	return nil
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "journalsync")
}
