// Package config loads the sync server's configuration
package config

import "time"

// Store backends
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration for the sync server
type Config struct {
	HTTPAddr        string          `json:"httpAddr"`
	Env             string          `json:"env"` // "dev" enables console logging
	LogLevel        string          `json:"logLevel"`
	Store           string          `json:"store"`
	DatabaseURL     string          `json:"databaseUrl"`
	AutoMigrate     bool            `json:"autoMigrate"`
	DevMode         bool            `json:"devMode"` // enables X-Debug-Sub header fallback
	JWT             JWTConfig       `json:"jwt"`
	RateLimit       RateLimitConfig `json:"rateLimit"`
	Usage           UsageConfig     `json:"usage"`
	ShutdownTimeout Duration        `json:"shutdownTimeout"`
}

// JWTConfig configures bearer token validation
type JWTConfig struct {
	HS256Secret string `json:"hs256Secret"`
	Issuer      string `json:"issuer,omitempty"`
	Audience    string `json:"audience,omitempty"`
}

// RateLimitConfig configures the per-user token bucket on sync routes
type RateLimitConfig struct {
	Enabled       bool `json:"enabled"`
	WindowSeconds int  `json:"windowSeconds"`
	MaxRequests   int  `json:"maxRequests"`
	Burst         int  `json:"burst"`
}

// UsageConfig tunes the asynchronous usage reporter
type UsageConfig struct {
	Buffer    int `json:"buffer"`
	BatchSize int `json:"batchSize"`
}

// Duration is a time.Duration that reads "30s"-style strings from JSON
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:    ":8081",
		Env:         "dev",
		LogLevel:    "info",
		Store:       StorePostgres,
		AutoMigrate: true,
		RateLimit: RateLimitConfig{
			Enabled:       true,
			WindowSeconds: 60,
			MaxRequests:   600,
			Burst:         120,
		},
		Usage: UsageConfig{
			Buffer:    1024,
			BatchSize: 64,
		},
		ShutdownTimeout: Duration{30 * time.Second},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	case StoreMemory:
	default:
		return ErrInvalidStore
	}

	if !c.DevMode && c.JWT.HS256Secret == "" {
		return ErrMissingJWTSecret
	}

	if c.RateLimit.Enabled {
		rl := c.RateLimit
		if rl.WindowSeconds <= 0 || rl.MaxRequests <= 0 || rl.Burst <= 0 {
			return ErrInvalidRateLimit
		}
	}

	return nil
}
