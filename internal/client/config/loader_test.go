package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

var journalEnv = []string{
	"JOURNAL_SERVER_URL", "JOURNAL_DATA_DIR", "JOURNAL_TOKEN", "JOURNAL_DEBUG_SUB",
	"JOURNAL_USER_ID", "JOURNAL_CONFLICT_POLICY", "JOURNAL_LOG_LEVEL", "JOURNAL_KDF_ITERATIONS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range journalEnv {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		checks  func(*testing.T, *Config)
	}{
		{
			name: "dev server with debug subject",
			envVars: map[string]string{
				"JOURNAL_SERVER_URL": "http://sync.local:9000",
				"JOURNAL_DEBUG_SUB":  "alice",
				"JOURNAL_DATA_DIR":   "/tmp/journal",
			},
			checks: func(t *testing.T, cfg *Config) {
				if cfg.ServerURL != "http://sync.local:9000" {
					t.Errorf("expected ServerURL override, got %s", cfg.ServerURL)
				}
				if cfg.DebugSub != "alice" || cfg.DataDir != "/tmp/journal" {
					t.Errorf("unexpected config %+v", cfg)
				}
			},
		},
		{
			name: "policy and iterations",
			envVars: map[string]string{
				"JOURNAL_TOKEN":           "tok",
				"JOURNAL_CONFLICT_POLICY": "keep-local",
				"JOURNAL_KDF_ITERATIONS":  "200000",
			},
			checks: func(t *testing.T, cfg *Config) {
				if cfg.ConflictPolicy() != "keep-local" {
					t.Errorf("expected keep-local, got %s", cfg.Policy)
				}
				if cfg.KDFIterations != 200000 {
					t.Errorf("expected 200000 iterations, got %d", cfg.KDFIterations)
				}
			},
		},
		{
			name:    "non-numeric iterations",
			envVars: map[string]string{"JOURNAL_KDF_ITERATIONS": "lots"},
			wantErr: true,
		},
		{
			name:    "defaults when no env set",
			envVars: map[string]string{},
			checks: func(t *testing.T, cfg *Config) {
				if cfg.ServerURL != "http://localhost:8081" {
					t.Errorf("expected default ServerURL, got %s", cfg.ServerURL)
				}
				if cfg.Policy != "manual" || cfg.LogLevel != "warn" {
					t.Errorf("unexpected defaults %+v", cfg)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg, err := Load("")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.checks != nil {
				tt.checks(t, cfg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.json")
	content := `{"serverUrl": "https://sync.example.com", "debugSub": "bob", "conflictPolicy": "keep-server"}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.ServerURL != "https://sync.example.com" || cfg.DebugSub != "bob" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	// keys missing from the file keep their defaults
	if cfg.LogLevel != "warn" {
		t.Errorf("expected default log level, got %q", cfg.LogLevel)
	}

	t.Setenv("JOURNAL_SERVER_URL", "http://override:1")
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "http://override:1" {
		t.Errorf("env should override file, got %s", cfg.ServerURL)
	}
}

func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	if !errors.Is(err, ErrConfigFileNotFound) {
		t.Errorf("expected ErrConfigFileNotFound, got %v", err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = Load(bad)
	if !errors.Is(err, ErrInvalidConfigFormat) {
		t.Errorf("expected ErrInvalidConfigFormat, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.DataDir = "/tmp/j"
		c.DebugSub = "alice"
		return c
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"no server", func(c *Config) { c.ServerURL = "" }, ErrMissingServerURL},
		{"no data dir", func(c *Config) { c.DataDir = "" }, ErrMissingDataDir},
		{"no credentials", func(c *Config) { c.DebugSub = "" }, ErrMissingCredentials},
		{"weak kdf", func(c *Config) { c.KDFIterations = 1000 }, ErrWeakKDF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}

	c := valid()
	c.Policy = "coin-flip"
	if err := c.Validate(); err == nil {
		t.Error("unknown policy should fail validation")
	}
}

func TestIdentity(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "auth0|123"}).SignedString([]byte("k"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"explicit user id wins", Config{UserID: "u1", DebugSub: "alice", Token: token}, "u1", false},
		{"debug subject", Config{DebugSub: "alice"}, "alice", false},
		{"token subject", Config{Token: token}, "auth0|123", false},
		{"garbage token", Config{Token: "not-a-jwt"}, "", true},
		{"nothing set", Config{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.Identity()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Identity() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Identity() = %q, want %q", got, tt.want)
			}
		})
	}
}
