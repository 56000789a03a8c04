// Package config loads the journal CLI's configuration
package config

import (
	"github.com/erauner12/journalsync/internal/client/keycustody"
	"github.com/erauner12/journalsync/internal/client/syncer"
	"github.com/golang-jwt/jwt/v5"
)

// Config holds all configuration for the journal client
type Config struct {
	ServerURL     string `json:"serverUrl"`
	DataDir       string `json:"dataDir"`
	Token         string `json:"token,omitempty"`
	DebugSub      string `json:"debugSub,omitempty"` // dev servers only
	UserID        string `json:"userId,omitempty"`
	Policy        string `json:"conflictPolicy,omitempty"`
	KDFIterations int    `json:"kdfIterations,omitempty"`
	LogLevel      string `json:"logLevel"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		ServerURL: "http://localhost:8081",
		DataDir:   defaultDataDir(),
		Policy:    string(syncer.PolicyManual),
		LogLevel:  "warn",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return ErrMissingServerURL
	}
	if c.DataDir == "" {
		return ErrMissingDataDir
	}
	if c.Token == "" && c.DebugSub == "" {
		return ErrMissingCredentials
	}
	if _, err := syncer.ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.KDFIterations != 0 && c.KDFIterations < keycustody.MinIterations {
		return ErrWeakKDF
	}
	return nil
}

// Identity is the user the local store belongs to: UserID when set,
// otherwise the debug subject or the token's unverified "sub" claim.
// The server still authenticates every request; this only picks a file.
func (c *Config) Identity() (string, error) {
	switch {
	case c.UserID != "":
		return c.UserID, nil
	case c.DebugSub != "":
		return c.DebugSub, nil
	case c.Token != "":
		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(c.Token, claims); err != nil {
			return "", ErrUnknownIdentity
		}
		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return "", ErrUnknownIdentity
		}
		return sub, nil
	}
	return "", ErrUnknownIdentity
}

// ConflictPolicy returns the parsed conflict policy
func (c *Config) ConflictPolicy() syncer.ConflictPolicy {
	p, err := syncer.ParsePolicy(c.Policy)
	if err != nil {
		return syncer.PolicyManual
	}
	return p
}
