package config

import "errors"

var (
	// ErrInvalidStore indicates an unknown STORE backend
	ErrInvalidStore = errors.New("store must be \"postgres\" or \"memory\"")

	// ErrMissingDatabaseURL indicates that the postgres store has no DSN
	ErrMissingDatabaseURL = errors.New("databaseUrl is required when store is postgres")

	// ErrMissingJWTSecret indicates that JWT validation has no key outside dev mode
	ErrMissingJWTSecret = errors.New("jwt.hs256Secret is required when not in dev mode")

	// ErrInvalidRateLimit indicates a non-positive rate limit setting
	ErrInvalidRateLimit = errors.New("rateLimit values must be positive")

	// ErrConfigFileNotFound indicates that the config file was not found
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrInvalidConfigFormat indicates that the config file has invalid JSON
	ErrInvalidConfigFormat = errors.New("invalid configuration file format")
)
