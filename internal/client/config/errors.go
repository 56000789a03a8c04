package config

import "errors"

var (
	// ErrMissingServerURL indicates that the sync server URL is not configured
	ErrMissingServerURL = errors.New("serverUrl is required in configuration")

	// ErrMissingDataDir indicates that there is nowhere to keep local stores
	ErrMissingDataDir = errors.New("dataDir is required in configuration")

	// ErrMissingCredentials indicates that neither a token nor a debug subject is set
	ErrMissingCredentials = errors.New("token or debugSub is required")

	// ErrWeakKDF indicates kdfIterations below the accepted minimum
	ErrWeakKDF = errors.New("kdfIterations is below the minimum")

	// ErrUnknownIdentity indicates that no user id could be derived
	ErrUnknownIdentity = errors.New("cannot determine user id; set userId")

	// ErrConfigFileNotFound indicates that the config file was not found
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrInvalidConfigFormat indicates that the config file has invalid JSON
	ErrInvalidConfigFormat = errors.New("invalid configuration file format")
)
