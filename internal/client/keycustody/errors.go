package keycustody

import "errors"

var (
	// ErrWrongPassphrase means the KEK derived from the passphrase failed to
	// authenticate the wrapped key. The user must re-enter the passphrase.
	ErrWrongPassphrase = errors.New("wrong passphrase")

	// ErrCorruptKeyMaterial means the escrowed key cannot be parsed at all
	ErrCorruptKeyMaterial = errors.New("corrupt key material")

	// ErrDecrypt is returned for any record payload that fails authentication
	ErrDecrypt = errors.New("decryption failure")

	// ErrNoKey is returned when no data key is installed
	ErrNoKey = errors.New("no data key loaded")

	// ErrKeyStale is returned when the key was cleared or replaced after a lease was taken
	ErrKeyStale = errors.New("data key lease is stale")
)
