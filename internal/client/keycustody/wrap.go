package keycustody

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/erauner12/journalsync/internal/syncx"
)

const (
	KDFName           = "pbkdf2-sha256"
	DefaultIterations = 310000
	MinIterations     = 100000
)

// KDFParams is the JSON stored in the escrow's kdf.params
type KDFParams struct {
	Iterations int `json:"iterations"`
}

// UnwrapResult is the explicit outcome of unwrapping an escrowed key
type UnwrapResult int

const (
	UnwrapOK UnwrapResult = iota
	UnwrapWrongPassphrase
	UnwrapCorrupt
)

func (r UnwrapResult) String() string {
	switch r {
	case UnwrapOK:
		return "ok"
	case UnwrapWrongPassphrase:
		return "wrong_passphrase"
	default:
		return "corrupt"
	}
}

// Err maps the result onto the package sentinels; UnwrapOK maps to nil
func (r UnwrapResult) Err() error {
	switch r {
	case UnwrapOK:
		return nil
	case UnwrapWrongPassphrase:
		return ErrWrongPassphrase
	default:
		return ErrCorruptKeyMaterial
	}
}

// NewDEK generates a random data key
func NewDEK() ([]byte, error) {
	return randomBytes(KeySize)
}

// Wrap encrypts dek under a KEK derived from passphrase and a fresh salt
func Wrap(dek, passphrase []byte, iterations int) (syncx.WrappedKey, error) {
	if len(dek) != KeySize {
		return syncx.WrappedKey{}, fmt.Errorf("data key must be %d bytes, got %d", KeySize, len(dek))
	}
	if iterations < MinIterations {
		return syncx.WrappedKey{}, fmt.Errorf("kdf iterations %d below minimum %d", iterations, MinIterations)
	}

	salt, err := randomBytes(SaltSize)
	if err != nil {
		return syncx.WrappedKey{}, err
	}
	kek := deriveKEK(passphrase, salt, iterations)
	defer zero(kek)

	blob, err := seal(kek, dek)
	if err != nil {
		return syncx.WrappedKey{}, fmt.Errorf("wrap: %w", err)
	}

	params, err := json.Marshal(KDFParams{Iterations: iterations})
	if err != nil {
		return syncx.WrappedKey{}, err
	}

	return syncx.WrappedKey{
		KDF: syncx.KDF{
			Name:    KDFName,
			Params:  params,
			SaltB64: base64.StdEncoding.EncodeToString(salt),
		},
		WrappedDEKB64: base64.StdEncoding.EncodeToString(blob),
	}, nil
}

// Unwrap recovers the data key. A GCM authentication failure is reported as
// UnwrapWrongPassphrase; anything unparseable is UnwrapCorrupt.
func Unwrap(wk syncx.WrappedKey, passphrase []byte) ([]byte, UnwrapResult) {
	if wk.KDF.Name != KDFName {
		return nil, UnwrapCorrupt
	}

	var params KDFParams
	if err := json.Unmarshal(wk.KDF.Params, &params); err != nil || params.Iterations < MinIterations {
		return nil, UnwrapCorrupt
	}

	salt, err := base64.StdEncoding.DecodeString(wk.KDF.SaltB64)
	if err != nil || len(salt) == 0 {
		return nil, UnwrapCorrupt
	}

	blob, err := base64.StdEncoding.DecodeString(wk.WrappedDEKB64)
	if err != nil || len(blob) != NonceSize+KeySize+TagSize {
		return nil, UnwrapCorrupt
	}

	kek := deriveKEK(passphrase, salt, params.Iterations)
	defer zero(kek)

	dek, err := open(kek, blob)
	if err != nil {
		return nil, UnwrapWrongPassphrase
	}
	return dek, UnwrapOK
}
