// Package escrowservice stores and returns users' wrapped data keys.
// It validates only the envelope shape; key material is never unwrapped here.
package escrowservice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erauner12/journalsync/internal/store"
	"github.com/erauner12/journalsync/internal/syncx"
	"github.com/rs/zerolog/log"
)

// ErrInvalidKeyMaterial is returned for envelopes that cannot be a wrapped key
var ErrInvalidKeyMaterial = errors.New("invalid key material")

// minWrappedLen is nonce (12) + GCM tag (16); a wrapped 32-byte key is 60
const minWrappedLen = 12 + 16

// Service fronts an escrow store
type Service struct {
	Store store.Escrow
}

// New creates a Service
func New(s store.Escrow) *Service {
	return &Service{Store: s}
}

// Get returns ownerID's wrapped key or syncx.ErrKeysNotFound
func (s *Service) Get(ctx context.Context, ownerID string) (syncx.WrappedKey, error) {
	return s.Store.GetWrappedKey(ctx, ownerID)
}

// Put validates key and stores it for ownerID. With createOnly an existing
// entry is left untouched and syncx.ErrKeysExist is returned, so two devices
// racing through first unlock cannot both mint a data key.
func (s *Service) Put(ctx context.Context, ownerID string, key syncx.WrappedKey, createOnly bool) error {
	if err := Validate(key); err != nil {
		return err
	}
	if len(key.KDF.Params) == 0 {
		key.KDF.Params = json.RawMessage("{}")
	}

	if err := s.Store.PutWrappedKey(ctx, ownerID, key, createOnly); err != nil {
		return err
	}

	log.Ctx(ctx).Info().
		Str("kdf", key.KDF.Name).
		Bool("create_only", createOnly).
		Msg("wrapped key stored")
	return nil
}

// Validate checks the structure of a wrapped key envelope
func Validate(key syncx.WrappedKey) error {
	if key.KDF.Name == "" {
		return fmt.Errorf("%w: kdf name required", ErrInvalidKeyMaterial)
	}
	if len(key.KDF.Params) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(key.KDF.Params, &obj); err != nil {
			return fmt.Errorf("%w: kdf params must be a JSON object", ErrInvalidKeyMaterial)
		}
	}

	salt, err := base64.StdEncoding.DecodeString(key.KDF.SaltB64)
	if err != nil || len(salt) == 0 {
		return fmt.Errorf("%w: salt must be non-empty base64", ErrInvalidKeyMaterial)
	}

	wrapped, err := base64.StdEncoding.DecodeString(key.WrappedDEKB64)
	if err != nil {
		return fmt.Errorf("%w: wrapped key must be base64", ErrInvalidKeyMaterial)
	}
	if len(wrapped) <= minWrappedLen {
		return fmt.Errorf("%w: wrapped key too short", ErrInvalidKeyMaterial)
	}
	return nil
}
