package keycustody

import (
	"context"
	"errors"
	"fmt"

	"github.com/erauner12/journalsync/internal/syncx"
	"github.com/rs/zerolog/log"
)

// Escrow is the server side of key custody
type Escrow interface {
	GetKeys(ctx context.Context) (syncx.WrappedKey, error)
	PutKeys(ctx context.Context, key syncx.WrappedKey, createOnly bool) error
}

// KeyCache keeps the last wrapped key on the device so unlock works offline
type KeyCache interface {
	LoadWrappedKey(ctx context.Context) (syncx.WrappedKey, bool, error)
	SaveWrappedKey(ctx context.Context, key syncx.WrappedKey) error
}

// Unlocker drives NoKey -> KeyActive against the escrow
type Unlocker struct {
	Escrow     Escrow
	Cache      KeyCache // optional
	Custody    *Custody
	Iterations int // zero means DefaultIterations
}

func (u *Unlocker) iterations() int {
	if u.Iterations > 0 {
		return u.Iterations
	}
	return DefaultIterations
}

// Unlock loads or creates the user's data key and installs it.
// created is true when this device minted the key.
func (u *Unlocker) Unlock(ctx context.Context, passphrase []byte) (created bool, err error) {
	wk, err := u.fetch(ctx)
	if errors.Is(err, syncx.ErrKeysNotFound) {
		wk, created, err = u.create(ctx, passphrase)
	}
	if err != nil {
		return false, err
	}

	dek, res := Unwrap(wk, passphrase)
	if res != UnwrapOK {
		log.Ctx(ctx).Warn().Str("result", res.String()).Msg("unwrap failed")
		return false, res.Err()
	}
	defer zero(dek)

	u.Custody.Install(dek)
	u.remember(ctx, wk)
	return created, nil
}

// create mints a DEK and stores it create-only. If another device won the
// race the stored key is returned instead and the local DEK is discarded.
func (u *Unlocker) create(ctx context.Context, passphrase []byte) (syncx.WrappedKey, bool, error) {
	dek, err := NewDEK()
	if err != nil {
		return syncx.WrappedKey{}, false, err
	}
	defer zero(dek)

	wk, err := Wrap(dek, passphrase, u.iterations())
	if err != nil {
		return syncx.WrappedKey{}, false, err
	}

	err = u.Escrow.PutKeys(ctx, wk, true)
	if errors.Is(err, syncx.ErrKeysExist) {
		log.Ctx(ctx).Info().Msg("data key was created by another device")
		wk, err = u.Escrow.GetKeys(ctx)
		if err != nil {
			return syncx.WrappedKey{}, false, fmt.Errorf("reload wrapped key: %w", err)
		}
		return wk, false, nil
	}
	if err != nil {
		return syncx.WrappedKey{}, false, fmt.Errorf("store wrapped key: %w", err)
	}
	return wk, true, nil
}

// fetch reads the escrow, falling back to the local cache when the server is unreachable
func (u *Unlocker) fetch(ctx context.Context) (syncx.WrappedKey, error) {
	wk, err := u.Escrow.GetKeys(ctx)
	if err == nil || errors.Is(err, syncx.ErrKeysNotFound) || u.Cache == nil {
		return wk, err
	}

	cached, ok, cerr := u.Cache.LoadWrappedKey(ctx)
	if cerr != nil || !ok {
		return syncx.WrappedKey{}, err
	}
	log.Ctx(ctx).Warn().Err(err).Msg("escrow unavailable, unlocking from cached wrapped key")
	return cached, nil
}

func (u *Unlocker) remember(ctx context.Context, wk syncx.WrappedKey) {
	if u.Cache == nil {
		return
	}
	if err := u.Cache.SaveWrappedKey(ctx, wk); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to cache wrapped key")
	}
}

// Rewrap re-encrypts the existing data key under a new passphrase with a
// fresh salt. The data key itself never changes.
func (u *Unlocker) Rewrap(ctx context.Context, oldPass, newPass []byte) error {
	wk, err := u.Escrow.GetKeys(ctx)
	if err != nil {
		return fmt.Errorf("load wrapped key: %w", err)
	}

	dek, res := Unwrap(wk, oldPass)
	if res != UnwrapOK {
		return res.Err()
	}
	defer zero(dek)

	next, err := Wrap(dek, newPass, u.iterations())
	if err != nil {
		return err
	}
	if err := u.Escrow.PutKeys(ctx, next, false); err != nil {
		return fmt.Errorf("store rewrapped key: %w", err)
	}

	u.remember(ctx, next)
	return nil
}
