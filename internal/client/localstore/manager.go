package localstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager owns the single open Store and swaps it when the signed-in user
// changes. Readers hold the read lock for the duration of their work; a
// switch takes the write lock, so it waits for them to drain and nobody
// ever sees a half-closed handle.
type Manager struct {
	dir string

	mu     sync.RWMutex
	userID string
	store  *Store
}

// NewManager keeps per-user databases under dir
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// PathFor is the database file for userID
func (m *Manager) PathFor(userID string) string {
	sum := sha256.Sum256([]byte(userID))
	return filepath.Join(m.dir, "journal-"+hex.EncodeToString(sum[:8])+".db")
}

// Current returns the user whose store is open, or ""
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// With runs fn against the open store while holding off any switch
func (m *Manager) With(ctx context.Context, fn func(*Store) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.store == nil {
		return ErrNoStore
	}
	return fn(m.store)
}

// Switch makes userID's store current. Switching away from another user
// closes and deletes that user's file; unless discardUnsynced is set it
// refuses while the old store still has queued mutations.
func (m *Manager) Switch(ctx context.Context, userID string, discardUnsynced bool) error {
	if userID == "" {
		return errors.New("user id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store != nil && m.userID == userID {
		return nil
	}

	if m.store != nil {
		if err := m.retire(ctx, discardUnsynced); err != nil {
			return err
		}
	} else if err := m.purgeOthers(ctx, userID, discardUnsynced); err != nil {
		return err
	}

	if err := os.MkdirAll(m.dir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := Open(ctx, m.PathFor(userID))
	if err != nil {
		return err
	}
	if err := st.Meta.SetUserID(ctx, userID); err != nil {
		st.Close()
		return err
	}

	m.store = st
	m.userID = userID
	log.Ctx(ctx).Info().Str("user_id", userID).Msg("local store switched")
	return nil
}

// Close closes the open store without deleting it
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	m.userID = ""
	return err
}

// Purge closes and deletes the current user's store
func (m *Manager) Purge(ctx context.Context, discardUnsynced bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	return m.retire(ctx, discardUnsynced)
}

// retire closes and removes the current store. Caller holds the write lock.
func (m *Manager) retire(ctx context.Context, discardUnsynced bool) error {
	if !discardUnsynced {
		counts, err := m.store.Outbox.Counts(ctx)
		if err != nil {
			return err
		}
		if n := counts[StatePending] + counts[StateConflicted]; n > 0 {
			return fmt.Errorf("%w: %d queued", ErrUnsyncedData, n)
		}
	}

	path := m.store.Path()
	if err := m.store.Close(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("failed to close local store")
	}
	m.store = nil
	m.userID = ""
	return removeDB(path)
}

// purgeOthers deletes databases left behind by a previous user. Without
// discardUnsynced a leftover with queued mutations is kept and reported.
func (m *Manager) purgeOthers(ctx context.Context, userID string, discardUnsynced bool) error {
	matches, err := filepath.Glob(filepath.Join(m.dir, "journal-*.db"))
	if err != nil {
		return err
	}
	keep := m.PathFor(userID)
	for _, path := range matches {
		if path == keep {
			continue
		}
		if !discardUnsynced {
			st, err := Open(ctx, path)
			if err != nil {
				return err
			}
			counts, err := st.Outbox.Counts(ctx)
			st.Close()
			if err != nil {
				return err
			}
			if n := counts[StatePending] + counts[StateConflicted]; n > 0 {
				return fmt.Errorf("%w: %d queued in %s", ErrUnsyncedData, n, filepath.Base(path))
			}
		}
		if err := removeDB(path); err != nil {
			return err
		}
	}
	return nil
}

func removeDB(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + ".lock"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}
