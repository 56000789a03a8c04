package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erauner12/journalsync/internal/syncx"
)

const (
	keyCursor     = "pull_cursor"
	keyWrappedKey = "wrapped_key"
	keyUserID     = "user_id"
	keyLastSync   = "last_sync"
)

// Meta is a small key/value table
type Meta struct {
	db DBTX
}

// Get returns (nil, nil) when key is absent
func (m *Meta) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := m.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata[%s]: %w", key, err)
	}
	return value, nil
}

func (m *Meta) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata[%s]: %w", key, err)
	}
	return nil
}

func (m *Meta) Delete(ctx context.Context, key string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete metadata[%s]: %w", key, err)
	}
	return nil
}

// Cursor returns the persisted pull boundary, "" meaning from the start
func (m *Meta) Cursor(ctx context.Context) (string, error) {
	v, err := m.Get(ctx, keyCursor)
	return string(v), err
}

func (m *Meta) SetCursor(ctx context.Context, cursor string) error {
	return m.Set(ctx, keyCursor, []byte(cursor))
}

// LastSync returns the server time of the last completed cycle
func (m *Meta) LastSync(ctx context.Context) (string, error) {
	v, err := m.Get(ctx, keyLastSync)
	return string(v), err
}

func (m *Meta) SetLastSync(ctx context.Context, serverTime string) error {
	return m.Set(ctx, keyLastSync, []byte(serverTime))
}

// UserID returns the owner this store was created for
func (m *Meta) UserID(ctx context.Context) (string, error) {
	v, err := m.Get(ctx, keyUserID)
	return string(v), err
}

func (m *Meta) SetUserID(ctx context.Context, id string) error {
	return m.Set(ctx, keyUserID, []byte(id))
}

// LoadWrappedKey returns the cached escrow copy
func (m *Meta) LoadWrappedKey(ctx context.Context) (syncx.WrappedKey, bool, error) {
	v, err := m.Get(ctx, keyWrappedKey)
	if err != nil || v == nil {
		return syncx.WrappedKey{}, false, err
	}
	var wk syncx.WrappedKey
	if err := json.Unmarshal(v, &wk); err != nil {
		return syncx.WrappedKey{}, false, fmt.Errorf("decode cached wrapped key: %w", err)
	}
	return wk, true, nil
}

func (m *Meta) SaveWrappedKey(ctx context.Context, wk syncx.WrappedKey) error {
	v, err := json.Marshal(wk)
	if err != nil {
		return err
	}
	return m.Set(ctx, keyWrappedKey, v)
}
