// Package memstore is an in-memory implementation of the store interfaces.
// It backs STORE=memory deployments and service tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erauner12/journalsync/internal/store"
	"github.com/erauner12/journalsync/internal/syncx"
)

// Store keeps records and wrapped keys in maps guarded by one mutex
type Store struct {
	mu      sync.RWMutex
	records map[string]store.Record
	keys    map[string]syncx.WrappedKey
	now     func() time.Time
	last    time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		records: make(map[string]store.Record),
		keys:    make(map[string]syncx.WrappedKey),
		now:     time.Now,
	}
}

// WithClock overrides the time source (tests)
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// stamp returns a strictly increasing server timestamp at microsecond
// precision, matching what Postgres timestamptz can hold
func (s *Store) stamp() time.Time {
	t := s.now().UTC().Truncate(time.Microsecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func (s *Store) ConditionalUpsert(ctx context.Context, rec store.Record) (store.WriteResult, error) {
	if err := ctx.Err(); err != nil {
		return store.WriteResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.records[rec.RecordID]
	if exists && cur.OwnerID != rec.OwnerID {
		return store.WriteResult{Outcome: store.WriteForeign}, nil
	}
	if exists && rec.Version <= cur.Version {
		return store.WriteResult{
			Outcome:         store.WriteStale,
			Version:         cur.Version,
			ServerUpdatedAt: cur.ServerUpdatedAt,
		}, nil
	}

	rec.ServerUpdatedAt = s.stamp()
	s.records[rec.RecordID] = rec
	return store.WriteResult{
		Outcome:         store.WriteApplied,
		Version:         rec.Version,
		ServerUpdatedAt: rec.ServerUpdatedAt,
	}, nil
}

func (s *Store) Owner(ctx context.Context, recordID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordID]
	if !ok {
		return "", false, nil
	}
	return rec.OwnerID, true, nil
}

func (s *Store) Position(ctx context.Context, ownerID, recordID string) (syncx.Position, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordID]
	if !ok || rec.OwnerID != ownerID {
		return syncx.Position{}, false, nil
	}
	return rec.Position(), true, nil
}

func (s *Store) Page(ctx context.Context, ownerID string, after *syncx.Position, n int) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]store.Record, 0)
	for _, rec := range s.records {
		if rec.OwnerID != ownerID {
			continue
		}
		if after != nil && !after.Before(rec.Position()) {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Position().Before(out[j].Position())
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Get returns a copy of the stored record regardless of owner (tests, admin)
func (s *Store) Get(recordID string) (store.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordID]
	return rec, ok
}

func (s *Store) GetWrappedKey(ctx context.Context, ownerID string) (syncx.WrappedKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.keys[ownerID]
	if !ok {
		return syncx.WrappedKey{}, syncx.ErrKeysNotFound
	}
	return k, nil
}

func (s *Store) PutWrappedKey(ctx context.Context, ownerID string, key syncx.WrappedKey, createOnly bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[ownerID]; ok && createOnly {
		return syncx.ErrKeysExist
	}
	s.keys[ownerID] = key
	return nil
}

var (
	_ store.Records = (*Store)(nil)
	_ store.Escrow  = (*Store)(nil)
)
