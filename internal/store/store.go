// Package store defines the persistence seams used by the sync and escrow
// services. Postgres and in-memory implementations live in subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/erauner12/journalsync/internal/syncx"
)

// ErrUniqueRace is returned by a Records implementation when a write lost a
// uniqueness race it could not resolve on its own. Callers must re-check
// ownership before deciding what to report.
var ErrUniqueRace = errors.New("unique constraint race")

// Record is the server-side row for one synced item
type Record struct {
	RecordID        string
	OwnerID         string
	Type            string
	Version         int64
	Payload         string
	ClientUpdatedAt time.Time
	ServerUpdatedAt time.Time
	Deleted         bool
}

// Position returns the keyset position of r in pull order
func (r Record) Position() syncx.Position {
	return syncx.Position{ServerUpdatedAt: r.ServerUpdatedAt, RecordID: r.RecordID}
}

// Outcome classifies a conditional write
type Outcome int

const (
	// WriteApplied means the row was created or updated
	WriteApplied Outcome = iota + 1
	// WriteStale means the stored version is >= the proposed one
	WriteStale
	// WriteForeign means the record exists under another owner
	WriteForeign
)

func (o Outcome) String() string {
	switch o {
	case WriteApplied:
		return "applied"
	case WriteStale:
		return "stale"
	case WriteForeign:
		return "foreign"
	default:
		return "unknown"
	}
}

// WriteResult carries the stored version and timestamp after a conditional write.
// For WriteForeign both fields are zero so nothing about the other owner leaks.
type WriteResult struct {
	Outcome         Outcome
	Version         int64
	ServerUpdatedAt time.Time
}

// Records is the record store used by the sync service
type Records interface {
	// ConditionalUpsert creates rec, or replaces the stored row when it has
	// the same owner and a strictly lower version. The check and the write
	// must be atomic. ServerUpdatedAt is assigned by the store.
	ConditionalUpsert(ctx context.Context, rec Record) (WriteResult, error)

	// Owner returns the owner of recordID, or false if it does not exist
	Owner(ctx context.Context, recordID string) (string, bool, error)

	// Position returns where recordID sits in ownerID's pull stream.
	// Records owned by someone else are reported as not found.
	Position(ctx context.Context, ownerID, recordID string) (syncx.Position, bool, error)

	// Page returns up to n records of ownerID ordered by (ServerUpdatedAt, RecordID),
	// strictly after the given position (nil means from the beginning)
	Page(ctx context.Context, ownerID string, after *syncx.Position, n int) ([]Record, error)
}

// Escrow stores wrapped key material, one entry per owner
type Escrow interface {
	// GetWrappedKey returns syncx.ErrKeysNotFound when ownerID never stored a key
	GetWrappedKey(ctx context.Context, ownerID string) (syncx.WrappedKey, error)

	// PutWrappedKey stores key for ownerID. With createOnly it returns
	// syncx.ErrKeysExist instead of replacing an existing entry.
	PutWrappedKey(ctx context.Context, ownerID string, key syncx.WrappedKey, createOnly bool) error
}
