// Package vault is the client-side entry point tying key custody, the local
// store and the sync cycle together
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erauner12/journalsync/internal/client/keycustody"
	"github.com/erauner12/journalsync/internal/client/localstore"
	"github.com/erauner12/journalsync/internal/client/syncer"
	"github.com/erauner12/journalsync/internal/syncx"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Record types
const (
	TypeJournal = "journal_entry"
	TypePrayer  = "prayer_request"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrEmptyBody = errors.New("record body is empty")
)

// Remote is what the vault needs from the server
type Remote interface {
	syncer.Transport
	keycustody.Escrow
}

// Note is a decrypted record as shown to the user
type Note struct {
	ID            string
	Type          string
	Body          string
	Version       int64
	UpdatedAt     string
	State         string
	ServerVersion int64
	Reason        string
}

// Vault is one signed-in user's journal on this device
type Vault struct {
	manager *localstore.Manager
	custody *keycustody.Custody
	codec   *keycustody.Codec
	remote  Remote

	Policy     syncer.ConflictPolicy
	Iterations int
	Now        func() time.Time
}

// New creates a vault that keeps its databases under dataDir
func New(dataDir string, remote Remote) *Vault {
	custody := keycustody.New()
	return &Vault{
		manager: localstore.NewManager(dataDir),
		custody: custody,
		codec:   keycustody.NewCodec(custody),
		remote:  remote,
		Policy:  syncer.PolicyManual,
		Now:     time.Now,
	}
}

// Open selects the local store for userID
func (v *Vault) Open(ctx context.Context, userID string, discardUnsynced bool) error {
	if cur := v.manager.Current(); cur != "" && cur != userID {
		v.custody.Clear()
	}
	return v.manager.Switch(ctx, userID, discardUnsynced)
}

// Close locks the vault and closes the store
func (v *Vault) Close() error {
	v.custody.Clear()
	return v.manager.Close()
}

// Unlock derives the key from passphrase. created reports a first unlock
// that minted the user's data key.
func (v *Vault) Unlock(ctx context.Context, passphrase []byte) (created bool, err error) {
	err = v.manager.With(ctx, func(st *localstore.Store) error {
		u := v.unlocker(st)
		created, err = u.Unlock(ctx, passphrase)
		return err
	})
	return created, err
}

// ChangePassphrase rewraps the data key under a new passphrase
func (v *Vault) ChangePassphrase(ctx context.Context, oldPass, newPass []byte) error {
	return v.manager.With(ctx, func(st *localstore.Store) error {
		return v.unlocker(st).Rewrap(ctx, oldPass, newPass)
	})
}

func (v *Vault) unlocker(st *localstore.Store) *keycustody.Unlocker {
	return &keycustody.Unlocker{
		Escrow:     v.remote,
		Cache:      st.Meta,
		Custody:    v.custody,
		Iterations: v.Iterations,
	}
}

// Lock clears the data key
func (v *Vault) Lock() {
	v.custody.Clear()
}

// Unlocked reports whether a data key is loaded
func (v *Vault) Unlocked() bool {
	return v.custody.Active()
}

// Logout clears the key and deletes the local store
func (v *Vault) Logout(ctx context.Context, discardUnsynced bool) error {
	v.custody.Clear()
	return v.manager.Purge(ctx, discardUnsynced)
}

// Add encrypts body as a new record and queues it
func (v *Vault) Add(ctx context.Context, typ, body string) (string, error) {
	if body == "" {
		return "", ErrEmptyBody
	}
	id := uuid.NewString()
	return id, v.mutate(ctx, id, typ, body, false)
}

// Update replaces the body of an existing record
func (v *Vault) Update(ctx context.Context, id, body string) error {
	if body == "" {
		return ErrEmptyBody
	}
	n, err := v.Get(ctx, id)
	if err != nil {
		return err
	}
	return v.mutate(ctx, id, n.Type, body, false)
}

// Delete queues a tombstone for id
func (v *Vault) Delete(ctx context.Context, id string) error {
	n, err := v.Get(ctx, id)
	if err != nil {
		return err
	}
	return v.mutate(ctx, id, n.Type, "", true)
}

// mutate writes one local change. The proposed version is one above both
// the server mirror and any queued entry. A conflicted entry keeps its
// state and version so the conflict still has to be resolved.
func (v *Vault) mutate(ctx context.Context, id, typ, body string, deleted bool) error {
	var payload string
	if !deleted {
		var err error
		if payload, err = v.codec.Encrypt([]byte(body)); err != nil {
			return err
		}
	}

	return v.manager.With(ctx, func(st *localstore.Store) error {
		return st.InTx(ctx, func(ctx context.Context, tx localstore.Repos) error {
			rec, hasRec, err := tx.Records.Get(ctx, id)
			if err != nil {
				return err
			}
			queued, hasQueued, err := tx.Outbox.Get(ctx, id)
			if err != nil {
				return err
			}

			next := localstore.OutboxEntry{
				RecordID:        id,
				Type:            typ,
				Payload:         payload,
				ClientUpdatedAt: syncx.RFC3339(v.Now()),
				Deleted:         deleted,
				State:           localstore.StatePending,
			}

			var base int64
			if hasRec {
				base = rec.Version
			}
			if hasQueued && queued.Version > base {
				base = queued.Version
			}
			next.Version = base + 1

			if hasQueued && queued.State == localstore.StateConflicted {
				next.Version = queued.Version
				next.State = localstore.StateConflicted
				next.ServerVersion = queued.ServerVersion
				next.Reason = queued.Reason
			}

			log.Ctx(ctx).Debug().Str("record_id", id).Int64("version", next.Version).Bool("deleted", deleted).Msg("local change queued")
			return tx.Outbox.Enqueue(ctx, next)
		})
	})
}

// Get returns the decrypted current view of id
func (v *Vault) Get(ctx context.Context, id string) (Note, error) {
	var n Note
	err := v.manager.With(ctx, func(st *localstore.Store) error {
		e, ok, err := st.Lookup(ctx, id)
		if err != nil {
			return err
		}
		if !ok || e.Deleted {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		n, err = v.decode(e)
		return err
	})
	return n, err
}

// List returns every live record, newest first. Records that fail to
// decrypt are skipped and logged.
func (v *Vault) List(ctx context.Context) ([]Note, error) {
	var out []Note
	err := v.manager.With(ctx, func(st *localstore.Store) error {
		entries, err := st.View(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Deleted {
				continue
			}
			n, err := v.decode(e)
			if errors.Is(err, keycustody.ErrDecrypt) {
				log.Ctx(ctx).Warn().Str("record_id", e.RecordID).Msg("skipping record that failed to decrypt")
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

func (v *Vault) decode(e localstore.Entry) (Note, error) {
	pt, err := v.codec.Decrypt(e.Payload)
	if err != nil {
		return Note{}, err
	}
	return Note{
		ID:            e.RecordID,
		Type:          e.Type,
		Body:          string(pt),
		Version:       e.Version,
		UpdatedAt:     e.ClientUpdatedAt,
		State:         e.State,
		ServerVersion: e.ServerVersion,
		Reason:        e.Reason,
	}, nil
}

func (v *Vault) newSyncer(st *localstore.Store) *syncer.Syncer {
	return &syncer.Syncer{
		Transport: v.remote,
		Store:     st,
		Custody:   v.custody,
		Codec:     v.codec,
		Policy:    v.Policy,
	}
}

// Sync runs one sync cycle
func (v *Vault) Sync(ctx context.Context) (*syncer.Report, error) {
	var rep *syncer.Report
	err := v.manager.With(ctx, func(st *localstore.Store) error {
		var err error
		rep, err = v.newSyncer(st).RunCycle(ctx)
		return err
	})
	return rep, err
}

// Conflicts lists records parked by version_conflict
func (v *Vault) Conflicts(ctx context.Context) ([]Note, error) {
	var out []Note
	err := v.manager.With(ctx, func(st *localstore.Store) error {
		entries, err := st.Outbox.List(ctx, localstore.StateConflicted)
		if err != nil {
			return err
		}
		for _, e := range entries {
			n := Note{
				ID:            e.RecordID,
				Type:          e.Type,
				Version:       e.Version,
				UpdatedAt:     e.ClientUpdatedAt,
				State:         string(e.State),
				ServerVersion: e.ServerVersion,
				Reason:        e.Reason,
			}
			if !e.Deleted {
				pt, err := v.codec.Decrypt(e.Payload)
				if err != nil {
					return err
				}
				n.Body = string(pt)
			}
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

// Resolve settles one conflict
func (v *Vault) Resolve(ctx context.Context, id string, choice syncer.ConflictPolicy) error {
	return v.manager.With(ctx, func(st *localstore.Store) error {
		return v.newSyncer(st).Resolve(ctx, id, choice)
	})
}

// Status is a snapshot for `journal status`
type Status struct {
	UserID   string
	Unlocked bool
	Pending  int
	Conflict int
	Failed   int
	Cursor   string
	LastSync string
}

// Status reports local sync state
func (v *Vault) Status(ctx context.Context) (Status, error) {
	s := Status{UserID: v.manager.Current(), Unlocked: v.custody.Active()}
	err := v.manager.With(ctx, func(st *localstore.Store) error {
		counts, err := st.Outbox.Counts(ctx)
		if err != nil {
			return err
		}
		s.Pending = counts[localstore.StatePending]
		s.Conflict = counts[localstore.StateConflicted]
		s.Failed = counts[localstore.StateFailed]

		if s.Cursor, err = st.Meta.Cursor(ctx); err != nil {
			return err
		}
		s.LastSync, err = st.Meta.LastSync(ctx)
		return err
	})
	return s, err
}
