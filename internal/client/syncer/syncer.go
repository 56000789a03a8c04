// Package syncer runs one client sync cycle: drain the outbox, then pull
// remote changes to completion, then apply the conflict policy.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erauner12/journalsync/internal/client/keycustody"
	"github.com/erauner12/journalsync/internal/client/localstore"
	"github.com/erauner12/journalsync/internal/syncx"
	"github.com/rs/zerolog/log"
)

// Transport is the server side of the protocol
type Transport interface {
	Push(ctx context.Context, items []syncx.PushItem) (syncx.PushResponse, error)
	Pull(ctx context.Context, cursor string, limit int) (syncx.PullResponse, error)
}

// Syncer reconciles one local store with the server
type Syncer struct {
	Transport Transport
	Store     *localstore.Store
	Custody   *keycustody.Custody
	Codec     *keycustody.Codec
	Policy    ConflictPolicy

	BatchSize int // zero means syncx.MaxPushBatch
	PageSize  int // zero means syncx.DefaultPullLimit
}

// Report summarizes a cycle
type Report struct {
	Pushed          int
	Accepted        int
	Conflicted      []string
	Failed          []string
	Retrying        int
	Pages           int
	Pulled          int
	Applied         int
	DecryptFailures []string
	Resolved        int
}

// RunCycle runs push then pull then conflict resolution. Only one cycle
// runs per store at a time; a concurrent call gets localstore.ErrSyncInProgress.
// On error the report covers the work completed so far and the outbox and
// cursor are left consistent.
func (s *Syncer) RunCycle(ctx context.Context) (*Report, error) {
	unlock, err := s.Store.TryLockSync(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	lease, err := s.Custody.Lease()
	if err != nil {
		return nil, err
	}

	rep := &Report{}
	logger := log.Ctx(ctx)
	start := time.Now()

	if err := s.push(ctx, rep); err != nil {
		return rep, fmt.Errorf("push: %w", err)
	}
	if err := s.pull(ctx, lease, rep); err != nil {
		return rep, fmt.Errorf("pull: %w", err)
	}

	requeued, err := s.resolve(ctx, lease, rep)
	if err != nil {
		return rep, fmt.Errorf("resolve conflicts: %w", err)
	}
	if requeued > 0 {
		if err := s.push(ctx, rep); err != nil {
			return rep, fmt.Errorf("push resolved: %w", err)
		}
	}

	if err := s.Store.Meta.SetLastSync(ctx, syncx.RFC3339(time.Now())); err != nil {
		return rep, err
	}

	logger.Info().
		Int("pushed", rep.Pushed).
		Int("accepted", rep.Accepted).
		Int("conflicted", len(rep.Conflicted)).
		Int("failed", len(rep.Failed)).
		Int("pulled", rep.Pulled).
		Int("decrypt_failures", len(rep.DecryptFailures)).
		Dur("duration", time.Since(start)).
		Msg("sync cycle complete")

	return rep, nil
}

func (s *Syncer) batchSize() int {
	if s.BatchSize > 0 && s.BatchSize <= syncx.MaxPushBatch {
		return s.BatchSize
	}
	return syncx.MaxPushBatch
}

func (s *Syncer) pageSize() int {
	if s.PageSize > 0 {
		return syncx.ClampLimit(s.PageSize, syncx.MaxPullLimit)
	}
	return syncx.DefaultPullLimit
}

// push drains pending entries in insertion order. Entries left pending by a
// transient rejection are skipped for the rest of this pass.
func (s *Syncer) push(ctx context.Context, rep *Report) error {
	var afterSeq int64
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := s.Store.Outbox.Pending(ctx, afterSeq, s.batchSize())
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		items := make([]syncx.PushItem, len(batch))
		versions := make(map[string]int64, len(batch))
		for i, e := range batch {
			items[i] = syncx.PushItem{
				RecordID:        e.RecordID,
				Type:            e.Type,
				Version:         e.Version,
				Payload:         e.Payload,
				ClientUpdatedAt: e.ClientUpdatedAt,
				Deleted:         e.Deleted,
			}
			versions[e.RecordID] = e.Version
		}

		resp, err := s.Transport.Push(ctx, items)
		if err != nil {
			return err
		}
		rep.Pushed += len(items)

		if err := s.applyPushResult(ctx, resp, versions, rep); err != nil {
			return err
		}
		afterSeq = batch[len(batch)-1].Seq
	}
}

func (s *Syncer) applyPushResult(ctx context.Context, resp syncx.PushResponse, versions map[string]int64, rep *Report) error {
	logger := log.Ctx(ctx)

	for _, id := range resp.Accepted {
		ok, err := s.Store.Accept(ctx, id, versions[id], resp.ServerTime)
		if err != nil {
			return err
		}
		if ok {
			rep.Accepted++
		}
	}

	for _, rej := range resp.Rejected {
		version := versions[rej.RecordID]
		var err error
		switch {
		case rej.Reason == syncx.ReasonVersionConflict:
			var serverVersion int64
			if rej.ServerVersion != nil {
				serverVersion = *rej.ServerVersion
			}
			_, err = s.Store.Outbox.MarkConflicted(ctx, rej.RecordID, version, serverVersion)
			rep.Conflicted = append(rep.Conflicted, rej.RecordID)
		case rej.Reason.Retryable():
			_, err = s.Store.Outbox.NoteRetry(ctx, rej.RecordID, version, string(rej.Reason))
			rep.Retrying++
		default:
			_, err = s.Store.Outbox.MarkFailed(ctx, rej.RecordID, version, string(rej.Reason))
			rep.Failed = append(rep.Failed, rej.RecordID)
		}
		if err != nil {
			return err
		}
		logger.Debug().Str("record_id", rej.RecordID).Str("reason", string(rej.Reason)).Msg("push rejected")
	}
	return nil
}

// pull fetches pages until the server signals the end. The cursor is
// persisted with each full page in the same transaction as its records,
// and never advanced past a partial page.
func (s *Syncer) pull(ctx context.Context, lease keycustody.Lease, rep *Report) error {
	cursor, err := s.Store.Meta.Cursor(ctx)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := s.Transport.Pull(ctx, cursor, s.pageSize())
		if err != nil {
			return err
		}
		rep.Pages++
		rep.Pulled += len(page.Records)

		apply := make([]localstore.Record, 0, len(page.Records))
		for _, r := range page.Records {
			if !r.Deleted {
				if _, err := s.Codec.DecryptWith(lease, r.Payload); err != nil {
					if errors.Is(err, keycustody.ErrKeyStale) || errors.Is(err, keycustody.ErrNoKey) {
						return err
					}
					log.Ctx(ctx).Warn().Err(err).Str("record_id", r.RecordID).Msg("skipping record that failed to decrypt")
					rep.DecryptFailures = append(rep.DecryptFailures, r.RecordID)
					continue
				}
			}
			apply = append(apply, localstore.Record{
				RecordID:        r.RecordID,
				Type:            r.Type,
				Version:         r.Version,
				Payload:         r.Payload,
				ClientUpdatedAt: r.ClientUpdatedAt,
				ServerUpdatedAt: r.ServerUpdatedAt,
				Deleted:         r.Deleted,
			})
		}

		next := page.NextCursor
		err = s.Store.InTx(ctx, func(ctx context.Context, tx localstore.Repos) error {
			for _, rec := range apply {
				ok, err := tx.Records.ApplyRemote(ctx, rec)
				if err != nil {
					return err
				}
				if ok {
					rep.Applied++
				}
			}
			if next == "" {
				return nil
			}
			return tx.Meta.SetCursor(ctx, next)
		})
		if err != nil {
			return err
		}

		if next == "" || next == cursor {
			return nil
		}
		cursor = next
	}
}

// resolve applies the policy to conflicted entries and returns how many
// were re-enqueued for push
func (s *Syncer) resolve(ctx context.Context, lease keycustody.Lease, rep *Report) (int, error) {
	if s.Policy == "" || s.Policy == PolicyManual {
		return 0, nil
	}

	conflicts, err := s.Store.Outbox.List(ctx, localstore.StateConflicted)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, e := range conflicts {
		if err := s.resolveEntry(ctx, lease, e, s.Policy); err != nil {
			return requeued, err
		}
		rep.Resolved++
		if s.Policy == PolicyKeepLocal {
			requeued++
		}
	}
	return requeued, nil
}

// Resolve settles one conflicted record by hand
func (s *Syncer) Resolve(ctx context.Context, recordID string, choice ConflictPolicy) error {
	if choice != PolicyKeepLocal && choice != PolicyKeepServer {
		return fmt.Errorf("resolve needs keep-local or keep-server, got %q", choice)
	}

	lease, err := s.Custody.Lease()
	if err != nil {
		return err
	}
	e, ok, err := s.Store.Outbox.Get(ctx, recordID)
	if err != nil {
		return err
	}
	if !ok || e.State != localstore.StateConflicted {
		return fmt.Errorf("record %s has no conflict to resolve", recordID)
	}
	return s.resolveEntry(ctx, lease, e, choice)
}

func (s *Syncer) resolveEntry(ctx context.Context, lease keycustody.Lease, e localstore.OutboxEntry, choice ConflictPolicy) error {
	logger := log.Ctx(ctx).With().Str("record_id", e.RecordID).Str("policy", string(choice)).Logger()

	if choice == PolicyKeepServer {
		logger.Info().Msg("conflict resolved, local change discarded")
		return s.Store.Outbox.Remove(ctx, e.RecordID)
	}

	base := e.ServerVersion
	if rec, ok, err := s.Store.Records.Get(ctx, e.RecordID); err != nil {
		return err
	} else if ok && rec.Version > base {
		base = rec.Version
	}

	payload := e.Payload
	if !e.Deleted {
		pt, err := s.Codec.DecryptWith(lease, e.Payload)
		if err != nil {
			return err
		}
		if payload, err = s.Codec.EncryptWith(lease, pt); err != nil {
			return err
		}
	}

	e.Version = base + 1
	e.Payload = payload
	e.State = localstore.StatePending
	e.ServerVersion = 0
	e.Reason = ""
	logger.Info().Int64("version", e.Version).Msg("conflict resolved, local change re-enqueued")
	return s.Store.Outbox.Enqueue(ctx, e)
}
