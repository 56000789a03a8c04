package localstore

import (
	"context"
	"sort"
)

// Entry is the read view of one record: the outbox overlay if present,
// otherwise the server mirror
type Entry struct {
	Record
	State         string // "synced" or an EntryState
	ServerVersion int64
	Reason        string
}

const StateSynced = "synced"

// Accept promotes an accepted outbox entry into the mirror and removes it.
// Nothing happens when the entry was replaced by a newer mutation after it
// was pushed; that mutation stays queued.
func (s *Store) Accept(ctx context.Context, id string, version int64, serverTime string) (bool, error) {
	var accepted bool
	err := s.InTx(ctx, func(ctx context.Context, tx Repos) error {
		e, ok, err := tx.Outbox.Get(ctx, id)
		if err != nil || !ok || e.Version != version {
			return err
		}

		if _, err := tx.Records.ApplyRemote(ctx, Record{
			RecordID:        e.RecordID,
			Type:            e.Type,
			Version:         e.Version,
			Payload:         e.Payload,
			ClientUpdatedAt: e.ClientUpdatedAt,
			ServerUpdatedAt: serverTime,
			Deleted:         e.Deleted,
		}); err != nil {
			return err
		}
		accepted = true
		return tx.Outbox.Remove(ctx, id)
	})
	return accepted, err
}

// Lookup returns the current view of one record
func (s *Store) Lookup(ctx context.Context, id string) (Entry, bool, error) {
	e, ok, err := s.Outbox.Get(ctx, id)
	if err != nil {
		return Entry{}, false, err
	}
	if ok {
		return overlay(e), true, nil
	}

	rec, ok, err := s.Records.Get(ctx, id)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	return Entry{Record: rec, State: StateSynced}, true, nil
}

// View merges the mirror with the outbox, newest client edit first.
// Tombstones are included; callers filter them.
func (s *Store) View(ctx context.Context) ([]Entry, error) {
	recs, err := s.Records.List(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.Outbox.List(ctx, "")
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Entry, len(recs)+len(pending))
	for _, r := range recs {
		byID[r.RecordID] = Entry{Record: r, State: StateSynced}
	}
	for _, e := range pending {
		byID[e.RecordID] = overlay(e)
	}

	out := make([]Entry, 0, len(byID))
	for _, e := range byID {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClientUpdatedAt == out[j].ClientUpdatedAt {
			return out[i].RecordID < out[j].RecordID
		}
		return out[i].ClientUpdatedAt > out[j].ClientUpdatedAt
	})
	return out, nil
}

func overlay(e OutboxEntry) Entry {
	return Entry{
		Record: Record{
			RecordID:        e.RecordID,
			Type:            e.Type,
			Version:         e.Version,
			Payload:         e.Payload,
			ClientUpdatedAt: e.ClientUpdatedAt,
			Deleted:         e.Deleted,
		},
		State:         string(e.State),
		ServerVersion: e.ServerVersion,
		Reason:        e.Reason,
	}
}
