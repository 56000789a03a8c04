package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// EntryState is where an outbox entry sits in reconciliation
type EntryState string

const (
	StatePending    EntryState = "pending"
	StateConflicted EntryState = "conflicted"
	StateFailed     EntryState = "failed"
)

// OutboxEntry is one unsynced local mutation
type OutboxEntry struct {
	Seq             int64
	RecordID        string
	Type            string
	Version         int64
	Payload         string
	ClientUpdatedAt string
	Deleted         bool
	State           EntryState
	ServerVersion   int64  // set when conflicted
	Reason          string // last rejection reason
}

// Outbox is the durable upload queue, keyed by record id
type Outbox struct {
	db DBTX
}

const outboxCols = `seq, record_id, type, version, payload, client_updated_at, deleted, state, server_version, reason`

func scanEntry(row interface{ Scan(...any) error }) (OutboxEntry, error) {
	var e OutboxEntry
	err := row.Scan(&e.Seq, &e.RecordID, &e.Type, &e.Version, &e.Payload, &e.ClientUpdatedAt,
		&e.Deleted, &e.State, &e.ServerVersion, &e.Reason)
	return e, err
}

// Enqueue inserts e or replaces the existing entry for the same record.
// A replaced entry keeps its seq, so drain order follows first mutation.
func (o *Outbox) Enqueue(ctx context.Context, e OutboxEntry) error {
	if e.State == "" {
		e.State = StatePending
	}
	_, err := o.db.ExecContext(ctx, `
		INSERT INTO outbox (`+outboxCols+`)
		VALUES ((SELECT COALESCE(MAX(seq), 0) + 1 FROM outbox), ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			type = excluded.type,
			version = excluded.version,
			payload = excluded.payload,
			client_updated_at = excluded.client_updated_at,
			deleted = excluded.deleted,
			state = excluded.state,
			server_version = excluded.server_version,
			reason = excluded.reason
	`, e.RecordID, e.Type, e.Version, e.Payload, e.ClientUpdatedAt, e.Deleted, e.State, e.ServerVersion, e.Reason)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", e.RecordID, err)
	}
	return nil
}

// Get returns the entry for id
func (o *Outbox) Get(ctx context.Context, id string) (OutboxEntry, bool, error) {
	e, err := scanEntry(o.db.QueryRowContext(ctx, `SELECT `+outboxCols+` FROM outbox WHERE record_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return OutboxEntry{}, false, nil
	}
	if err != nil {
		return OutboxEntry{}, false, fmt.Errorf("failed to get outbox entry %s: %w", id, err)
	}
	return e, true, nil
}

// Pending returns up to limit pending entries after seq, in insertion order
func (o *Outbox) Pending(ctx context.Context, afterSeq int64, limit int) ([]OutboxEntry, error) {
	return o.query(ctx, `SELECT `+outboxCols+` FROM outbox WHERE state = ? AND seq > ? ORDER BY seq LIMIT ?`,
		StatePending, afterSeq, limit)
}

// List returns all entries in state, or every entry when state is empty
func (o *Outbox) List(ctx context.Context, state EntryState) ([]OutboxEntry, error) {
	if state == "" {
		return o.query(ctx, `SELECT `+outboxCols+` FROM outbox ORDER BY seq`)
	}
	return o.query(ctx, `SELECT `+outboxCols+` FROM outbox WHERE state = ? ORDER BY seq`, state)
}

func (o *Outbox) query(ctx context.Context, q string, args ...any) ([]OutboxEntry, error) {
	rows, err := o.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox rows: %w", err)
	}
	return out, nil
}

// MarkConflicted parks the entry if it still holds the pushed version
func (o *Outbox) MarkConflicted(ctx context.Context, id string, version, serverVersion int64) (bool, error) {
	return o.exec(ctx, `
		UPDATE outbox SET state = ?, server_version = ?, reason = 'version_conflict'
		WHERE record_id = ? AND version = ?`, StateConflicted, serverVersion, id, version)
}

// MarkFailed parks the entry for good if it still holds the pushed version
func (o *Outbox) MarkFailed(ctx context.Context, id string, version int64, reason string) (bool, error) {
	return o.exec(ctx, `
		UPDATE outbox SET state = ?, reason = ?
		WHERE record_id = ? AND version = ?`, StateFailed, reason, id, version)
}

// NoteRetry records a transient rejection; the entry stays pending
func (o *Outbox) NoteRetry(ctx context.Context, id string, version int64, reason string) (bool, error) {
	return o.exec(ctx, `UPDATE outbox SET reason = ? WHERE record_id = ? AND version = ?`, reason, id, version)
}

// Remove drops the entry for id regardless of version
func (o *Outbox) Remove(ctx context.Context, id string) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM outbox WHERE record_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove outbox entry %s: %w", id, err)
	}
	return nil
}

// Counts returns the number of entries per state
func (o *Outbox) Counts(ctx context.Context) (map[EntryState]int, error) {
	rows, err := o.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM outbox GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox: %w", err)
	}
	defer rows.Close()

	out := make(map[EntryState]int)
	for rows.Next() {
		var st EntryState
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[st] = n
	}
	return out, rows.Err()
}

func (o *Outbox) exec(ctx context.Context, q string, args ...any) (bool, error) {
	res, err := o.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update outbox: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
