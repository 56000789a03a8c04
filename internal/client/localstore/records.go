package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Record is the device's copy of a server record
type Record struct {
	RecordID        string
	Type            string
	Version         int64
	Payload         string
	ClientUpdatedAt string
	ServerUpdatedAt string
	Deleted         bool
}

// Records is the server mirror
type Records struct {
	db DBTX
}

const recordCols = `record_id, type, version, payload, client_updated_at, server_updated_at, deleted`

func scanRecord(row interface{ Scan(...any) error }) (Record, error) {
	var r Record
	err := row.Scan(&r.RecordID, &r.Type, &r.Version, &r.Payload, &r.ClientUpdatedAt, &r.ServerUpdatedAt, &r.Deleted)
	return r, err
}

// Get returns the mirrored record, if any
func (r *Records) Get(ctx context.Context, id string) (Record, bool, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+recordCols+` FROM records WHERE record_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to get record %s: %w", id, err)
	}
	return rec, true, nil
}

// ApplyRemote stores rec unless the mirror already holds a newer version.
// Equal versions carry the same content, so they only refresh server_updated_at.
func (r *Records) ApplyRemote(ctx context.Context, rec Record) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO records (`+recordCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id) DO UPDATE SET
			type = excluded.type,
			version = excluded.version,
			payload = excluded.payload,
			client_updated_at = excluded.client_updated_at,
			server_updated_at = excluded.server_updated_at,
			deleted = excluded.deleted
		WHERE excluded.version >= records.version
	`, rec.RecordID, rec.Type, rec.Version, rec.Payload, rec.ClientUpdatedAt, rec.ServerUpdatedAt, rec.Deleted)
	if err != nil {
		return false, fmt.Errorf("failed to apply record %s: %w", rec.RecordID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns every mirrored record including tombstones
func (r *Records) List(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+recordCols+` FROM records ORDER BY client_updated_at DESC, record_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record rows: %w", err)
	}
	return out, nil
}
