// Package pgstore implements the record, escrow and usage stores on Postgres
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/erauner12/journalsync/internal/store"
	"github.com/erauner12/journalsync/internal/syncx"
	"github.com/erauner12/journalsync/internal/usage"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// Store wraps a pgx pool
type Store struct {
	DB *pgxpool.Pool
}

// New creates a Store over pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{DB: pool}
}

// ConditionalUpsert writes rec in one statement. The WHERE clause on the
// conflict branch makes the ownership and version checks atomic with the
// update; when it filters the row out, RETURNING yields nothing and the
// current row is read back only to classify the rejection.
func (s *Store) ConditionalUpsert(ctx context.Context, rec store.Record) (store.WriteResult, error) {
	var res store.WriteResult
	err := s.DB.QueryRow(ctx, `
		INSERT INTO sync_record AS r
			(record_id, owner_id, type, version, payload, client_updated_at, server_updated_at, deleted)
		VALUES ($1, $2::uuid, $3, $4, $5, $6, clock_timestamp(), $7)
		ON CONFLICT (record_id) DO UPDATE SET
			type              = EXCLUDED.type,
			version           = EXCLUDED.version,
			payload           = EXCLUDED.payload,
			client_updated_at = EXCLUDED.client_updated_at,
			server_updated_at = EXCLUDED.server_updated_at,
			deleted           = EXCLUDED.deleted
		-- strict >: re-pushing the stored version is a conflict, not a no-op
		WHERE r.owner_id = EXCLUDED.owner_id
		  AND EXCLUDED.version > r.version
		RETURNING version, server_updated_at
	`, rec.RecordID, rec.OwnerID, rec.Type, rec.Version, rec.Payload,
		rec.ClientUpdatedAt, rec.Deleted).Scan(&res.Version, &res.ServerUpdatedAt)

	switch {
	case err == nil:
		res.Outcome = store.WriteApplied
		res.ServerUpdatedAt = res.ServerUpdatedAt.UTC()
		return res, nil
	case errors.Is(err, pgx.ErrNoRows):
		return s.classify(ctx, rec)
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return store.WriteResult{}, fmt.Errorf("%w: %s", store.ErrUniqueRace, pgErr.ConstraintName)
		}
		return store.WriteResult{}, fmt.Errorf("upsert record: %w", err)
	}
}

// classify explains why the conditional upsert matched no row
func (s *Store) classify(ctx context.Context, rec store.Record) (store.WriteResult, error) {
	var owner string
	var res store.WriteResult
	err := s.DB.QueryRow(ctx, `
		SELECT owner_id::text, version, server_updated_at
		FROM sync_record
		WHERE record_id = $1
	`, rec.RecordID).Scan(&owner, &res.Version, &res.ServerUpdatedAt)
	if err != nil {
		// The conflict row vanished between statements; rows are never
		// physically deleted, so treat this as a storage hiccup.
		return store.WriteResult{}, fmt.Errorf("classify rejected write: %w", err)
	}

	if owner != rec.OwnerID {
		return store.WriteResult{Outcome: store.WriteForeign}, nil
	}
	res.Outcome = store.WriteStale
	res.ServerUpdatedAt = res.ServerUpdatedAt.UTC()
	return res, nil
}

func (s *Store) Owner(ctx context.Context, recordID string) (string, bool, error) {
	var owner string
	err := s.DB.QueryRow(ctx,
		`SELECT owner_id::text FROM sync_record WHERE record_id = $1`, recordID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup owner: %w", err)
	}
	return owner, true, nil
}

func (s *Store) Position(ctx context.Context, ownerID, recordID string) (syncx.Position, bool, error) {
	var pos syncx.Position
	err := s.DB.QueryRow(ctx, `
		SELECT server_updated_at, record_id
		FROM sync_record
		WHERE record_id = $1 AND owner_id = $2::uuid
	`, recordID, ownerID).Scan(&pos.ServerUpdatedAt, &pos.RecordID)
	if errors.Is(err, pgx.ErrNoRows) {
		return syncx.Position{}, false, nil
	}
	if err != nil {
		return syncx.Position{}, false, fmt.Errorf("resolve cursor: %w", err)
	}
	pos.ServerUpdatedAt = pos.ServerUpdatedAt.UTC()
	return pos, true, nil
}

func (s *Store) Page(ctx context.Context, ownerID string, after *syncx.Position, n int) ([]store.Record, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after == nil {
		rows, err = s.DB.Query(ctx, `
			SELECT record_id, owner_id::text, type, version, payload,
			       client_updated_at, server_updated_at, deleted
			FROM sync_record
			WHERE owner_id = $1::uuid
			ORDER BY server_updated_at, record_id
			LIMIT $2
		`, ownerID, n)
	} else {
		rows, err = s.DB.Query(ctx, `
			SELECT record_id, owner_id::text, type, version, payload,
			       client_updated_at, server_updated_at, deleted
			FROM sync_record
			WHERE owner_id = $1::uuid
			  AND (server_updated_at, record_id) > ($2::timestamptz, $3::text)
			ORDER BY server_updated_at, record_id
			LIMIT $4
		`, ownerID, after.ServerUpdatedAt, after.RecordID, n)
	}
	if err != nil {
		return nil, fmt.Errorf("query page: %w", err)
	}
	defer rows.Close()

	out := make([]store.Record, 0, n)
	for rows.Next() {
		var r store.Record
		if err := rows.Scan(&r.RecordID, &r.OwnerID, &r.Type, &r.Version, &r.Payload,
			&r.ClientUpdatedAt, &r.ServerUpdatedAt, &r.Deleted); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.ClientUpdatedAt = r.ClientUpdatedAt.UTC()
		r.ServerUpdatedAt = r.ServerUpdatedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *Store) GetWrappedKey(ctx context.Context, ownerID string) (syncx.WrappedKey, error) {
	var k syncx.WrappedKey
	var params []byte
	err := s.DB.QueryRow(ctx, `
		SELECT kdf_name, kdf_params, salt_b64, wrapped_dek_b64
		FROM key_escrow
		WHERE owner_id = $1::uuid
	`, ownerID).Scan(&k.KDF.Name, &params, &k.KDF.SaltB64, &k.WrappedDEKB64)
	if errors.Is(err, pgx.ErrNoRows) {
		return syncx.WrappedKey{}, syncx.ErrKeysNotFound
	}
	if err != nil {
		return syncx.WrappedKey{}, fmt.Errorf("get wrapped key: %w", err)
	}
	k.KDF.Params = json.RawMessage(params)
	return k, nil
}

func (s *Store) PutWrappedKey(ctx context.Context, ownerID string, key syncx.WrappedKey, createOnly bool) error {
	params := []byte(key.KDF.Params)
	if len(params) == 0 {
		params = []byte("{}")
	}

	if createOnly {
		tag, err := s.DB.Exec(ctx, `
			INSERT INTO key_escrow (owner_id, kdf_name, kdf_params, salt_b64, wrapped_dek_b64)
			VALUES ($1::uuid, $2, $3::jsonb, $4, $5)
			ON CONFLICT (owner_id) DO NOTHING
		`, ownerID, key.KDF.Name, string(params), key.KDF.SaltB64, key.WrappedDEKB64)
		if err != nil {
			return fmt.Errorf("create wrapped key: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return syncx.ErrKeysExist
		}
		return nil
	}

	_, err := s.DB.Exec(ctx, `
		INSERT INTO key_escrow (owner_id, kdf_name, kdf_params, salt_b64, wrapped_dek_b64)
		VALUES ($1::uuid, $2, $3::jsonb, $4, $5)
		ON CONFLICT (owner_id) DO UPDATE SET
			kdf_name        = EXCLUDED.kdf_name,
			kdf_params      = EXCLUDED.kdf_params,
			salt_b64        = EXCLUDED.salt_b64,
			wrapped_dek_b64 = EXCLUDED.wrapped_dek_b64,
			updated_at      = now()
	`, ownerID, key.KDF.Name, string(params), key.KDF.SaltB64, key.WrappedDEKB64)
	if err != nil {
		return fmt.Errorf("put wrapped key: %w", err)
	}
	return nil
}

// WriteUsage bulk-loads events with COPY
func (s *Store) WriteUsage(ctx context.Context, events []usage.Event) error {
	rows := make([][]any, 0, len(events))
	for _, e := range events {
		id, err := uuid.Parse(e.OwnerID)
		if err != nil {
			// memory-mode subjects are not uuids; nothing to attribute them to
			continue
		}
		rows = append(rows, []any{
			pgtype.UUID{Bytes: id, Valid: true},
			string(e.Op),
			int32(e.Records),
			e.Bytes,
			e.OccurredAt,
		})
	}
	if len(rows) == 0 {
		return nil
	}

	_, err := s.DB.CopyFrom(ctx,
		pgx.Identifier{"usage_event"},
		[]string{"owner_id", "op", "records", "bytes", "occurred_at"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy usage events: %w", err)
	}
	return nil
}

// ResolveUser maps an auth subject to its app_user id, creating the user on first sight
func (s *Store) ResolveUser(ctx context.Context, sub string) (string, error) {
	var userID string
	if err := s.DB.QueryRow(ctx, `
		INSERT INTO app_user (sub) VALUES ($1)
		ON CONFLICT (sub) DO UPDATE SET sub = excluded.sub
		RETURNING id::text
	`, sub).Scan(&userID); err != nil {
		return "", fmt.Errorf("upsert user: %w", err)
	}
	return userID, nil
}

var (
	_ store.Records = (*Store)(nil)
	_ store.Escrow  = (*Store)(nil)
	_ usage.Sink    = (*Store)(nil)
)
