package syncservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erauner12/journalsync/internal/store"
	"github.com/erauner12/journalsync/internal/syncx"
	"github.com/erauner12/journalsync/internal/usage"
	"github.com/rs/zerolog/log"
)

// ErrBatchTooLarge is returned when a push carries more than syncx.MaxPushBatch items
var ErrBatchTooLarge = fmt.Errorf("batch exceeds %d items", syncx.MaxPushBatch)

// RecordService encapsulates the push/pull protocol for encrypted records
type RecordService struct {
	Records store.Records
	Usage   usage.Reporter
	Now     func() time.Time
}

// NewRecordService creates a RecordService. A nil reporter discards usage.
func NewRecordService(records store.Records, reporter usage.Reporter) *RecordService {
	if reporter == nil {
		reporter = usage.Discard{}
	}
	return &RecordService{Records: records, Usage: reporter, Now: time.Now}
}

// Push applies each item independently for ownerID. Only a malformed batch
// fails as a whole; every per-item problem becomes a rejection.
func (s *RecordService) Push(ctx context.Context, ownerID string, items []syncx.PushItem) (*syncx.PushResponse, error) {
	if len(items) > syncx.MaxPushBatch {
		return nil, ErrBatchTooLarge
	}

	logger := log.Ctx(ctx)
	resp := &syncx.PushResponse{
		Accepted: make([]string, 0, len(items)),
		Rejected: make([]syncx.Rejection, 0),
	}

	var acceptedBytes int64
	for _, item := range items {
		rej := s.pushItem(ctx, ownerID, item)
		if rej != nil {
			logger.Debug().
				Str("record_id", item.RecordID).
				Str("reason", string(rej.Reason)).
				Msg("record rejected")
			resp.Rejected = append(resp.Rejected, *rej)
			continue
		}
		resp.Accepted = append(resp.Accepted, item.RecordID)
		acceptedBytes += int64(len(item.Payload))
	}

	resp.ServerTime = syncx.RFC3339(s.Now())

	s.Usage.Submit(usage.Event{
		OwnerID: ownerID,
		Op:      usage.OpPush,
		Records: len(resp.Accepted),
		Bytes:   acceptedBytes,
	})

	logger.Info().
		Int("accepted", len(resp.Accepted)).
		Int("rejected", len(resp.Rejected)).
		Msg("push processed")

	return resp, nil
}

// pushItem returns nil when the item was stored
func (s *RecordService) pushItem(ctx context.Context, ownerID string, item syncx.PushItem) *syncx.Rejection {
	ext, reason, err := syncx.ExtractPushItem(item)
	if err != nil {
		return &syncx.Rejection{RecordID: item.RecordID, Reason: reason}
	}

	res, err := s.Records.ConditionalUpsert(ctx, store.Record{
		RecordID:        ext.Item.RecordID,
		OwnerID:         ownerID,
		Type:            ext.Item.Type,
		Version:         ext.Item.Version,
		Payload:         ext.Item.Payload,
		ClientUpdatedAt: ext.ClientUpdatedAt,
		Deleted:         ext.Item.Deleted,
	})
	if err != nil {
		return s.rejectStorageError(ctx, ownerID, item.RecordID, err)
	}

	switch res.Outcome {
	case store.WriteApplied:
		return nil
	case store.WriteForeign:
		return &syncx.Rejection{RecordID: item.RecordID, Reason: syncx.ReasonForbidden}
	case store.WriteStale:
		v := res.Version
		ts := syncx.RFC3339(res.ServerUpdatedAt)
		return &syncx.Rejection{
			RecordID:        item.RecordID,
			Reason:          syncx.ReasonVersionConflict,
			ServerVersion:   &v,
			ServerUpdatedAt: &ts,
		}
	default:
		log.Ctx(ctx).Error().Str("record_id", item.RecordID).Stringer("outcome", res.Outcome).Msg("unexpected write outcome")
		return &syncx.Rejection{RecordID: item.RecordID, Reason: syncx.ReasonTransient}
	}
}

// rejectStorageError maps a failed write to a rejection. A lost uniqueness
// race is re-checked against the stored owner so a concurrent create by
// another account is never reported as anything but forbidden.
func (s *RecordService) rejectStorageError(ctx context.Context, ownerID, recordID string, err error) *syncx.Rejection {
	logger := log.Ctx(ctx)

	if errors.Is(err, store.ErrUniqueRace) {
		owner, ok, lookupErr := s.Records.Owner(ctx, recordID)
		if lookupErr == nil && ok && owner != ownerID {
			return &syncx.Rejection{RecordID: recordID, Reason: syncx.ReasonForbidden}
		}
		logger.Warn().Err(err).Str("record_id", recordID).Msg("unique race on push, retry later")
		return &syncx.Rejection{RecordID: recordID, Reason: syncx.ReasonTransient}
	}

	logger.Error().Err(err).Str("record_id", recordID).Msg("failed to upsert record")
	return &syncx.Rejection{RecordID: recordID, Reason: syncx.ReasonTransient}
}

// Pull returns one page of ownerID's records after cursor.
// A cursor that does not point at one of ownerID's records restarts from the beginning.
func (s *RecordService) Pull(ctx context.Context, ownerID, cursor string, limit int) (*syncx.PullResponse, error) {
	limit = syncx.ClampLimit(limit, syncx.MaxPullLimit)

	after, err := s.resolveCursor(ctx, ownerID, cursor)
	if err != nil {
		return nil, err
	}

	rows, err := s.Records.Page(ctx, ownerID, after, limit+1)
	if err != nil {
		return nil, err
	}

	resp := &syncx.PullResponse{Records: make([]syncx.PulledRecord, 0, len(rows))}
	if len(rows) > limit {
		rows = rows[:limit]
		resp.NextCursor = syncx.EncodeCursor(rows[len(rows)-1].Position())
	}

	var bytes int64
	for _, r := range rows {
		resp.Records = append(resp.Records, syncx.PulledRecord{
			RecordID:        r.RecordID,
			Type:            r.Type,
			Version:         r.Version,
			Payload:         r.Payload,
			ClientUpdatedAt: syncx.RFC3339(r.ClientUpdatedAt),
			ServerUpdatedAt: syncx.RFC3339(r.ServerUpdatedAt),
			Deleted:         r.Deleted,
		})
		bytes += int64(len(r.Payload))
	}

	s.Usage.Submit(usage.Event{
		OwnerID: ownerID,
		Op:      usage.OpPull,
		Records: len(resp.Records),
		Bytes:   bytes,
	})

	return resp, nil
}

// resolveCursor turns a pull cursor into a keyset boundary. Position
// cursors keep the boundary they were issued with; the embedded record
// must still belong to ownerID. A bare recordId is resolved to that
// record's current position.
func (s *RecordService) resolveCursor(ctx context.Context, ownerID, cursor string) (*syncx.Position, error) {
	if cursor == "" {
		return nil, nil
	}
	logger := log.Ctx(ctx)

	if pos, ok := syncx.DecodeCursor(cursor); ok {
		owner, found, err := s.Records.Owner(ctx, pos.RecordID)
		if err != nil {
			return nil, err
		}
		if !found || owner != ownerID {
			logger.Debug().Str("cursor", cursor).Msg("cursor not owned by caller, restarting from beginning")
			return nil, nil
		}
		return &pos, nil
	}

	pos, ok, err := s.Records.Position(ctx, ownerID, cursor)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Debug().Str("cursor", cursor).Msg("unknown cursor, restarting from beginning")
		return nil, nil
	}
	return &pos, nil
}
