package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/erauner12/journalsync/internal/auth"
	"github.com/erauner12/journalsync/internal/service/syncservice"
	"github.com/erauner12/journalsync/internal/syncx"
	"github.com/rs/zerolog/log"
)

// maxPushBody bounds a full batch of maximum-size payloads plus envelope
const maxPushBody = syncx.MaxPushBatch * (syncx.MaxPayloadBytes + 4096)

// PushRecords handles POST /v1/sync/records/push
// Each item is accepted or rejected on its own; the response is 200 even
// when every item was rejected.
func (s *Server) PushRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)

	var req syncx.PushRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		log.Ctx(ctx).Warn().Err(err).Msg("invalid push request body")
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	resp, err := s.Records.Push(ctx, userID, req.Items)
	if errors.Is(err, syncservice.ErrBatchTooLarge) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("push failed")
		writeError(w, r, http.StatusInternalServerError, "push failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// PullRecords handles GET /v1/sync/records/pull?cursor=<recordId>&limit=<int>
func (s *Server) PullRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := auth.UserID(ctx)

	q := r.URL.Query()
	limit := syncx.ParseLimit(q.Get("limit"), syncx.DefaultPullLimit, syncx.MaxPullLimit)

	resp, err := s.Records.Pull(ctx, userID, q.Get("cursor"), limit)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("pull failed")
		writeError(w, r, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
