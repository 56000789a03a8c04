package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/erauner12/journalsync/internal/auth"
	"github.com/erauner12/journalsync/internal/service/escrowservice"
	"github.com/erauner12/journalsync/internal/syncx"
	"github.com/rs/zerolog/log"
)

const maxKeyBody = 16 * 1024

// GetKeys handles GET /v1/keys
// 404 tells a client it is the first device and must mint a data key.
func (s *Server) GetKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := s.Escrow.Get(ctx, auth.UserID(ctx))
	if errors.Is(err, syncx.ErrKeysNotFound) {
		writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to load wrapped key")
		writeError(w, r, http.StatusInternalServerError, "server error")
		return
	}

	writeJSON(w, http.StatusOK, key)
}

// PutKeys handles PUT /v1/keys
// With "If-None-Match: *" the write only succeeds if no key exists yet (412 otherwise).
func (s *Server) PutKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var key syncx.WrappedKey
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxKeyBody)).Decode(&key); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid json")
		return
	}

	createOnly := r.Header.Get("If-None-Match") == "*"

	err := s.Escrow.Put(ctx, auth.UserID(ctx), key, createOnly)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, escrowservice.ErrInvalidKeyMaterial):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, syncx.ErrKeysExist):
		writeError(w, r, http.StatusPreconditionFailed, "already_exists")
	default:
		log.Ctx(ctx).Error().Err(err).Msg("failed to store wrapped key")
		writeError(w, r, http.StatusInternalServerError, "server error")
	}
}
