package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/erauner12/journalsync/internal/auth"
	"github.com/erauner12/journalsync/internal/service/escrowservice"
	"github.com/erauner12/journalsync/internal/service/syncservice"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Server holds dependencies for HTTP handlers
type Server struct {
	Records         *syncservice.RecordService
	Escrow          *escrowservice.Service
	Users           auth.UserResolver
	RateLimitConfig *RateLimitInfo // nil disables rate limiting

	// Ready reports storage health for /healthz; nil means always ready
	Ready func(ctx context.Context) error

	mu       sync.Mutex
	limiters []*RateLimiter
}

// errorResp is the body of every non-2xx JSON response
type errorResp struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode json response")
	}
}

// writeError writes a JSON error carrying the request's correlation id
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorResp{
		Error:         msg,
		CorrelationID: GetCorrelationID(r.Context()),
	})
}

// Routes creates the HTTP router with all sync endpoints
func (s *Server) Routes(jwt auth.JWTCfg) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(CorrelationMiddleware)
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)

	// Health check (unauthenticated)
	r.Get("/healthz", s.Healthz)

	// Capability discovery (unauthenticated)
	r.Get("/v1/sync/info", s.Info)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.Users, jwt))
		if s.RateLimitConfig != nil {
			r.Use(RateLimitMiddleware(s.newLimiter(*s.RateLimitConfig)))
		}

		r.Post("/v1/sync/records/push", s.PushRecords)
		r.Get("/v1/sync/records/pull", s.PullRecords)

		r.Get("/v1/keys", s.GetKeys)
		r.Put("/v1/keys", s.PutKeys)
	})

	log.Info().Msg("HTTP routes registered")
	return r
}

func (s *Server) newLimiter(cfg RateLimitInfo) *RateLimiter {
	rl := NewRateLimiter(cfg)
	s.mu.Lock()
	s.limiters = append(s.limiters, rl)
	s.mu.Unlock()
	return rl
}

// Close releases background resources started by Routes. Handlers built
// before Close keep serving but stop pruning idle rate limit buckets.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rl := range s.limiters {
		rl.Close()
	}
	s.limiters = nil
}

// Healthz handles GET /healthz
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		if err := s.Ready(r.Context()); err != nil {
			log.Ctx(r.Context()).Warn().Err(err).Msg("health check failed")
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
