package httpapi

import (
	"net/http"
	"time"

	"github.com/erauner12/journalsync/internal/syncx"
)

// ServerInfo represents the server's capabilities and configuration
type ServerInfo struct {
	APIVersion string         `json:"apiVersion"`
	ServerTime string         `json:"serverTime"`
	Limits     ProtocolLimits `json:"limits"`
	RateLimit  *RateLimitInfo `json:"rateLimit,omitempty"`
	Hints      SyncHints      `json:"hints"`
}

// ProtocolLimits mirrors the constants enforced on push and pull
type ProtocolLimits struct {
	MaxPushBatch     int `json:"maxPushBatch"`
	MaxPayloadBytes  int `json:"maxPayloadBytes"`
	DefaultPullLimit int `json:"defaultPullLimit"`
	MaxPullLimit     int `json:"maxPullLimit"`
}

// RateLimitInfo describes the server's rate limiting policy
type RateLimitInfo struct {
	WindowSeconds int `json:"windowSeconds"` // e.g. 60
	MaxRequests   int `json:"maxRequests"`   // per window
	Burst         int `json:"burst"`         // token bucket size
}

// SyncHints provides recommendations for client behavior
type SyncHints struct {
	RecommendedBatch int `json:"recommendedBatch"` // safe batch size
	BackoffMsOn429   int `json:"backoffMsOn429"`   // default backoff if Retry-After missing
}

// DefaultRateLimitConfig is used when the server config does not override it
var DefaultRateLimitConfig = RateLimitInfo{
	WindowSeconds: 60,
	MaxRequests:   600,
	Burst:         120,
}

// Info handles GET /v1/sync/info
// Can be called without authentication to allow capability discovery
func (s *Server) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ServerInfo{
		APIVersion: "1.0",
		ServerTime: syncx.RFC3339(time.Now()),
		Limits: ProtocolLimits{
			MaxPushBatch:     syncx.MaxPushBatch,
			MaxPayloadBytes:  syncx.MaxPayloadBytes,
			DefaultPullLimit: syncx.DefaultPullLimit,
			MaxPullLimit:     syncx.MaxPullLimit,
		},
		RateLimit: s.RateLimitConfig,
		Hints: SyncHints{
			RecommendedBatch: syncx.MaxPushBatch,
			BackoffMsOn429:   5000,
		},
	})
}
