package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const CtxUserID ctxKey = "uid"

var (
	ErrMissingSubject = errors.New("token has no subject")
	ErrNoSecret       = errors.New("no HS256 secret configured")
)

// JWTCfg holds JWT authentication configuration
type JWTCfg struct {
	HS256Secret string // HMAC secret for HS256 tokens
	Issuer      string // optional; when set the iss claim must match
	Audience    string // optional; when set the aud claim must contain it
	DevMode     bool   // Allow X-Debug-Sub header (DANGEROUS: only for local dev)
}

// UserResolver maps an authenticated subject to the owner id used by storage
type UserResolver interface {
	ResolveUser(ctx context.Context, sub string) (string, error)
}

// ResolverFunc adapts a function to UserResolver
type ResolverFunc func(ctx context.Context, sub string) (string, error)

func (f ResolverFunc) ResolveUser(ctx context.Context, sub string) (string, error) {
	return f(ctx, sub)
}

// SubjectResolver uses the token subject itself as the owner id.
// Used with the in-memory store where there is no user table.
var SubjectResolver = ResolverFunc(func(_ context.Context, sub string) (string, error) {
	return sub, nil
})

// ValidateToken verifies an HS256 token and returns its subject
func ValidateToken(tok string, cfg JWTCfg) (string, error) {
	if cfg.HS256Secret == "" {
		return "", ErrNoSecret
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := jwt.RegisteredClaims{}
	t, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.HS256Secret), nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if !t.Valid {
		return "", jwt.ErrTokenSignatureInvalid
	}
	if claims.Subject == "" {
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

// Middleware creates HTTP middleware for JWT authentication
// Supports two modes:
// 1. Production: Bearer token with JWT validation
// 2. Development: X-Debug-Sub header (ONLY when DevMode=true)
func Middleware(users UserResolver, cfg JWTCfg) func(http.Handler) http.Handler {
	if cfg.DevMode {
		log.Warn().Msg("SECURITY WARNING: DevMode enabled - X-Debug-Sub header will bypass JWT authentication")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := log.Ctx(r.Context())

			tok := ""
			if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				tok = strings.TrimPrefix(h, "Bearer ")
			}

			sub := ""

			// Development mode: accept X-Debug-Sub ONLY if DevMode is enabled and no token present
			if cfg.DevMode && tok == "" {
				sub = r.Header.Get("X-Debug-Sub")
				if sub != "" {
					logger.Debug().Str("sub", sub).Msg("using X-Debug-Sub header (dev mode)")
				}
			}

			if tok != "" {
				s, err := ValidateToken(tok, cfg)
				if err != nil {
					logger.Warn().Err(err).Msg("jwt validation failed")
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				sub = s
			}

			if sub == "" {
				logger.Warn().Msg("missing subject (no JWT sub or X-Debug-Sub header)")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			userID, err := users.ResolveUser(r.Context(), sub)
			if err != nil {
				logger.Error().Err(err).Str("sub", sub).Msg("failed to resolve user")
				http.Error(w, "server error", http.StatusInternalServerError)
				return
			}

			ctx := WithUserID(r.Context(), userID)
			l := logger.With().Str("user_id", userID).Logger()
			next.ServeHTTP(w, r.WithContext(l.WithContext(ctx)))
		})
	}
}

// WithUserID stores the authenticated owner id in ctx
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, CtxUserID, userID)
}

// UserID extracts the authenticated user ID from request context
// Returns empty string if not authenticated (should never happen after middleware)
func UserID(ctx context.Context) string {
	if v := ctx.Value(CtxUserID); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
