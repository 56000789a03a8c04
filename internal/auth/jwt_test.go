package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func issueToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return tok
}

func TestValidateToken(t *testing.T) {
	now := time.Now()
	cfg := JWTCfg{HS256Secret: testSecret, Issuer: "journalsync", Audience: "journal-api"}

	tests := []struct {
		name    string
		token   string
		wantSub string
		wantErr bool
	}{
		{
			name: "valid",
			token: issueToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
				"sub": "user_123", "iss": "journalsync", "aud": "journal-api", "exp": now.Add(time.Hour).Unix(),
			}),
			wantSub: "user_123",
		},
		{
			name: "wrong secret",
			token: issueToken(t, jwt.SigningMethodHS256, "other", jwt.MapClaims{
				"sub": "user_123", "iss": "journalsync", "aud": "journal-api", "exp": now.Add(time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "expired",
			token: issueToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
				"sub": "user_123", "iss": "journalsync", "aud": "journal-api", "exp": now.Add(-time.Hour).Unix(),
			}),
			wantErr: true,
		},
		{
			name: "wrong issuer",
			token: issueToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
				"sub": "user_123", "iss": "https://evil-attacker.com", "aud": "journal-api",
			}),
			wantErr: true,
		},
		{
			name: "wrong audience",
			token: issueToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
				"sub": "user_123", "iss": "journalsync", "aud": "https://attacker.com",
			}),
			wantErr: true,
		},
		{
			name: "HS512 rejected",
			token: issueToken(t, jwt.SigningMethodHS512, testSecret, jwt.MapClaims{
				"sub": "user_123", "iss": "journalsync", "aud": "journal-api",
			}),
			wantErr: true,
		},
		{
			name: "missing subject",
			token: issueToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
				"iss": "journalsync", "aud": "journal-api",
			}),
			wantErr: true,
		},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := ValidateToken(tt.token, cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got sub=%q", sub)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sub != tt.wantSub {
				t.Errorf("sub = %q, want %q", sub, tt.wantSub)
			}
		})
	}
}

func TestValidateToken_NoSecret(t *testing.T) {
	_, err := ValidateToken("x", JWTCfg{})
	if !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}

func protected(t *testing.T, users UserResolver, cfg JWTCfg) http.Handler {
	t.Helper()
	return Middleware(users, cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(UserID(r.Context())))
	}))
}

func TestMiddleware(t *testing.T) {
	resolver := ResolverFunc(func(_ context.Context, sub string) (string, error) {
		if sub == "broken" {
			return "", errors.New("db down")
		}
		return "id-" + sub, nil
	})
	valid := issueToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "alice"})

	tests := []struct {
		name     string
		devMode  bool
		headers  map[string]string
		wantCode int
		wantBody string
	}{
		{"bearer token", false, map[string]string{"Authorization": "Bearer " + valid}, 200, "id-alice"},
		{"no credentials", false, nil, 401, ""},
		{"bad token", false, map[string]string{"Authorization": "Bearer nope"}, 401, ""},
		{"debug sub ignored outside dev mode", false, map[string]string{"X-Debug-Sub": "bob"}, 401, ""},
		{"debug sub in dev mode", true, map[string]string{"X-Debug-Sub": "bob"}, 200, "id-bob"},
		{"token wins over debug sub", true, map[string]string{"Authorization": "Bearer " + valid, "X-Debug-Sub": "bob"}, 200, "id-alice"},
		{"resolver failure", true, map[string]string{"X-Debug-Sub": "broken"}, 500, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := protected(t, resolver, JWTCfg{HS256Secret: testSecret, DevMode: tt.devMode})
			req := httptest.NewRequest("GET", "/v1/sync/records/pull", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %q)", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantBody != "" && strings.TrimSpace(w.Body.String()) != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestSubjectResolver(t *testing.T) {
	id, err := SubjectResolver.ResolveUser(context.Background(), "alice")
	if err != nil || id != "alice" {
		t.Fatalf("SubjectResolver = %q, %v", id, err)
	}
}
