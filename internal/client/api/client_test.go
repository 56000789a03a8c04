package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erauner12/journalsync/internal/auth"
	"github.com/erauner12/journalsync/internal/httpapi"
	"github.com/erauner12/journalsync/internal/service/escrowservice"
	"github.com/erauner12/journalsync/internal/service/syncservice"
	"github.com/erauner12/journalsync/internal/store/memstore"
	"github.com/erauner12/journalsync/internal/syncx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDevServer(t *testing.T) *httptest.Server {
	t.Helper()
	ms := memstore.New()
	srv := &httpapi.Server{
		Records: syncservice.NewRecordService(ms, nil),
		Escrow:  escrowservice.New(ms),
		Users:   auth.SubjectResolver,
	}
	ts := httptest.NewServer(srv.Routes(auth.JWTCfg{DevMode: true}))
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_PushPull(t *testing.T) {
	ts := newDevServer(t)
	ctx := context.Background()
	c := New(ts.URL, "", "alice")

	resp, err := c.Push(ctx, []syncx.PushItem{{
		RecordID: "r1", Type: "journal_entry", Version: 1, Payload: "QUFB",
		ClientUpdatedAt: "2025-11-03T10:00:00Z",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, resp.Accepted)

	page, err := c.Pull(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "QUFB", page.Records[0].Payload)
	assert.Empty(t, page.NextCursor)

	info, err := c.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, syncx.MaxPushBatch, info.Limits.MaxPushBatch)
}

func TestClient_Keys(t *testing.T) {
	ts := newDevServer(t)
	ctx := context.Background()
	c := New(ts.URL, "", "alice")

	_, err := c.GetKeys(ctx)
	assert.ErrorIs(t, err, syncx.ErrKeysNotFound)

	key := syncx.WrappedKey{
		KDF: syncx.KDF{
			Name:    "pbkdf2-sha256",
			Params:  json.RawMessage(`{"iterations":310000}`),
			SaltB64: base64.StdEncoding.EncodeToString(make([]byte, 16)),
		},
		WrappedDEKB64: base64.StdEncoding.EncodeToString(make([]byte, 60)),
	}
	require.NoError(t, c.PutKeys(ctx, key, true))
	assert.ErrorIs(t, c.PutKeys(ctx, key, true), syncx.ErrKeysExist)

	got, err := c.GetKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, key.WrappedDEKB64, got.WrappedDEKB64)
}

func TestClient_Unauthorized(t *testing.T) {
	ts := newDevServer(t)
	c := New(ts.URL, "", "")

	_, err := c.Pull(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestClient_StatusErrorCarriesCorrelation(t *testing.T) {
	ts := newDevServer(t)
	c := New(ts.URL, "", "alice")

	items := make([]syncx.PushItem, syncx.MaxPushBatch+1)
	_, err := c.Push(context.Background(), items)

	var se *StatusError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.NotEmpty(t, se.CorrelationID)
	assert.False(t, IsOffline(err))
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nextCursor":"","records":[]}`))
	}))
	defer ts.Close()

	c := New(ts.URL, "tok", "")
	c.Backoff = time.Millisecond

	_, err := c.Pull(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RateLimitExhausted(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := New(ts.URL, "tok", "")
	c.Backoff = time.Millisecond

	_, err := c.Pull(context.Background(), "", 0)
	var rl ErrRateLimited
	assert.True(t, errors.As(err, &rl), "got %v", err)
}

func TestClient_HeaderInjection(t *testing.T) {
	var captured http.Header
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	c := New(ts.URL, "test-token-123", "")
	require.NoError(t, c.PutKeys(context.Background(), syncx.WrappedKey{}, true))

	assert.Equal(t, "Bearer test-token-123", captured.Get("Authorization"))
	assert.Equal(t, "*", captured.Get("If-None-Match"))
	assert.NotEmpty(t, captured.Get("X-Correlation-ID"))
	assert.Empty(t, captured.Get("X-Debug-Sub"))
}

func TestClient_Offline(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(url, "", "alice")
	_, err := c.Pull(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrOffline)
	assert.True(t, IsOffline(err))
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"5", 5 * time.Second},
		{"-1", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseRetryAfter(tt.in), "input %q", tt.in)
	}

	future := time.Now().Add(30 * time.Second).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.Greater(t, d, 20*time.Second)
}
