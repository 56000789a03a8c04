package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erauner12/journalsync/internal/auth"
	"github.com/erauner12/journalsync/internal/service/escrowservice"
	"github.com/erauner12/journalsync/internal/service/syncservice"
	"github.com/erauner12/journalsync/internal/store/memstore"
)

const testSecret = "test-secret"

// newTestRouter builds a dev-mode router over an in-memory store
func newTestRouter(t *testing.T, rl *RateLimitInfo) (http.Handler, *memstore.Store) {
	t.Helper()

	ms := memstore.New()
	srv := &Server{
		Records:         syncservice.NewRecordService(ms, nil),
		Escrow:          escrowservice.New(ms),
		Users:           auth.SubjectResolver,
		RateLimitConfig: rl,
	}
	t.Cleanup(srv.Close)
	return srv.Routes(auth.JWTCfg{HS256Secret: testSecret, DevMode: true}), ms
}

// makeRequest makes an HTTP request authenticated as sub via X-Debug-Sub
func makeRequest(t *testing.T, router http.Handler, method, path string, body any, sub string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var bodyReader *bytes.Reader
	switch b := body.(type) {
	case nil:
		bodyReader = bytes.NewReader(nil)
	case []byte:
		bodyReader = bytes.NewReader(b)
	default:
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req := httptest.NewRequest(method, path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	if sub != "" {
		req.Header.Set("X-Debug-Sub", sub)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response (status %d): %v", w.Code, err)
	}
	return v
}
