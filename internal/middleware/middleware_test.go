package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/crucial707/spendflow/internal/auth"
	"github.com/crucial707/spendflow/internal/models"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

type fakeUsers map[int]*models.User

func (f fakeUsers) GetByID(_ context.Context, id int) (*models.User, error) {
	if id == 500 {
		return nil, errors.New("connection reset")
	}
	u, ok := f[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var out map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out["error"]
}

func TestAuth(t *testing.T) {
	issuer := auth.NewIssuer([]byte("test-secret"), time.Hour)
	users := fakeUsers{1: {ID: 1, Username: "alice"}}

	var gotID int
	var gotName string
	protected := Auth(issuer, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = GetUserID(r.Context())
		gotName, _ = GetUsername(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	token := func(id int) string {
		s, err := issuer.Issue(id, "whoever")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		return s
	}
	forged, _ := auth.NewIssuer([]byte("other-secret"), time.Hour).Issue(1, "alice")

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantMsg  string
	}{
		{"valid", "Bearer " + token(1), http.StatusNoContent, ""},
		{"no header", "", http.StatusUnauthorized, "no token provided"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "no token provided"},
		{"forged", "Bearer " + forged, http.StatusUnauthorized, "invalid token"},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized, "invalid token"},
		{"deleted account", "Bearer " + token(2), http.StatusUnauthorized, "account deleted, please login again"},
		{"store failure", "Bearer " + token(500), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotID, gotName = 0, ""
			req := httptest.NewRequest("GET", "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("status: got %d, want %d", rr.Code, tt.wantCode)
			}
			if tt.wantMsg != "" {
				if msg := errorBody(t, rr); msg != tt.wantMsg {
					t.Errorf("error: got %q, want %q", msg, tt.wantMsg)
				}
				if gotID != 0 {
					t.Error("handler must not run for rejected requests")
				}
				return
			}
			if gotID != 1 || gotName != "alice" {
				t.Errorf("context: got id=%d name=%q", gotID, gotName)
			}
		})
	}
}

func TestIPRateLimiter(t *testing.T) {
	lim := NewIPRateLimiter(rate.Every(time.Hour), 2)
	h := lim.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/login", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 2; i++ {
		if rr := do("10.0.0.1:5000"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i, rr.Code)
		}
	}
	// a new port on the same host shares the bucket
	rr := do("10.0.0.1:6000")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: got %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if rr := do("10.0.0.2:5000"); rr.Code != http.StatusOK {
		t.Errorf("other client: got %d, want 200", rr.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Real-IP", "198.51.100.7")
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	if ip := clientIP(req); ip != "192.0.2.1" {
		t.Errorf("forwarding headers must be ignored: got %q", ip)
	}

	// chi's RealIP rewrites RemoteAddr without a port
	req.RemoteAddr = "203.0.113.5"
	if ip := clientIP(req); ip != "203.0.113.5" {
		t.Errorf("bare RemoteAddr: got %q", ip)
	}
}

func TestIPRateLimiter_IgnoresSpoofedForwardedFor(t *testing.T) {
	h := NewIPRateLimiter(rate.Every(time.Hour), 1).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 2)
	for _, xff := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("POST", "/login", nil)
		req.RemoteAddr = "10.0.0.9:4000"
		req.Header.Set("X-Forwarded-For", xff)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("got %v, want [200 429]", codes)
	}
}

func TestIPRateLimiter_BehindRealIP(t *testing.T) {
	lim := NewIPRateLimiter(rate.Every(time.Hour), 1)
	h := chimw.RealIP(lim.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	for _, client := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest("POST", "/login", nil)
		req.RemoteAddr = "10.0.0.1:4000" // the proxy
		req.Header.Set("X-Real-IP", client)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("client %s: got %d, want 200", client, rr.Code)
		}
	}
}

func TestIPRateLimiter_SweepsIdleClients(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	lim := NewIPRateLimiter(rate.Every(time.Hour), 1)
	lim.now = func() time.Time { return now }

	lim.getLimiter("192.0.2.1")
	lim.getLimiter("192.0.2.2")
	now = now.Add(limiterIdleTTL / 2)
	lim.getLimiter("192.0.2.2")

	now = now.Add(limiterIdleTTL / 2)
	lim.getLimiter("192.0.2.3")

	if _, ok := lim.visitors["192.0.2.1"]; ok {
		t.Error("idle client was not swept")
	}
	if len(lim.visitors) != 2 {
		t.Errorf("visitors: got %d, want 2", len(lim.visitors))
	}
}

func TestMaxBytes(t *testing.T) {
	h := MaxBytes(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/expenses", strings.NewReader(`{"title":"way too long"}`)))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized: got %d, want 413", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("POST", "/expenses", strings.NewReader(`{}`)))
	if rr.Code != http.StatusOK {
		t.Errorf("small body: got %d, want 200", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("OPTIONS", "/expenses", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight: got %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow origin: got %q", got)
	}

	req = httptest.NewRequest("GET", "/expenses", nil)
	req.Header.Set("Origin", "http://evil.example")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unknown origin must not be allowed, got %q", got)
	}
}

func TestRecoverer(t *testing.T) {
	h := Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", rr.Code)
	}
	if msg := errorBody(t, rr); msg != "internal server error" {
		t.Errorf("error: got %q", msg)
	}
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))

	for _, k := range []string{"X-Content-Type-Options", "X-Frame-Options", "Cache-Control", "Strict-Transport-Security"} {
		if rr.Header().Get(k) == "" {
			t.Errorf("missing %s", k)
		}
	}
}
