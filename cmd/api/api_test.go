package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/crucial707/spendflow/internal/config"
)

var userRow = []string{"id", "name", "username", "password_hash", "created_at"}

func call(t *testing.T, srv *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// TestAPI_RegisterAddListDeleteAccount drives the full router against a sqlmock-backed DB:
// register, add an expense, list it, delete the account, then find the token rejected.
func TestAPI_RegisterAddListDeleteAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now()
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	expenseCols := []string{"id", "user_id", "title", "amount", "category", "date", "created_at"}
	expectAuth := func() {
		mock.ExpectQuery(`SELECT id, name, username, password_hash, created_at\s+FROM users\s+WHERE id = \$1`).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows(userRow).AddRow(1, "Integration", "integration", "hash", now))
	}

	// register
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("integration").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO users`).WithArgs("Integration", "integration", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "username", "created_at"}).AddRow(1, "Integration", "integration", now))

	// add expense
	expectAuth()
	mock.ExpectQuery(`INSERT INTO expenses`).WithArgs(1, "Lunch", 12.5, "Food", day).
		WillReturnRows(sqlmock.NewRows(expenseCols).AddRow(10, 1, "Lunch", 12.5, "Food", day, now))
	mock.ExpectExec(`INSERT INTO activity_log`).WillReturnResult(sqlmock.NewResult(1, 1))

	// list
	expectAuth()
	mock.ExpectQuery(`SELECT .+ FROM expenses WHERE user_id = \$1 ORDER BY`).WithArgs(1).
		WillReturnRows(sqlmock.NewRows(expenseCols).AddRow(10, 1, "Lunch", 12.5, "Food", day, now))

	// delete account
	expectAuth()
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM activity_log`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM expenses`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM users`).WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// token of a deleted account
	mock.ExpectQuery(`SELECT id, name, username, password_hash, created_at\s+FROM users\s+WHERE id = \$1`).
		WithArgs(1).
		WillReturnError(sql.ErrNoRows)

	cfg := config.Config{JWTSecret: "test-secret-for-integration", JWTExpireHours: 1}
	srv := httptest.NewServer(newRouter(db, cfg, nil))
	defer srv.Close()

	// 1) Register
	resp := call(t, srv, "POST", "/register", "", map[string]string{"name": "Integration", "username": "integration", "password": "pw123456"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status: got %d, want 201", resp.StatusCode)
	}
	var reg struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil || reg.Token == "" {
		t.Fatalf("register response: %v", err)
	}

	// 2) Add expense
	resp = call(t, srv, "POST", "/expenses", reg.Token, map[string]any{"title": "Lunch", "amount": 12.5, "category": "Food", "date": "2026-05-01"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create expense status: got %d, want 201", resp.StatusCode)
	}

	// 3) List
	resp = call(t, srv, "GET", "/expenses", reg.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: got %d, want 200", resp.StatusCode)
	}
	var list []struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Lunch" {
		t.Errorf("unexpected list: %+v", list)
	}

	// 4) Delete account
	resp = call(t, srv, "DELETE", "/delete-account", reg.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete-account status: got %d, want 200", resp.StatusCode)
	}

	// 5) Old token is refused
	resp = call(t, srv, "GET", "/me", reg.Token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me after delete: got %d, want 401", resp.StatusCode)
	}
	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	if out["error"] != "account deleted, please login again" {
		t.Errorf("error: got %q", out["error"])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAPI_PublicAndProtectedRoutes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	srv := httptest.NewServer(newRouter(db, config.Config{JWTSecret: "s"}, nil))
	defer srv.Close()

	resp := call(t, srv, "GET", "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}

	for _, route := range []struct{ method, path string }{
		{"GET", "/me"},
		{"GET", "/expenses"},
		{"POST", "/expenses"},
		{"PUT", "/expenses/1"},
		{"DELETE", "/expenses/1"},
		{"GET", "/expenses/summary"},
		{"GET", "/expenses/export"},
		{"POST", "/expenses/import"},
		{"DELETE", "/delete-account"},
		{"GET", "/activity"},
	} {
		resp := call(t, srv, route.method, route.path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s without token: got %d, want 401", route.method, route.path, resp.StatusCode)
		}
	}

	resp = call(t, srv, "GET", "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics: got %d", resp.StatusCode)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestAPI_LoginLimiterAndForwardedHeaders(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	login := func(h http.Handler, forwarded string) int {
		req := httptest.NewRequest("POST", "/login", bytes.NewReader([]byte(`{`)))
		req.RemoteAddr = "10.0.0.1:5000"
		req.Header.Set("X-Forwarded-For", forwarded)
		req.Header.Set("X-Real-IP", forwarded)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	// Without a trusted proxy, rotating forwarding headers shares one bucket (burst 5).
	direct := newRouter(db, config.Config{JWTSecret: "s"}, nil)
	for i := 1; i <= 5; i++ {
		if code := login(direct, fmt.Sprintf("203.0.113.%d", i)); code != http.StatusBadRequest {
			t.Fatalf("request %d: got %d, want 400", i, code)
		}
	}
	if code := login(direct, "203.0.113.6"); code != http.StatusTooManyRequests {
		t.Errorf("sixth request: got %d, want 429", code)
	}

	// Behind a trusted proxy each forwarded client has its own bucket.
	proxied := newRouter(db, config.Config{JWTSecret: "s", TrustProxy: true}, nil)
	for i := 1; i <= 6; i++ {
		if code := login(proxied, fmt.Sprintf("198.51.100.%d", i)); code != http.StatusBadRequest {
			t.Errorf("client %d: got %d, want 400", i, code)
		}
	}
}
