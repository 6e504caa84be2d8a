package client

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/crucial707/spendflow/cmd/cli/config"
)

func TestDo_SendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization: got %q", got)
		}
		if r.Method != "POST" || r.URL.Path != "/expenses" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":3}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Token: "tok"}
	var out struct {
		ID int `json:"id"`
	}
	if err := c.Do("POST", "/expenses", map[string]string{"title": "x"}, &out); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if out.ID != 3 {
		t.Errorf("id: got %d", out.ID)
	}
}

func TestDo_UnauthorizedClearsToken(t *testing.T) {
	t.Setenv("SPENDFLOW_HOME", t.TempDir())
	if err := config.SaveToken("stale"); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"account deleted, please login again"}`))
	}))
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Token: "stale"}
	err := c.Do("GET", "/me", nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("got %v, want ErrSessionExpired", err)
	}
	if _, err := config.ReadToken(); !errors.Is(err, config.ErrNotLoggedIn) {
		t.Errorf("token should be cleared, ReadToken: %v", err)
	}
}

func TestDo_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"validation failed","fields":{"title":"required","amount":"required"}}`))
	}))
	defer srv.Close()

	err := (&Client{BaseURL: srv.URL}).Do("POST", "/expenses", map[string]string{}, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %T %v, want *APIError", err, err)
	}
	if apiErr.Status != 400 || apiErr.Message != "validation failed" {
		t.Errorf("unexpected error: %+v", apiErr)
	}
	if want := "API error (400): validation failed\n  amount: required\n  title: required"; err.Error() != want {
		t.Errorf("message:\n got %q\nwant %q", err.Error(), want)
	}
}

func TestDo_LoginFailureKeepsMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid credentials"}`))
	}))
	defer srv.Close()

	err := (&Client{BaseURL: srv.URL}).Do("POST", "/login", map[string]string{}, nil)
	if err == nil || !strings.Contains(err.Error(), "invalid credentials") {
		t.Errorf("got %v", err)
	}
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "text/csv" {
			t.Errorf("Content-Type: got %q", ct)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"imported":1,"skipped":0}`))
	}))
	defer srv.Close()

	var out struct {
		Imported int `json:"imported"`
	}
	err := (&Client{BaseURL: srv.URL, Token: "t"}).Upload("/expenses/import", "text/csv", strings.NewReader("Title,Amount,Category\nA,1,B\n"), &out)
	if err != nil || out.Imported != 1 {
		t.Errorf("Upload: %v %+v", err, out)
	}
}
