package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

func writeToken(w http.ResponseWriter, token string, expiresIn int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   expiresIn,
	})
}

func TestTokenCache_AcquiresToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse form: %v", err)
		}
		if got := r.FormValue("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type: got %q", got)
		}
		if got := r.FormValue("client_id"); got != "test-client-id" {
			t.Errorf("client_id: got %q", got)
		}
		if got := r.FormValue("client_secret"); got != "test-client-secret" {
			t.Errorf("client_secret: got %q", got)
		}
		if got := r.FormValue("scope"); got != graphScope {
			t.Errorf("scope: got %q, want %q", got, graphScope)
		}
		writeToken(w, "test-access-token", 3600)
	}))
	defer server.Close()

	tc := newTokenCache(server.URL, "test-client-id", "test-client-secret", server.Client())

	token, err := tc.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "test-access-token" {
		t.Errorf("token: got %q, want %q", token, "test-access-token")
	}
}

func TestTokenCache_CachesToken(t *testing.T) {
	t.Parallel()

	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		writeToken(w, "cached-token", 3600)
	}))
	defer server.Close()

	tc := newTokenCache(server.URL, "cid", "csecret", server.Client())

	for i := 0; i < 3; i++ {
		token, err := tc.Token(context.Background())
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if token != "cached-token" {
			t.Errorf("token: got %q", token)
		}
	}
	if callCount.Load() != 1 {
		t.Errorf("server call count: got %d, want 1", callCount.Load())
	}
}

func TestTokenCache_RefreshesNearExpiry(t *testing.T) {
	t.Parallel()

	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := callCount.Add(1)
		// Inside the expiry buffer, so never reused.
		writeToken(w, "token-"+strconv.Itoa(int(n)), 60)
	}))
	defer server.Close()

	tc := newTokenCache(server.URL, "cid", "csecret", server.Client())

	first, err := tc.Token(context.Background())
	if err != nil {
		t.Fatalf("first call error: %v", err)
	}
	second, err := tc.Token(context.Background())
	if err != nil {
		t.Fatalf("second call error: %v", err)
	}
	if first == second {
		t.Errorf("expected a fresh token, got %q twice", first)
	}
	if callCount.Load() != 2 {
		t.Errorf("server call count: got %d, want 2", callCount.Load())
	}
}

func TestTokenCache_ForceRefresh(t *testing.T) {
	t.Parallel()

	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := callCount.Add(1)
		writeToken(w, "token-"+strconv.Itoa(int(n)), 3600)
	}))
	defer server.Close()

	tc := newTokenCache(server.URL, "cid", "csecret", server.Client())

	if _, err := tc.Token(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	token, err := tc.ForceRefresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "token-2" {
		t.Errorf("token after refresh: got %q, want %q", token, "token-2")
	}
}

func TestTokenCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	var callCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount.Add(1)
		writeToken(w, "shared", 3600)
	}))
	defer server.Close()

	tc := newTokenCache(server.URL, "cid", "csecret", server.Client())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tc.Token(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if callCount.Load() != 1 {
		t.Errorf("server call count: got %d, want 1", callCount.Load())
	}
}

func TestTokenCache_ServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	tc := newTokenCache(server.URL, "cid", "bad", server.Client())
	if _, err := tc.Token(context.Background()); err == nil {
		t.Fatal("expected error from token endpoint")
	}
}

func TestTokenCache_EmptyAccessToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeToken(w, "", 3600)
	}))
	defer server.Close()

	tc := newTokenCache(server.URL, "cid", "csecret", server.Client())
	if _, err := tc.Token(context.Background()); err == nil {
		t.Fatal("expected error for empty access token")
	}
}
