package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/soundpuff/soundpuff/pkg/client"
)

// fakeAPI mimics the subset of the SoundPuff API the SDK talks to.
type fakeAPI struct {
	validAccess  string
	validRefresh string
	loginCalls   int
	refreshCalls int
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	session := func(access, refresh string) map[string]any {
		return map[string]any{"session": map[string]any{
			"access_token":  access,
			"refresh_token": refresh,
			"token_type":    "bearer",
			"expires_in":    3600,
		}}
	}

	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		f.loginCalls++
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "hunter22" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		f.validAccess, f.validRefresh = "access-1", "refresh-1"
		writeJSON(w, http.StatusOK, session("access-1", "refresh-1"))
	})

	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls++
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["refresh_token"] != f.validRefresh {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
			return
		}
		f.validAccess, f.validRefresh = f.validAccess+"r", f.validRefresh+"r"
		writeJSON(w, http.StatusOK, session(f.validAccess, f.validRefresh))
	})

	mux.HandleFunc("GET /api/v1/users/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+f.validAccess {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]string{
			"id": "11111111-1111-1111-1111-111111111111", "username": "alice",
		}})
	})

	mux.HandleFunc("GET /api/v1/users/{username}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("username") != "alice" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]string{"username": "alice"}})
	})

	mux.HandleFunc("GET /api/v1/search", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"query": r.URL.Query().Get("q"),
			"songs": []map[string]any{{"id": 1, "title": "Puff", "artist": "The Clouds"}},
			"users": []map[string]any{},
		})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*fakeAPI, *client.Client) {
	t.Helper()
	f := &fakeAPI{}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return f, client.New(srv.URL)
}

func TestLoginAndMe(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Login(ctx, "a@example.com", "wrong"); !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("bad login: err = %v, want ErrUnauthorized", err)
	}

	sess, err := c.Login(ctx, "a@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.AccessToken != "access-1" {
		t.Errorf("access token = %q", sess.AccessToken)
	}

	me, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.Username != "alice" {
		t.Errorf("username = %q", me.Username)
	}
}

func TestAutoRefreshOn401(t *testing.T) {
	f, c := newTestClient(t)
	ctx := context.Background()

	if _, err := c.Login(ctx, "a@example.com", "hunter22"); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Invalidate the access token server-side; the refresh token stays valid.
	f.validAccess = "rotated-elsewhere"

	me, err := c.Me(ctx)
	if err != nil {
		t.Fatalf("Me after stale access token: %v", err)
	}
	if me.Username != "alice" {
		t.Errorf("username = %q", me.Username)
	}
	if f.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", f.refreshCalls)
	}

	// The client's stored pair must be the rotated one.
	if s := c.Session(); s == nil || s.RefreshToken != f.validRefresh {
		t.Errorf("stored session = %+v, want refresh %q", c.Session(), f.validRefresh)
	}
}

func TestMeWithoutSession(t *testing.T) {
	_, c := newTestClient(t)

	if _, err := c.Me(context.Background()); !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestGetUser(t *testing.T) {
	_, c := newTestClient(t)
	ctx := context.Background()

	u, err := c.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("username = %q", u.Username)
	}

	if _, err := c.GetUser(ctx, "nobody"); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("unknown user: err = %v, want ErrNotFound", err)
	}
}

func TestSearch(t *testing.T) {
	_, c := newTestClient(t)

	res, err := c.Search(context.Background(), "puff", "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.Query != "puff" || len(res.Songs) != 1 {
		t.Errorf("result = %+v", res)
	}
}
