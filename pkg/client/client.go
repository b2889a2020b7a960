// Package client provides the SoundPuff Go SDK for the public HTTP API:
// account signup and login, session management, profiles, and catalog search.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrUnauthorized is returned when the API rejects the current session and
// the client has no refresh token left to recover with.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound is returned for missing users or profiles.
var ErrNotFound = errors.New("not found")

// Session holds the token pair returned by login, signup, and refresh.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// User is a public profile as returned by the API.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Bio       string    `json:"bio"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
}

// Song is one catalog entry in search results.
type Song struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	AlbumArtURL string `json:"album_art_url"`
	SongURL     string `json:"song_url"`
}

// SearchResult holds a combined search response.
type SearchResult struct {
	Query string `json:"query"`
	Songs []Song `json:"songs"`
	Users []User `json:"users"`
}

// SignupResult is the signup response. Session is nil when the server
// requires email confirmation before issuing tokens.
type SignupResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
	Message string   `json:"message"`
}

// Client is the SoundPuff SDK entry point. It is safe for concurrent use;
// the session token pair is guarded internally.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	session *Session
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithSession seeds the client with a previously stored token pair.
func WithSession(s *Session) Option {
	return func(c *Client) { c.session = s }
}

// New creates a Client for the API at baseURL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Session returns a copy of the current token pair, or nil when logged out.
// Callers persist this to survive process restarts.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Signup registers a new account. When the returned result carries no
// session, the server requires email confirmation before the first login.
func (c *Client) Signup(ctx context.Context, email, password, username string) (*SignupResult, error) {
	var out SignupResult
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email":    email,
		"password": password,
		"username": username,
	}, false, &out)
	if err != nil {
		return nil, err
	}
	if out.Session != nil {
		c.setSession(out.Session)
	}
	return &out, nil
}

// Login authenticates with email and password and stores the session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var out struct {
		Session *Session `json:"session"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, false, &out)
	if err != nil {
		return nil, err
	}
	c.setSession(out.Session)
	return out.Session, nil
}

// Refresh rotates the stored refresh token for a new session. The old pair
// is invalid afterwards whether or not the call succeeds.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()
	if sess == nil || sess.RefreshToken == "" {
		return nil, ErrUnauthorized
	}

	var out struct {
		Session *Session `json:"session"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": sess.RefreshToken,
	}, false, &out)
	if err != nil {
		return nil, err
	}
	c.setSession(out.Session)
	return out.Session, nil
}

// Logout revokes every session of the account and clears local state.
func (c *Client) Logout(ctx context.Context) error {
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/logout", nil, true, nil)
	c.setSession(nil)
	return err
}

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/users/me", nil, true, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// UpdateProfile updates the authenticated user's bio and avatar URL.
func (c *Client) UpdateProfile(ctx context.Context, bio, avatarURL string) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	err := c.doJSON(ctx, http.MethodPut, "/api/v1/users/me", map[string]string{
		"bio":        bio,
		"avatar_url": avatarURL,
	}, true, &out)
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

// GetUser fetches a public profile by username.
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	path := "/api/v1/users/" + url.PathEscape(username)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, false, &out); err != nil {
		return nil, err
	}
	return out.User, nil
}

// Search queries songs and users. kind is "songs", "users", or "all".
func (c *Client) Search(ctx context.Context, query, kind string) (*SearchResult, error) {
	if kind == "" {
		kind = "all"
	}
	var out SearchResult
	path := "/api/v1/search?q=" + url.QueryEscape(query) + "&type=" + url.QueryEscape(kind)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, true, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestPasswordReset asks the server to email a reset link. Succeeds
// whether or not the address is registered.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/auth/password-reset/request", map[string]string{
		"email": email,
	}, false, nil)
}

// ConfirmPasswordReset redeems a recovery token for a new password and a
// fresh session.
func (c *Client) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (*Session, error) {
	var out struct {
		Session *Session `json:"session"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/password-reset/confirm", map[string]string{
		"token":        token,
		"new_password": newPassword,
	}, false, &out)
	if err != nil {
		return nil, err
	}
	c.setSession(out.Session)
	return out.Session, nil
}

// ClaimProfile creates the profile row for an account whose signup never
// finished linking one. No-op when the profile already exists.
func (c *Client) ClaimProfile(ctx context.Context, username string) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/claim-profile", map[string]string{
		"username": username,
	}, true, &out)
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// doJSON executes one API call. When auth is true the stored access token is
// attached; a 401 triggers one silent refresh-and-retry before giving up.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any, auth bool, out any) error {
	status, body, err := c.roundTrip(ctx, method, path, payload, auth)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && auth {
		if _, rerr := c.Refresh(ctx); rerr == nil {
			status, body, err = c.roundTrip(ctx, method, path, payload, auth)
			if err != nil {
				return err
			}
		}
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiError(body))
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, apiError(body))
	case status >= 300:
		return fmt.Errorf("api error %d: %s", status, apiError(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, payload any, auth bool) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		c.mu.Lock()
		if c.session != nil && c.session.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+c.session.AccessToken)
		}
		c.mu.Unlock()
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

// apiError extracts the "error" field from an API error body, falling back
// to the raw body.
func apiError(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
