package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/soundpuff/soundpuff/internal/api/handler"
	"github.com/soundpuff/soundpuff/internal/authbridge"
	"github.com/soundpuff/soundpuff/internal/authprovider"
	"github.com/soundpuff/soundpuff/internal/profiles"
	"go.uber.org/zap"
)

// ── Stub auth service ─────────────────────────────────────────────────────

type stubAuthSvc struct {
	signupRes  *authbridge.SignupResult
	signupErr  error
	session    *authprovider.Session
	loginErr   error
	refreshErr error
	logoutErr  error
	confirmErr error
	claimUser  *profiles.Profile
	claimErr   error

	resetRequests []string
}

func (s *stubAuthSvc) Signup(_ context.Context, email, _, username string) (*authbridge.SignupResult, error) {
	if s.signupErr != nil {
		return nil, s.signupErr
	}
	if s.signupRes != nil {
		return s.signupRes, nil
	}
	return &authbridge.SignupResult{
		Profile: &profiles.Profile{ID: uuid.New(), Username: username},
		Session: s.session,
	}, nil
}

func (s *stubAuthSvc) Login(_ context.Context, _, _ string) (*authprovider.Session, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return s.session, nil
}

func (s *stubAuthSvc) Refresh(_ context.Context, _ string) (*authprovider.Session, error) {
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return s.session, nil
}

func (s *stubAuthSvc) Logout(_ context.Context, _ string) error { return s.logoutErr }

func (s *stubAuthSvc) RequestPasswordReset(_ context.Context, email string) error {
	s.resetRequests = append(s.resetRequests, email)
	return nil
}

func (s *stubAuthSvc) ConfirmPasswordReset(_ context.Context, _, _ string) (*authprovider.Session, error) {
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return s.session, nil
}

func (s *stubAuthSvc) ClaimProfile(_ context.Context, _, username string) (*profiles.Profile, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if s.claimUser != nil {
		return s.claimUser, nil
	}
	return &profiles.Profile{ID: uuid.New(), Username: username}, nil
}

// ── Test setup ────────────────────────────────────────────────────────────

func setupAuthRouter(t *testing.T, svc *stubAuthSvc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if svc.session == nil && svc.signupRes == nil {
		svc.session = &authprovider.Session{
			AccessToken:  "access-token",
			RefreshToken: "refresh-token",
			TokenType:    "bearer",
			ExpiresIn:    3600,
		}
	}

	h := handler.NewAuthHandler(svc, zap.NewNop())
	r := gin.New()
	v1 := r.Group("/api/v1")
	h.Register(v1)
	return r
}

func postJSON(r *gin.Engine, path string, payload any, token string) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

// ── Tests ─────────────────────────────────────────────────────────────────

func TestSignup201WithSession(t *testing.T) {
	r := setupAuthRouter(t, &stubAuthSvc{})

	w := postJSON(r, "/api/v1/auth/signup", map[string]string{
		"email": "a@example.com", "password": "hunter22", "username": "alice",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["session"] == nil {
		t.Error("expected session in response")
	}
	if body["user"] == nil {
		t.Error("expected user in response")
	}
}

func TestSignup201ConfirmationPending(t *testing.T) {
	svc := &stubAuthSvc{signupRes: &authbridge.SignupResult{
		Profile: &profiles.Profile{ID: uuid.New(), Username: "alice"},
	}}
	r := setupAuthRouter(t, svc)

	w := postJSON(r, "/api/v1/auth/signup", map[string]string{
		"email": "a@example.com", "password": "hunter22", "username": "alice",
	}, "")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if _, hasSession := body["session"]; hasSession {
		t.Error("confirmation-pending response must not carry a session")
	}
	if body["message"] == nil {
		t.Error("expected confirmation message")
	}
}

func TestSignupUsernameTaken(t *testing.T) {
	r := setupAuthRouter(t, &stubAuthSvc{signupErr: authbridge.ErrUsernameTaken})

	w := postJSON(r, "/api/v1/auth/signup", map[string]string{
		"email": "a@example.com", "password": "hunter22", "username": "alice",
	}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "username already taken" {
		t.Errorf("error = %v, want username already taken", body["error"])
	}
}

func TestSignup400BadPayload(t *testing.T) {
	r := setupAuthRouter(t, &stubAuthSvc{})

	// Missing email.
	w := postJSON(r, "/api/v1/auth/signup", map[string]string{
		"password": "hunter22", "username": "alice",
	}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing email: status = %d, want 400", w.Code)
	}

	// Username too short.
	w = postJSON(r, "/api/v1/auth/signup", map[string]string{
		"email": "a@example.com", "password": "hunter22", "username": "ab",
	}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("short username: status = %d, want 400", w.Code)
	}
}

func TestLogin(t *testing.T) {
	svc := &stubAuthSvc{}
	r := setupAuthRouter(t, svc)

	w := postJSON(r, "/api/v1/auth/login", map[string]string{
		"email": "a@example.com", "password": "hunter22",
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	svc.loginErr = authbridge.ErrUnauthorized
	w = postJSON(r, "/api/v1/auth/login", map[string]string{
		"email": "a@example.com", "password": "wrong",
	}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad credentials: status = %d, want 401", w.Code)
	}
	if body := decodeBody(t, w); body["error"] != "invalid credentials" {
		t.Errorf("error = %v, must not distinguish failure causes", body["error"])
	}
}

func TestRefreshEndpoint(t *testing.T) {
	svc := &stubAuthSvc{}
	r := setupAuthRouter(t, svc)

	w := postJSON(r, "/api/v1/auth/refresh", map[string]string{"refresh_token": "tok"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	svc.refreshErr = authbridge.ErrUnauthorized
	w = postJSON(r, "/api/v1/auth/refresh", map[string]string{"refresh_token": "used"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("consumed token: status = %d, want 401", w.Code)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	svc := &stubAuthSvc{}
	r := setupAuthRouter(t, svc)

	if w := postJSON(r, "/api/v1/auth/logout", nil, "access-token"); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if w := postJSON(r, "/api/v1/auth/logout", nil, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d, want 401", w.Code)
	}

	svc.logoutErr = authbridge.ErrUnauthorized
	if w := postJSON(r, "/api/v1/auth/logout", nil, "stale"); w.Code != http.StatusUnauthorized {
		t.Errorf("invalid token: status = %d, want 401", w.Code)
	}
}

func TestResetRequestAlways200(t *testing.T) {
	svc := &stubAuthSvc{}
	r := setupAuthRouter(t, svc)

	w := postJSON(r, "/api/v1/auth/password-reset/request", map[string]string{"email": "ghost@example.com"}, "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 regardless of account existence", w.Code)
	}
	if len(svc.resetRequests) != 1 {
		t.Errorf("reset requests = %v", svc.resetRequests)
	}
}

func TestResetConfirmEndpoint(t *testing.T) {
	svc := &stubAuthSvc{}
	r := setupAuthRouter(t, svc)

	w := postJSON(r, "/api/v1/auth/password-reset/confirm", map[string]string{
		"token": "recovery", "new_password": "new-password",
	}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := decodeBody(t, w); body["session"] == nil {
		t.Error("expected session after successful reset")
	}

	svc.confirmErr = authbridge.ErrBadRequest
	w = postJSON(r, "/api/v1/auth/password-reset/confirm", map[string]string{
		"token": "expired", "new_password": "new-password",
	}, "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expired token: status = %d, want 400", w.Code)
	}
}

func TestClaimProfileEndpoint(t *testing.T) {
	svc := &stubAuthSvc{}
	r := setupAuthRouter(t, svc)

	w := postJSON(r, "/api/v1/auth/claim-profile", map[string]string{"username": "alice"}, "access-token")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	if w := postJSON(r, "/api/v1/auth/claim-profile", map[string]string{"username": "alice"}, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing token: status = %d, want 401", w.Code)
	}

	svc.claimErr = authbridge.ErrUsernameTaken
	if w := postJSON(r, "/api/v1/auth/claim-profile", map[string]string{"username": "alice"}, "access-token"); w.Code != http.StatusBadRequest {
		t.Errorf("taken username: status = %d, want 400", w.Code)
	}
}
