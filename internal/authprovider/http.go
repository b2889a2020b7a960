package authprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HTTPProvider talks to a GoTrue-compatible hosted auth service (the API
// Supabase exposes under /auth/v1). Tokens issued by the service are treated
// as opaque strings — validation always goes back to the provider.
type HTTPProvider struct {
	baseURL    string // e.g. "https://xyzcompany.supabase.co/auth/v1"
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHTTPProvider creates an HTTPProvider. timeout bounds every provider
// round trip; a timed-out call surfaces as an ordinary error, never a retry.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *HTTPProvider {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// gotrueUser is the subset of the provider's user object we consume.
type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// gotrueSession covers both response shapes the provider uses: session fields
// at the top level with a nested user (signup/login/refresh/verify), or a bare
// user object (signup with email confirmation pending, GET /user).
type gotrueSession struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int         `json:"expires_in"`
	User         *gotrueUser `json:"user"`

	// Set when the body is a bare user object.
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (g *gotrueSession) session() *Session {
	if g.AccessToken == "" {
		return nil
	}
	tokenType := g.TokenType
	if tokenType == "" {
		tokenType = "bearer"
	}
	return &Session{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		TokenType:    tokenType,
		ExpiresIn:    g.ExpiresIn,
	}
}

func (g *gotrueSession) account() (*Account, error) {
	id, email := g.ID, g.Email
	if g.User != nil {
		id, email = g.User.ID, g.User.Email
	}
	if id == "" {
		return nil, nil
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("provider returned non-uuid account id %q: %w", id, err)
	}
	return &Account{ID: uid, Email: email}, nil
}

// CreateAccount implements Provider via POST /signup.
func (p *HTTPProvider) CreateAccount(ctx context.Context, email, password string) (*Account, *Session, error) {
	var out gotrueSession
	err := p.call(ctx, http.MethodPost, "/signup", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, nil, err
	}
	acct, err := out.account()
	if err != nil {
		return nil, nil, err
	}
	if acct == nil {
		return nil, nil, fmt.Errorf("signup response carried no account id")
	}
	return acct, out.session(), nil
}

// VerifyCredentials implements Provider via POST /token?grant_type=password.
func (p *HTTPProvider) VerifyCredentials(ctx context.Context, email, password string) (*Session, error) {
	var out gotrueSession
	err := p.call(ctx, http.MethodPost, "/token?grant_type=password", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	sess := out.session()
	if sess == nil {
		return nil, fmt.Errorf("%w: no session in password grant response", ErrDenied)
	}
	return sess, nil
}

// RotateSession implements Provider via POST /token?grant_type=refresh_token.
// The provider invalidates the presented refresh token as a side effect.
func (p *HTTPProvider) RotateSession(ctx context.Context, refreshToken string) (*Session, error) {
	var out gotrueSession
	err := p.call(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	sess := out.session()
	if sess == nil {
		return nil, fmt.Errorf("%w: no session in refresh grant response", ErrDenied)
	}
	return sess, nil
}

// ResolveToken implements Provider via GET /user.
func (p *HTTPProvider) ResolveToken(ctx context.Context, accessToken string) (*Account, error) {
	var out gotrueSession
	if err := p.call(ctx, http.MethodGet, "/user", accessToken, nil, &out); err != nil {
		return nil, err
	}
	acct, err := out.account()
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: token resolved to no account", ErrDenied)
	}
	return acct, nil
}

// RevokeSessions implements Provider via POST /logout?scope=....
func (p *HTTPProvider) RevokeSessions(ctx context.Context, accessToken string, scope RevocationScope) error {
	return p.call(ctx, http.MethodPost, "/logout?scope="+string(scope), accessToken, nil, nil)
}

// SendResetEmail implements Provider via POST /recover.
func (p *HTTPProvider) SendResetEmail(ctx context.Context, email string) error {
	return p.call(ctx, http.MethodPost, "/recover", "", map[string]string{"email": email}, nil)
}

// VerifyResetToken implements Provider via POST /verify with type=recovery.
func (p *HTTPProvider) VerifyResetToken(ctx context.Context, token string) (*Account, *Session, error) {
	var out gotrueSession
	err := p.call(ctx, http.MethodPost, "/verify", "", map[string]string{
		"type":       "recovery",
		"token_hash": token,
	}, &out)
	if err != nil {
		return nil, nil, err
	}
	sess := out.session()
	if sess == nil {
		return nil, nil, fmt.Errorf("%w: recovery verification returned no session", ErrDenied)
	}
	acct, err := out.account()
	if err != nil {
		return nil, nil, err
	}
	return acct, sess, nil
}

// SetPassword implements Provider via PUT /user. The bearer token must come
// from VerifyResetToken (a recovery-scoped session).
func (p *HTTPProvider) SetPassword(ctx context.Context, accessToken, newPassword string) error {
	return p.call(ctx, http.MethodPut, "/user", accessToken, map[string]string{
		"password": newPassword,
	}, nil)
}

// Ping reports whether the provider is reachable. Used by the health
// endpoint; a denial still counts as reachable.
func (p *HTTPProvider) Ping(ctx context.Context) error {
	err := p.call(ctx, http.MethodGet, "/health", "", nil, nil)
	if err != nil && !errors.Is(err, ErrDenied) {
		return err
	}
	return nil
}

// call executes one provider round trip. A 4xx status maps to ErrDenied with
// the provider's message as context; 5xx and transport failures are plain
// errors. out may be nil when the response body is irrelevant.
func (p *HTTPProvider) call(ctx context.Context, method, path, bearer string, payload any, out any) error {
	var bodyReader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("apikey", p.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("%w: %s", ErrDenied, providerMessage(body, resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("identity provider error %d: %s", resp.StatusCode, body)
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode provider response: %w", err)
		}
	}
	return nil
}

// providerMessage extracts the human-readable error out of the few body
// shapes the provider uses.
func providerMessage(body []byte, status int) string {
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, m := range []string{payload.Msg, payload.Message, payload.ErrorDescription} {
			if m != "" {
				return m
			}
		}
	}
	return fmt.Sprintf("status %d", status)
}
