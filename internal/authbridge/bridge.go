// Package authbridge orchestrates the delegated identity provider and the
// local profile store. The provider owns credentials and sessions; the store
// owns usernames and profile metadata; the bridge keeps the two consistent
// and maps every provider outcome onto a small, fixed error taxonomy.
package authbridge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/soundpuff/soundpuff/internal/authprovider"
	"github.com/soundpuff/soundpuff/internal/profiles"
	"go.uber.org/zap"
)

// The caller-facing error taxonomy. Handlers map these to HTTP statuses;
// nothing else crosses the bridge boundary.
var (
	// ErrUsernameTaken: the desired username already has a profile row.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrProviderSignup: account creation failed, on the provider side or
	// while persisting the linked profile.
	ErrProviderSignup = errors.New("failed to create user account")

	// ErrUnauthorized covers bad credentials, bad/expired/rotated tokens, and
	// an unreachable provider during verification. Deliberately a single
	// outcome: callers must not be able to tell "wrong password" from
	// "no such account" or "provider down".
	ErrUnauthorized = errors.New("invalid credentials")

	// ErrProfileNotFound: the credential is valid but no local profile was
	// ever linked (the signup orphan window, or a signup that never finished).
	// Distinct from ErrUnauthorized so clients can trigger profile claiming.
	ErrProfileNotFound = errors.New("user profile not found")

	// ErrBadRequest: malformed password-reset confirmation (invalid or
	// expired recovery token, or the password update was rejected).
	ErrBadRequest = errors.New("invalid or expired reset token")
)

// profileRepo is the slice of the profile store the bridge needs.
type profileRepo interface {
	Create(ctx context.Context, p *profiles.Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*profiles.Profile, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// Bridge implements signup, login, logout, token refresh, and password reset
// against the identity provider, reconciling results with the profile store.
type Bridge struct {
	provider authprovider.Provider
	repo     profileRepo
	logger   *zap.Logger
}

// New creates a Bridge.
func New(provider authprovider.Provider, repo profileRepo, logger *zap.Logger) *Bridge {
	return &Bridge{provider: provider, repo: repo, logger: logger}
}

// SignupResult is the outcome of a successful signup. Session is nil when
// the provider requires email confirmation before issuing tokens.
type SignupResult struct {
	Profile *profiles.Profile
	Session *authprovider.Session
}

// Signup registers a provider account and links a local profile to it.
//
// The username check runs before the provider call so an obviously-taken
// username never creates a provider-side account. The check-then-act race
// that remains is closed by the storage-layer uniqueness constraint: a
// concurrent insert surfaces as ErrUsernameTaken here too.
//
// The two creation steps are not transactional across systems. If the local
// insert fails after the provider account exists, the provider account is NOT
// rolled back — the account is orphaned until the client claims a profile
// (see ClaimProfile) after hitting ErrProfileNotFound.
func (b *Bridge) Signup(ctx context.Context, email, password, username string) (*SignupResult, error) {
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrProviderSignup)
	}

	taken, err := b.repo.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	acct, sess, err := b.provider.CreateAccount(ctx, email, password)
	if err != nil {
		b.logger.Warn("provider rejected signup", zap.String("email", email), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProviderSignup, providerDetail(err))
	}

	p := &profiles.Profile{ID: acct.ID, Username: username}
	if err := b.repo.Create(ctx, p); err != nil {
		if errors.Is(err, profiles.ErrDuplicateUsername) {
			// Lost the race; the provider account is now orphaned.
			b.logger.Warn("orphaned provider account: username taken at insert",
				zap.String("account_id", acct.ID.String()),
				zap.String("username", username),
			)
			return nil, ErrUsernameTaken
		}
		b.logger.Error("orphaned provider account: profile insert failed",
			zap.String("account_id", acct.ID.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: could not create profile", ErrProviderSignup)
	}

	return &SignupResult{Profile: p, Session: sess}, nil
}

// Login verifies credentials with the provider. Every failure mode — wrong
// password, unknown email, provider unreachable — collapses to
// ErrUnauthorized with no distinguishing detail.
func (b *Bridge) Login(ctx context.Context, email, password string) (*authprovider.Session, error) {
	sess, err := b.provider.VerifyCredentials(ctx, email, password)
	if err != nil {
		b.logUnauthorized("login", err)
		return nil, ErrUnauthorized
	}
	if sess == nil || sess.AccessToken == "" {
		return nil, ErrUnauthorized
	}
	return sess, nil
}

// Refresh rotates a refresh token into a new session. The old refresh token
// is invalidated by the provider as a side effect — presenting it again
// yields ErrUnauthorized.
func (b *Bridge) Refresh(ctx context.Context, refreshToken string) (*authprovider.Session, error) {
	sess, err := b.provider.RotateSession(ctx, refreshToken)
	if err != nil {
		b.logUnauthorized("refresh", err)
		return nil, ErrUnauthorized
	}
	if sess == nil || sess.AccessToken == "" {
		return nil, ErrUnauthorized
	}
	return sess, nil
}

// Logout revokes every session of the account owning the presented access
// token ("revoke everywhere", not "revoke this token"). Fails closed on an
// invalid token.
func (b *Bridge) Logout(ctx context.Context, accessToken string) error {
	if _, err := b.provider.ResolveToken(ctx, accessToken); err != nil {
		b.logUnauthorized("logout", err)
		return ErrUnauthorized
	}
	if err := b.provider.RevokeSessions(ctx, accessToken, authprovider.ScopeGlobal); err != nil {
		b.logUnauthorized("logout revoke", err)
		return ErrUnauthorized
	}
	return nil
}

// RequestPasswordReset asks the provider to send a reset email. Always
// returns nil — response shape must not reveal whether the address exists.
func (b *Bridge) RequestPasswordReset(ctx context.Context, email string) error {
	if err := b.provider.SendResetEmail(ctx, email); err != nil {
		b.logger.Warn("password reset request failed silently", zap.Error(err))
	}
	return nil
}

// ConfirmPasswordReset exchanges a recovery token for a session and sets the
// new password. The returned session lets the user continue without logging
// in again. Either step failing yields ErrBadRequest.
func (b *Bridge) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (*authprovider.Session, error) {
	_, sess, err := b.provider.VerifyResetToken(ctx, token)
	if err != nil {
		b.logger.Info("recovery token rejected", zap.Error(err))
		return nil, ErrBadRequest
	}
	if sess == nil || sess.AccessToken == "" {
		return nil, ErrBadRequest
	}
	if err := b.provider.SetPassword(ctx, sess.AccessToken, newPassword); err != nil {
		b.logger.Info("password update rejected", zap.Error(err))
		return nil, fmt.Errorf("%w: password update rejected", ErrBadRequest)
	}
	return sess, nil
}

// Authenticate resolves an access token to its linked profile. This is the
// request-authentication path: one provider round trip per request, no local
// signature verification or caching.
func (b *Bridge) Authenticate(ctx context.Context, accessToken string) (*profiles.Profile, error) {
	acct, err := b.provider.ResolveToken(ctx, accessToken)
	if err != nil {
		b.logUnauthorized("authenticate", err)
		return nil, ErrUnauthorized
	}

	p, err := b.repo.GetByID(ctx, acct.ID)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("lookup profile: %w", err)
	}
	return p, nil
}

// ClaimProfile idempotently creates the profile row for a valid access token
// whose account has none — the recovery path for accounts orphaned by a
// signup that failed after provider-side creation. If a profile already
// exists it is returned unchanged.
func (b *Bridge) ClaimProfile(ctx context.Context, accessToken, username string) (*profiles.Profile, error) {
	acct, err := b.provider.ResolveToken(ctx, accessToken)
	if err != nil {
		b.logUnauthorized("claim profile", err)
		return nil, ErrUnauthorized
	}

	if p, err := b.repo.GetByID(ctx, acct.ID); err == nil {
		return p, nil
	} else if !errors.Is(err, profiles.ErrNotFound) {
		return nil, fmt.Errorf("lookup profile: %w", err)
	}

	taken, err := b.repo.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return nil, ErrUsernameTaken
	}

	p := &profiles.Profile{ID: acct.ID, Username: username}
	if err := b.repo.Create(ctx, p); err != nil {
		if errors.Is(err, profiles.ErrDuplicateUsername) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}

	b.logger.Info("orphaned account claimed profile",
		zap.String("account_id", acct.ID.String()),
		zap.String("username", username),
	)
	return p, nil
}

// logUnauthorized records why a request collapsed to ErrUnauthorized.
// Explicit provider denials log at debug; transport failures at warn — the
// caller sees the same outcome either way.
func (b *Bridge) logUnauthorized(op string, err error) {
	if errors.Is(err, authprovider.ErrDenied) {
		b.logger.Debug(op+" denied", zap.Error(err))
		return
	}
	b.logger.Warn(op+" failed: provider unreachable", zap.Error(err))
}

// providerDetail strips the ErrDenied prefix so signup error context stays
// readable without leaking wrapper structure.
func providerDetail(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if cut, ok := strings.CutPrefix(msg, authprovider.ErrDenied.Error()+": "); ok {
		return cut
	}
	return msg
}
