// Package authprovider wraps the delegated identity service that owns
// credential verification and the whole session lifecycle. SoundPuff never
// stores passwords or sessions itself — it asks the provider and links the
// result to a local profile row.
package authprovider

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDenied is returned when the provider explicitly rejects a credential,
// token, or account operation (wrong password, expired/rotated token,
// duplicate email). Transport and decoding failures are returned as ordinary
// wrapped errors so callers can tell "the provider said no" apart from
// "the provider was unreachable" — both collapse to the same caller-facing
// outcome, but they are logged differently.
var ErrDenied = errors.New("denied by identity provider")

// Session is the token bundle issued by the identity provider. The access
// token is short-lived; the refresh token is single-use and replaced on
// every rotation.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
}

// Account is the provider-side account record. Its ID is the stable subject
// identifier reused as the primary key of the local profile row.
type Account struct {
	ID    uuid.UUID
	Email string
}

// RevocationScope selects how much of an account's session state a
// RevokeSessions call invalidates.
type RevocationScope string

const (
	// ScopeGlobal revokes every session issued for the account.
	ScopeGlobal RevocationScope = "global"
	// ScopeLocal revokes only the session the presented token belongs to.
	ScopeLocal RevocationScope = "local"
)

// Provider is the contract of the delegated identity service.
//
// All calls are synchronous and blocking; implementations apply their own
// timeouts and never retry — retrying a mutating call (account creation,
// password update, revocation) risks duplicate side effects.
type Provider interface {
	// CreateAccount registers a new email/password account. A nil Session with
	// a non-nil Account means the provider requires email confirmation before
	// issuing tokens — a valid success path, not an error.
	CreateAccount(ctx context.Context, email, password string) (*Account, *Session, error)

	// VerifyCredentials checks an email/password pair and returns a fresh
	// session. Wrong credentials yield ErrDenied.
	VerifyCredentials(ctx context.Context, email, password string) (*Session, error)

	// RotateSession exchanges a refresh token for a new session. The input
	// token is invalidated as a side effect; presenting it again yields
	// ErrDenied.
	RotateSession(ctx context.Context, refreshToken string) (*Session, error)

	// ResolveToken validates an access token and returns the owning account.
	ResolveToken(ctx context.Context, accessToken string) (*Account, error)

	// RevokeSessions invalidates sessions for the account that owns the
	// presented access token, per the given scope.
	RevokeSessions(ctx context.Context, accessToken string, scope RevocationScope) error

	// SendResetEmail asks the provider to email a password-reset link.
	// Fire-and-forget: a nil error does not imply the address exists.
	SendResetEmail(ctx context.Context, email string) error

	// VerifyResetToken exchanges a one-time recovery token for a session
	// scoped to the password-reset flow.
	VerifyResetToken(ctx context.Context, token string) (*Account, *Session, error)

	// SetPassword updates the password of the account that owns the presented
	// access token (obtained from VerifyResetToken).
	SetPassword(ctx context.Context, accessToken, newPassword string) error
}
