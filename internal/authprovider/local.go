package authprovider

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/soundpuff/soundpuff/internal/email"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const localIssuer = "soundpuff-local"

// LocalProvider is a self-contained, in-memory identity provider used when no
// hosted auth service is configured (development) and as the programmable
// substitute in tests. It implements the same observable contract as the
// hosted service: bcrypt-checked passwords, short-lived HS256 access tokens,
// single-use rotating refresh tokens, global revocation, and one-time
// recovery tokens delivered by email.
//
// Accounts live only as long as the process. Do not use in production.
type LocalProvider struct {
	mu       sync.Mutex
	byEmail  map[string]*localAccount
	byID     map[uuid.UUID]*localAccount
	refresh  map[string]*refreshRecord
	recovery map[string]*recoveryRecord

	secret        []byte
	accessTTL     time.Duration
	frontendURL   string
	confirmSignup bool
	mailer        email.EmailSender
	logger        *zap.Logger
}

type localAccount struct {
	id    uuid.UUID
	email string
	hash  []byte
	// generation is bumped on RevokeSessions; tokens minted under an older
	// generation stop resolving.
	generation int
}

type refreshRecord struct {
	accountID  uuid.UUID
	generation int
	used       bool
}

type recoveryRecord struct {
	accountID uuid.UUID
	expiresAt time.Time
	used      bool
}

// NewLocalProvider creates a LocalProvider. secret signs access tokens; pass
// nil to generate a random per-process secret. accessTTL defaults to 1 hour.
func NewLocalProvider(secret []byte, accessTTL time.Duration, mailer email.EmailSender, logger *zap.Logger) *LocalProvider {
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	if accessTTL == 0 {
		accessTTL = time.Hour
	}
	return &LocalProvider{
		byEmail:     make(map[string]*localAccount),
		byID:        make(map[uuid.UUID]*localAccount),
		refresh:     make(map[string]*refreshRecord),
		recovery:    make(map[string]*recoveryRecord),
		secret:      secret,
		accessTTL:   accessTTL,
		frontendURL: "http://localhost:3000",
		mailer:      mailer,
		logger:      logger,
	}
}

// SetFrontendURL sets the base URL embedded in password-reset links.
func (p *LocalProvider) SetFrontendURL(url string) {
	p.frontendURL = url
}

// SetSignupConfirmation toggles email-confirmation mode: when enabled,
// CreateAccount returns the account without a session, mirroring a hosted
// provider configured to require confirmed emails.
func (p *LocalProvider) SetSignupConfirmation(required bool) {
	p.confirmSignup = required
}

type localClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	Generation int    `json:"gen"`
}

// CreateAccount implements Provider.
func (p *LocalProvider) CreateAccount(_ context.Context, emailAddr, password string) (*Account, *Session, error) {
	if err := checkPassword(password); err != nil {
		return nil, nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	key := strings.ToLower(emailAddr)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byEmail[key]; exists {
		return nil, nil, fmt.Errorf("%w: email already registered", ErrDenied)
	}

	acct := &localAccount{id: uuid.New(), email: key, hash: hash}
	p.byEmail[key] = acct
	p.byID[acct.id] = acct

	out := &Account{ID: acct.id, Email: acct.email}
	if p.confirmSignup {
		return out, nil, nil
	}

	sess, err := p.issueSessionLocked(acct)
	if err != nil {
		return nil, nil, err
	}
	return out, sess, nil
}

// VerifyCredentials implements Provider.
func (p *LocalProvider) VerifyCredentials(_ context.Context, emailAddr, password string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.byEmail[strings.ToLower(emailAddr)]
	if !ok {
		return nil, fmt.Errorf("%w: invalid login credentials", ErrDenied)
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid login credentials", ErrDenied)
	}
	return p.issueSessionLocked(acct)
}

// RotateSession implements Provider. Refresh tokens are strictly single-use:
// the presented token is consumed whether or not a new session is issued.
func (p *LocalProvider) RotateSession(_ context.Context, refreshToken string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.refresh[refreshToken]
	if !ok || rec.used {
		return nil, fmt.Errorf("%w: refresh token invalid or already used", ErrDenied)
	}
	rec.used = true

	acct, ok := p.byID[rec.accountID]
	if !ok || rec.generation != acct.generation {
		return nil, fmt.Errorf("%w: refresh token revoked", ErrDenied)
	}
	return p.issueSessionLocked(acct)
}

// ResolveToken implements Provider.
func (p *LocalProvider) ResolveToken(_ context.Context, accessToken string) (*Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, _, err := p.resolveLocked(accessToken)
	if err != nil {
		return nil, err
	}
	return &Account{ID: acct.id, Email: acct.email}, nil
}

// RevokeSessions implements Provider. The local provider has no per-session
// bookkeeping, so both scopes revoke everything the account holds.
func (p *LocalProvider) RevokeSessions(_ context.Context, accessToken string, _ RevocationScope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, _, err := p.resolveLocked(accessToken)
	if err != nil {
		return err
	}
	acct.generation++
	return nil
}

// SendResetEmail implements Provider. Silent on unknown addresses.
func (p *LocalProvider) SendResetEmail(ctx context.Context, emailAddr string) error {
	p.mu.Lock()
	acct, ok := p.byEmail[strings.ToLower(emailAddr)]
	if !ok {
		p.mu.Unlock()
		return nil
	}
	token, err := generateSecureToken(32)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("generate recovery token: %w", err)
	}
	p.recovery[token] = &recoveryRecord{
		accountID: acct.id,
		expiresAt: time.Now().UTC().Add(time.Hour),
	}
	to := acct.email
	p.mu.Unlock()

	link := p.frontendURL + "/reset-password?token=" + token
	body := fmt.Sprintf(
		"Reset your SoundPuff password:\n\n  %s\n\nThis link expires in 1 hour.\n\nIf you did not request a password reset, ignore this email.\n",
		link,
	)
	if err := p.mailer.Send(ctx, to, "Reset your SoundPuff password", body); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}
	return nil
}

// VerifyResetToken implements Provider. Tokens are one-shot and expire after
// an hour.
func (p *LocalProvider) VerifyResetToken(_ context.Context, token string) (*Account, *Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.recovery[token]
	if !ok || rec.used || time.Now().After(rec.expiresAt) {
		return nil, nil, fmt.Errorf("%w: recovery token invalid or expired", ErrDenied)
	}
	rec.used = true

	acct, ok := p.byID[rec.accountID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: recovery token has no account", ErrDenied)
	}
	sess, err := p.issueSessionLocked(acct)
	if err != nil {
		return nil, nil, err
	}
	return &Account{ID: acct.id, Email: acct.email}, sess, nil
}

// SetPassword implements Provider.
func (p *LocalProvider) SetPassword(_ context.Context, accessToken, newPassword string) error {
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acct, _, err := p.resolveLocked(accessToken)
	if err != nil {
		return err
	}
	acct.hash = hash
	return nil
}

// issueSessionLocked mints an access/refresh pair. Caller holds p.mu.
func (p *LocalProvider) issueSessionLocked(acct *localAccount) (*Session, error) {
	now := time.Now().UTC()
	claims := localClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    localIssuer,
			Subject:   acct.id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.accessTTL)),
			ID:        uuid.New().String(),
		},
		Email:      acct.email,
		Generation: acct.generation,
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := generateSecureToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	p.refresh[refresh] = &refreshRecord{accountID: acct.id, generation: acct.generation}

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int(p.accessTTL.Seconds()),
	}, nil
}

// resolveLocked validates an access token and returns its live account.
// Caller holds p.mu.
func (p *LocalProvider) resolveLocked(accessToken string) (*localAccount, *localClaims, error) {
	token, err := jwt.ParseWithClaims(
		accessToken,
		&localClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return p.secret, nil
		},
		jwt.WithIssuer(localIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDenied, err)
	}
	claims, ok := token.Claims.(*localClaims)
	if !ok || !token.Valid {
		return nil, nil, fmt.Errorf("%w: invalid token claims", ErrDenied)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: malformed subject", ErrDenied)
	}
	acct, ok := p.byID[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: unknown account", ErrDenied)
	}
	if claims.Generation != acct.generation {
		return nil, nil, fmt.Errorf("%w: session revoked", ErrDenied)
	}
	return acct, claims, nil
}

func checkPassword(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("%w: password should be at least 6 characters", ErrDenied)
	}
	return nil
}

// generateSecureToken returns a hex-encoded random token of the given byte length.
func generateSecureToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
