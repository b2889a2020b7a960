// Package handler contains the Gin HTTP handlers and middleware for the
// SoundPuff API.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundpuff/soundpuff/internal/authbridge"
	"github.com/soundpuff/soundpuff/internal/authprovider"
	"github.com/soundpuff/soundpuff/internal/profiles"
	"go.uber.org/zap"
)

// authSvc is the interface expected by AuthHandler, satisfied by *authbridge.Bridge.
type authSvc interface {
	Signup(ctx context.Context, email, password, username string) (*authbridge.SignupResult, error)
	Login(ctx context.Context, email, password string) (*authprovider.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*authprovider.Session, error)
	Logout(ctx context.Context, accessToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) (*authprovider.Session, error)
	ClaimProfile(ctx context.Context, accessToken, username string) (*profiles.Profile, error)
}

// AuthHandler handles the authentication routes.
type AuthHandler struct {
	auth   authSvc
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth authSvc, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// Register mounts all auth routes on the provided router group. The
// claim-profile route needs the bridge middleware's token extraction, so the
// bridge itself is passed for the guarded route.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/signup", h.Signup)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.POST("/password-reset/request", h.RequestPasswordReset)
		auth.POST("/password-reset/confirm", h.ConfirmPasswordReset)
		auth.POST("/claim-profile", h.ClaimProfile)
	}
}

// ─── Request / Response types ────────────────────────────────────────────────

type signupRequest struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Username string `json:"username" binding:"required,min=3,max=30"`
}

type loginRequest struct {
	Email    string `json:"email"    binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type resetRequestRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"        binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=6"`
}

type claimProfileRequest struct {
	Username string `json:"username" binding:"required,min=3,max=30"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// Signup handles POST /auth/signup — registers a provider account and links
// a profile. Responds 201 either way: with a session when tokens were issued
// immediately, or with a confirmation notice when the provider requires
// email confirmation first.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.auth.Signup(c.Request.Context(), req.Email, req.Password, req.Username)
	if err != nil {
		recordSignup(false)
		if errors.Is(err, authbridge.ErrUsernameTaken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username already taken"})
			return
		}
		h.logger.Error("signup", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "signup failed"})
		return
	}

	recordSignup(true)
	if res.Session == nil {
		c.JSON(http.StatusCreated, gin.H{
			"user":    res.Profile,
			"message": "Account created. Check your email to confirm your address before logging in.",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"user":    res.Profile,
		"session": res.Session,
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		recordLogin(false)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	recordLogin(true)
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// Refresh handles POST /auth/refresh — rotates a refresh token. The
// presented token is consumed whether or not rotation succeeds.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		recordRefresh(false)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	recordRefresh(true)
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// Logout handles POST /auth/logout — revokes every session of the account
// owning the Bearer token.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, ok := bearerFromHeader(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// RequestPasswordReset handles POST /auth/password-reset/request. The
// response is identical whether or not the address is registered.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req resetRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_ = h.auth.RequestPasswordReset(c.Request.Context(), req.Email)
	c.JSON(http.StatusOK, gin.H{
		"message": "If an account exists for that address, a reset email has been sent.",
	})
}

// ConfirmPasswordReset handles POST /auth/password-reset/confirm —
// exchanges a recovery token for a new password and a fresh session.
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req resetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := h.auth.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired reset token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess})
}

// ClaimProfile handles POST /auth/claim-profile — creates the missing
// profile row for a valid token whose signup never finished linking one.
func (h *AuthHandler) ClaimProfile(c *gin.Context) {
	token, ok := bearerFromHeader(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
		return
	}

	var req claimProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.auth.ClaimProfile(c.Request.Context(), token, req.Username)
	if err != nil {
		switch {
		case errors.Is(err, authbridge.ErrUsernameTaken):
			c.JSON(http.StatusBadRequest, gin.H{"error": "username already taken"})
		case errors.Is(err, authbridge.ErrUnauthorized):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		default:
			h.logger.Error("claim profile", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not claim profile"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": p})
}

func bearerFromHeader(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return "", false
	}
	return h[len(prefix):], true
}
