package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/soundpuff/soundpuff/internal/authbridge"
	"github.com/soundpuff/soundpuff/internal/profiles"
	"go.uber.org/zap"
)

// profileSvc is the slice of the profile repository the user routes need.
type profileSvc interface {
	GetByUsername(ctx context.Context, username string) (*profiles.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, bio, avatarURL string) (*profiles.Profile, error)
}

// UserHandler handles profile routes.
type UserHandler struct {
	profiles profileSvc
	logger   *zap.Logger
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(profiles profileSvc, logger *zap.Logger) *UserHandler {
	return &UserHandler{profiles: profiles, logger: logger}
}

// Register mounts the user routes. The /me routes require authentication;
// public profile lookup does not.
func (h *UserHandler) Register(rg *gin.RouterGroup, bridge *authbridge.Bridge) {
	users := rg.Group("/users")
	{
		users.GET("/me", authbridge.RequireUser(bridge), h.Me)
		users.PUT("/me", authbridge.RequireUser(bridge), h.UpdateMe)
		users.GET("/:username", h.GetByUsername)
	}
}

type updateProfileRequest struct {
	Bio       string `json:"bio"        binding:"max=500"`
	AvatarURL string `json:"avatar_url" binding:"omitempty,url"`
}

// Me handles GET /users/me — returns the authenticated user's profile.
func (h *UserHandler) Me(c *gin.Context) {
	p, ok := authbridge.ProfileFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": p})
}

// UpdateMe handles PUT /users/me — updates bio and avatar. Username and ID
// are immutable.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	p, ok := authbridge.ProfileFromCtx(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.profiles.UpdateProfile(c.Request.Context(), p.ID, req.Bio, req.AvatarURL)
	if err != nil {
		h.logger.Error("update profile", zap.String("user_id", p.ID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": updated})
}

// GetByUsername handles GET /users/:username — public profile lookup.
func (h *UserHandler) GetByUsername(c *gin.Context) {
	p, err := h.profiles.GetByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error("get profile", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": p})
}
