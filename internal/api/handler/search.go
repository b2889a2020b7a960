package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/soundpuff/soundpuff/internal/authbridge"
	"github.com/soundpuff/soundpuff/internal/catalog"
	"github.com/soundpuff/soundpuff/internal/profiles"
	"go.uber.org/zap"
)

const searchResultLimit = 20

// songSearcher is satisfied by *catalog.Repository.
type songSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]*catalog.Song, error)
}

// userSearcher is satisfied by *profiles.Repository.
type userSearcher interface {
	SearchByUsername(ctx context.Context, q string, limit int) ([]profiles.Profile, error)
}

// SearchHandler handles GET /search across songs and users.
type SearchHandler struct {
	songs  songSearcher
	users  userSearcher
	logger *zap.Logger
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(songs songSearcher, users userSearcher, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{songs: songs, users: users, logger: logger}
}

// Register mounts the search route. Authentication is optional: anonymous
// searches work, authenticated ones echo the viewer in the response.
func (h *SearchHandler) Register(rg *gin.RouterGroup, bridge *authbridge.Bridge) {
	rg.GET("/search", authbridge.OptionalUser(bridge), h.Search)
}

// Search handles GET /search?q=...&type=songs|users|all.
func (h *SearchHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter q is required"})
		return
	}

	kind := c.DefaultQuery("type", "all")
	if kind != "songs" && kind != "users" && kind != "all" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be songs, users, or all"})
		return
	}
	result := gin.H{"query": q}

	if kind == "songs" || kind == "all" {
		songs, err := h.songs.Search(c.Request.Context(), q, searchResultLimit)
		if err != nil {
			h.logger.Error("song search", zap.String("query", q), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
			return
		}
		if songs == nil {
			songs = []*catalog.Song{}
		}
		result["songs"] = songs
	}

	if kind == "users" || kind == "all" {
		users, err := h.users.SearchByUsername(c.Request.Context(), q, searchResultLimit)
		if err != nil {
			h.logger.Error("user search", zap.String("query", q), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
			return
		}
		if users == nil {
			users = []profiles.Profile{}
		}
		result["users"] = users
	}

	if viewer, ok := authbridge.ProfileFromCtx(c); ok {
		result["viewer"] = viewer.Username
	}
	c.JSON(http.StatusOK, result)
}
