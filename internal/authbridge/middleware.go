package authbridge

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/soundpuff/soundpuff/internal/profiles"
)

const (
	ctxProfile     = "soundpuff_profile"
	ctxAccessToken = "soundpuff_access_token"
)

// RequireUser returns a Gin middleware that authenticates the request's
// Bearer token against the identity provider and injects the linked profile
// into the context.
//
// A valid token with no linked profile is a 404, not a 401: the credential
// is good, the profile is missing, and the client should offer to claim one.
func RequireUser(bridge *Bridge) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Bearer token required",
			})
			return
		}

		profile, err := bridge.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrProfileNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"error": ErrProfileNotFound.Error(),
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": ErrUnauthorized.Error(),
			})
			return
		}

		c.Set(ctxProfile, profile)
		c.Set(ctxAccessToken, token)
		c.Next()
	}
}

// OptionalUser authenticates like RequireUser when a Bearer token is present
// but never rejects the request. Anonymous requests and requests with bad
// tokens both proceed with no profile in the context.
func OptionalUser(bridge *Bridge) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}
		if profile, err := bridge.Authenticate(c.Request.Context(), token); err == nil {
			c.Set(ctxProfile, profile)
			c.Set(ctxAccessToken, token)
		}
		c.Next()
	}
}

// ProfileFromCtx returns the authenticated profile injected by RequireUser
// or OptionalUser, or false when the request is anonymous.
func ProfileFromCtx(c *gin.Context) (*profiles.Profile, bool) {
	v, ok := c.Get(ctxProfile)
	if !ok {
		return nil, false
	}
	p, ok := v.(*profiles.Profile)
	return p, ok
}

// TokenFromCtx returns the raw access token of the authenticated request.
func TokenFromCtx(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxAccessToken)
	if !ok {
		return "", false
	}
	t, ok := v.(string)
	return t, ok
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimPrefix(h, "Bearer ")
	return token, token != ""
}
