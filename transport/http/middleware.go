package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/layer-3/converse/core"
	"github.com/layer-3/converse/service"
)

const identityKey = "identity"

// AuthMiddleware validates the session credential. It accepts the cookie
// set by /auth/verify or an Authorization bearer header. A missing
// credential is 401; an invalid or expired one is 403.
func AuthMiddleware(auth *service.AuthService, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := credentialFrom(c, cookieName)
		if credential == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		identity, err := auth.Authenticate(c.Request.Context(), credential)
		if err != nil {
			code := "invalid-token"
			if err == core.ErrTokenExpired {
				code = "token-expired"
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": code})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

func credentialFrom(c *gin.Context, cookieName string) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// identityFrom returns the authenticated identity set by AuthMiddleware.
func identityFrom(c *gin.Context) (core.Identity, bool) {
	value, exists := c.Get(identityKey)
	if !exists {
		return core.Identity{}, false
	}
	identity, ok := value.(core.Identity)
	return identity, ok
}
