package http

import (
	"github.com/gin-gonic/gin"

	"github.com/layer-3/converse/service"
)

// DefaultCookieName is the cookie carrying the session credential.
const DefaultCookieName = "converse_token"

// RouterConfig carries the transport-level settings.
type RouterConfig struct {
	CookieName   string
	CookieSecure bool
	CookieMaxAge int
}

// SetupRouter wires the authentication and chat endpoints. Everything
// except the challenge/verify pair sits behind the auth middleware.
func SetupRouter(auth *service.AuthService, registry *service.Registry, cfg RouterConfig) *gin.Engine {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}

	router := gin.Default()

	authHandlers := NewAuthHandlers(auth, cfg.CookieName, cfg.CookieSecure, cfg.CookieMaxAge)
	chatHandlers := NewChatHandlers(registry)
	authenticated := AuthMiddleware(auth, cfg.CookieName)

	authGroup := router.Group("/auth")
	{
		authGroup.GET("/nonce/:address", authHandlers.Nonce)
		authGroup.POST("/verify", authHandlers.Verify)
		authGroup.GET("/is-authenticated", authenticated, authHandlers.IsAuthenticated)
		authGroup.POST("/logout", authenticated, authHandlers.Logout)
	}

	chatGroup := router.Group("/chat", authenticated)
	{
		chatGroup.GET("/new-session", chatHandlers.NewSession)
		chatGroup.GET("/load-session", chatHandlers.LoadSession)
		chatGroup.GET("/session-history", chatHandlers.SessionHistory)
		chatGroup.GET("/list-sessions", chatHandlers.ListSessions)
		chatGroup.POST("/message", chatHandlers.Message)
	}

	return router
}
