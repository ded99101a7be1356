package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/layer-3/converse/core"
	"github.com/layer-3/converse/service"
)

const defaultHistoryLimit = 50

// AuthHandlers exposes the wallet-signature authentication endpoints.
type AuthHandlers struct {
	auth         *service.AuthService
	cookieName   string
	cookieSecure bool
	cookieMaxAge int
}

func NewAuthHandlers(auth *service.AuthService, cookieName string, cookieSecure bool, cookieMaxAge int) *AuthHandlers {
	return &AuthHandlers{
		auth:         auth,
		cookieName:   cookieName,
		cookieSecure: cookieSecure,
		cookieMaxAge: cookieMaxAge,
	}
}

// Nonce handles GET /auth/nonce/:address.
func (h *AuthHandlers) Nonce(c *gin.Context) {
	challenge, err := h.auth.Challenge(c.Request.Context(), c.Param("address"))
	if err != nil {
		if err == core.ErrInvalidAddress {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-request"})
			return
		}
		log.Error().Err(err).Msg("failed to issue challenge")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	c.JSON(http.StatusOK, challenge)
}

type verifyRequest struct {
	Address   string `json:"address" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// Verify handles POST /auth/verify. On success the credential is set as an
// http-only cookie and also returned in the body for non-browser clients.
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-request"})
		return
	}

	credential, err := h.auth.Verify(c.Request.Context(), req.Address, req.Signature, req.Message)
	if err != nil {
		switch err {
		case core.ErrInvalidAddress:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-request"})
		case core.ErrNonceMismatch:
			c.JSON(http.StatusBadRequest, gin.H{"error": "nonce-mismatch"})
		case core.ErrInvalidSignature:
			c.JSON(http.StatusBadRequest, gin.H{"error": "signature-invalid"})
		default:
			log.Error().Err(err).Msg("failed to verify signature")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		}
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, credential, h.cookieMaxAge, "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"token": credential})
}

// IsAuthenticated handles GET /auth/is-authenticated. Reaching the handler
// means the middleware already validated the credential.
func (h *AuthHandlers) IsAuthenticated(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authenticated": true, "address": identity.Address})
}

// Logout handles POST /auth/logout.
func (h *AuthHandlers) Logout(c *gin.Context) {
	if identity, ok := identityFrom(c); ok {
		h.auth.Logout(c.Request.Context(), identity)
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.cookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// ChatHandlers exposes the session and messaging endpoints.
type ChatHandlers struct {
	registry *service.Registry
	rate     decimal.Decimal
}

func NewChatHandlers(registry *service.Registry) *ChatHandlers {
	return &ChatHandlers{registry: registry, rate: service.DefaultTokenRate}
}

// NewSession handles GET /chat/new-session.
func (h *ChatHandlers) NewSession(c *gin.Context) {
	identity, _ := identityFrom(c)

	session, err := h.registry.Create(c.Request.Context(), identity.Address)
	if err != nil {
		log.Error().Err(err).Msg("failed to create session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": session.ID()})
}

// LoadSession handles GET /chat/load-session. It returns the most recent
// messages of a session owned by the caller.
func (h *ChatHandlers) LoadSession(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", defaultHistoryLimit)
	messages, err := session.History(c.Request.Context(), limit, 0)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID()).Msg("failed to load history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessionId": session.ID(), "messages": messages})
}

// SessionHistory handles GET /chat/session-history with limit/offset paging.
func (h *ChatHandlers) SessionHistory(c *gin.Context) {
	session, ok := h.ownedSession(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", defaultHistoryLimit)
	offset := queryInt(c, "offset", 0)
	messages, err := session.History(c.Request.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID()).Msg("failed to load history page")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": session.ID(),
		"messages":  messages,
		"limit":     limit,
		"offset":    offset,
	})
}

type sessionListing struct {
	core.SessionSummary
	Cost string `json:"cost"`
}

// ListSessions handles GET /chat/list-sessions.
func (h *ChatHandlers) ListSessions(c *gin.Context) {
	identity, _ := identityFrom(c)

	summaries, err := h.registry.Summaries(c.Request.Context(), identity.Address)
	if err != nil {
		log.Error().Err(err).Msg("failed to list sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	listings := make([]sessionListing, 0, len(summaries))
	for _, summary := range summaries {
		cost := h.rate.Mul(decimal.NewFromInt(summary.TokenUsage)).Div(decimal.NewFromInt(1000))
		listings = append(listings, sessionListing{SessionSummary: summary, Cost: cost.String()})
	}

	c.JSON(http.StatusOK, gin.H{"sessions": listings})
}

type messageRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// Message handles POST /chat/message. The reply is streamed token by token
// as server-sent events; disconnecting cancels the generation through the
// request context.
func (h *ChatHandlers) Message(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-request"})
		return
	}

	identity, _ := identityFrom(c)
	session, ok := h.lookupOwned(c, req.SessionID, identity.Address)
	if !ok {
		return
	}

	stream, err := NewSSEStream(c.Writer)
	if err != nil {
		log.Error().Err(err).Msg("streaming unsupported")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return
	}

	ctx := c.Request.Context()
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stream.Abort(ctx.Err())
		case <-done:
		}
	}()

	_, err = session.SendMessage(ctx, req.Message, stream)
	close(done)
	if err != nil {
		log.Warn().Err(err).Str("session_id", session.ID()).Msg("message exchange failed")
		stream.Abort(err)
		return
	}

	if err := stream.Close(); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID()).Msg("failed to close stream")
	}
}

// ownedSession resolves the sessionId query parameter to a live session
// owned by the caller.
func (h *ChatHandlers) ownedSession(c *gin.Context) (*service.ChatSession, bool) {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid-request"})
		return nil, false
	}

	identity, _ := identityFrom(c)
	return h.lookupOwned(c, sessionID, identity.Address)
}

// lookupOwned loads a session after checking ownership. A session the
// caller does not own is reported the same way as one that does not exist.
func (h *ChatHandlers) lookupOwned(c *gin.Context, sessionID, address string) (*service.ChatSession, bool) {
	ctx := c.Request.Context()

	owned, err := h.registry.VerifyOwnership(ctx, sessionID, address)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("ownership check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return nil, false
	}
	if !owned {
		c.JSON(http.StatusNotFound, gin.H{"error": "session-not-found"})
		return nil, false
	}

	session, err := h.registry.Get(ctx, sessionID)
	if err != nil {
		if err == core.ErrSessionNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "session-not-found"})
			return nil, false
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal-error"})
		return nil, false
	}
	return session, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
