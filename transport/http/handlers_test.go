package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/converse/adapters/store"
	"github.com/layer-3/converse/adapters/tokenizer"
	"github.com/layer-3/converse/core"
	"github.com/layer-3/converse/ports"
	"github.com/layer-3/converse/service"
)

type stubGenerator struct {
	tokens []string
}

func (g *stubGenerator) Generate(ctx context.Context, history []core.Message, prompt string, onToken func(string)) (string, int64, error) {
	var reply strings.Builder
	for _, token := range g.tokens {
		onToken(token)
		reply.WriteString(token)
	}
	return reply.String(), int64(len(g.tokens)), nil
}

func (g *stubGenerator) Title(ctx context.Context, basis string) (string, error) {
	return "test chat", nil
}

var _ ports.Generator = (*stubGenerator)(nil)

type wallet struct {
	address string
	sign    func(message string) string
}

func newWallet(t *testing.T) wallet {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return wallet{
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
		sign: func(message string) string {
			sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
			require.NoError(t, err)
			sig[crypto.RecoveryIDOffset] += 27
			return hexutil.Encode(sig)
		},
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "converse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	auth := service.NewAuthService(
		store.NewMemoryStore(),
		tokenizer.NewJWTTokenizer([]byte("test-secret"), time.Hour),
		nil,
		0,
	)
	registry := service.NewRegistry(db, &stubGenerator{tokens: []string{"Hel", "lo ", "there"}}, nil)

	return SetupRouter(auth, registry, RouterConfig{CookieMaxAge: 3600})
}

func doRequest(router *gin.Engine, method, path string, body any, credential string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// login runs the full challenge/verify round trip and returns the credential.
func login(t *testing.T, router *gin.Engine, w wallet) string {
	t.Helper()

	resp := doRequest(router, http.MethodGet, "/auth/nonce/"+w.address, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var challenge struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &challenge))
	require.Contains(t, challenge.Message, "Signing nonce")

	resp = doRequest(router, http.MethodPost, "/auth/verify", gin.H{
		"address":   w.address,
		"signature": w.sign(challenge.Message),
		"message":   challenge.Message,
	}, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var verified struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &verified))
	require.NotEmpty(t, verified.Token)
	return verified.Token
}

func TestAuthFlow(t *testing.T) {
	router := newTestRouter(t)
	w := newWallet(t)

	resp := doRequest(router, http.MethodGet, "/auth/nonce/"+w.address, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var challenge struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &challenge))

	signature := w.sign(challenge.Message)
	resp = doRequest(router, http.MethodPost, "/auth/verify", gin.H{
		"address":   w.address,
		"signature": signature,
		"message":   challenge.Message,
	}, "")
	require.Equal(t, http.StatusOK, resp.Code)

	cookies := resp.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	// replaying the consumed challenge must fail
	resp = doRequest(router, http.MethodPost, "/auth/verify", gin.H{
		"address":   w.address,
		"signature": signature,
		"message":   challenge.Message,
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "nonce-mismatch")
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	router := newTestRouter(t)
	w := newWallet(t)
	other := newWallet(t)

	resp := doRequest(router, http.MethodGet, "/auth/nonce/"+w.address, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var challenge struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &challenge))

	resp = doRequest(router, http.MethodPost, "/auth/verify", gin.H{
		"address":   w.address,
		"signature": other.sign(challenge.Message),
		"message":   challenge.Message,
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "signature-invalid")
}

func TestProtectedEndpointsRequireCredential(t *testing.T) {
	router := newTestRouter(t)

	resp := doRequest(router, http.MethodGet, "/chat/new-session", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = doRequest(router, http.MethodGet, "/chat/new-session", nil, "garbage")
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestIsAuthenticated(t *testing.T) {
	router := newTestRouter(t)
	w := newWallet(t)
	credential := login(t, router, w)

	resp := doRequest(router, http.MethodGet, "/auth/is-authenticated", nil, credential)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), w.address)
}

func TestLogoutClearsCookie(t *testing.T) {
	router := newTestRouter(t)
	credential := login(t, router, newWallet(t))

	resp := doRequest(router, http.MethodPost, "/auth/logout", nil, credential)
	require.Equal(t, http.StatusOK, resp.Code)

	cookies := resp.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.Less(t, cookies[0].MaxAge, 0)
}

func TestMessageStreamsTokensAndPersistsHistory(t *testing.T) {
	router := newTestRouter(t)
	credential := login(t, router, newWallet(t))

	resp := doRequest(router, http.MethodGet, "/chat/new-session", nil, credential)
	require.Equal(t, http.StatusOK, resp.Code)

	var created struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)

	resp = doRequest(router, http.MethodPost, "/chat/message", gin.H{
		"sessionId": created.SessionID,
		"message":   "hi",
	}, credential)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	body := resp.Body.String()
	assert.Contains(t, body, `data: {"message":"Hel"}`)
	assert.Contains(t, body, `data: {"message":"there"}`)
	assert.Contains(t, body, "event: close")

	resp = doRequest(router, http.MethodGet, "/chat/load-session?sessionId="+created.SessionID, nil, credential)
	require.Equal(t, http.StatusOK, resp.Code)

	var loaded struct {
		Messages []core.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &loaded))
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, core.RoleAssistant, loaded.Messages[0].Role)
	assert.Equal(t, "Hello there", loaded.Messages[0].Text)
	assert.Equal(t, core.RoleHuman, loaded.Messages[1].Role)
	assert.Equal(t, "hi", loaded.Messages[1].Text)
}

func TestListSessions(t *testing.T) {
	router := newTestRouter(t)
	credential := login(t, router, newWallet(t))

	resp := doRequest(router, http.MethodGet, "/chat/new-session", nil, credential)
	require.Equal(t, http.StatusOK, resp.Code)

	var created struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	resp = doRequest(router, http.MethodPost, "/chat/message", gin.H{
		"sessionId": created.SessionID,
		"message":   "hi",
	}, credential)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = doRequest(router, http.MethodGet, "/chat/list-sessions", nil, credential)
	require.Equal(t, http.StatusOK, resp.Code)

	var listed struct {
		Sessions []sessionListing `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listed))
	require.Len(t, listed.Sessions, 1)
	assert.Equal(t, created.SessionID, listed.Sessions[0].ID)
	assert.Equal(t, int64(2), listed.Sessions[0].MessageCount)
	assert.NotEmpty(t, listed.Sessions[0].Cost)
}

func TestForeignSessionIsInvisible(t *testing.T) {
	router := newTestRouter(t)
	owner := login(t, router, newWallet(t))
	intruder := login(t, router, newWallet(t))

	resp := doRequest(router, http.MethodGet, "/chat/new-session", nil, owner)
	require.Equal(t, http.StatusOK, resp.Code)

	var created struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	// another wallet cannot tell this session apart from a missing one
	resp = doRequest(router, http.MethodGet, "/chat/load-session?sessionId="+created.SessionID, nil, intruder)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), "session-not-found")

	resp = doRequest(router, http.MethodPost, "/chat/message", gin.H{
		"sessionId": created.SessionID,
		"message":   "hi",
	}, intruder)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = doRequest(router, http.MethodGet, "/chat/load-session?sessionId=does-not-exist", nil, intruder)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
