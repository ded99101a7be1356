package ports

import (
	"context"
	"time"

	"github.com/layer-3/converse/core"
)

// KVStore is a TTL-backed key-value store. The nonce store is built on top
// of it so challenge entries expire on their own.
type KVStore interface {
	// Set stores a value under key, replacing any previous entry. A zero ttl
	// means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Get retrieves a value by key. Returns core.ErrKeyNotFound when the key
	// is absent or expired.
	Get(ctx context.Context, key string) (string, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// ConversationStore is the persistence boundary for sessions and messages.
type ConversationStore interface {
	CreateSession(ctx context.Context, session *core.Session) error

	// GetSession returns core.ErrSessionNotFound when the id is unknown.
	GetSession(ctx context.Context, sessionID string) (*core.Session, error)

	// VerifyOwnership consults durable storage directly so the answer is
	// authoritative even for sessions not currently cached.
	VerifyOwnership(ctx context.Context, sessionID, userID string) (bool, error)

	InsertMessage(ctx context.Context, msg *core.Message) error

	// Messages returns persisted messages in reverse-chronological order.
	Messages(ctx context.Context, sessionID string, limit, offset int) ([]core.Message, error)

	ListSessions(ctx context.Context, userID string) ([]core.SessionSummary, error)

	UpdateActivity(ctx context.Context, sessionID string, lastMessageAt time.Time, tokenUsage int64) error

	UpdateTitle(ctx context.Context, sessionID, title string) error
}
