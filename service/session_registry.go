package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/layer-3/converse/core"
	"github.com/layer-3/converse/ports"
)

// DefaultReaperInterval is how often idle sessions are swept from the cache
// and the idle threshold that gets a session evicted.
const DefaultReaperInterval = 10 * time.Minute

// Registry is the in-memory cache of live chat sessions, keyed by session
// id. It guarantees at most one live ChatSession object per id; durable
// state always lives in the conversation store.
type Registry struct {
	store     ports.ConversationStore
	generator ports.Generator
	eventPub  ports.EventPublisher

	mu       sync.Mutex
	sessions map[string]*ChatSession
}

// NewRegistry creates a new session registry. eventPub may be nil.
func NewRegistry(store ports.ConversationStore, generator ports.Generator, eventPub ports.EventPublisher) *Registry {
	return &Registry{
		store:     store,
		generator: generator,
		eventPub:  eventPub,
		sessions:  make(map[string]*ChatSession),
	}
}

// Create allocates a new session owned by userID, persists it, then caches
// it. A persistence failure fails the whole operation; no cache entry is
// left behind.
func (r *Registry) Create(ctx context.Context, userID string) (*ChatSession, error) {
	now := time.Now().UTC()
	record := &core.Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		CreatedAt:     now,
		LastMessageAt: now,
	}

	if err := r.store.CreateSession(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	session := newChatSession(record, r.store, r.generator)

	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()

	if r.eventPub != nil {
		if err := r.eventPub.PublishSessionCreated(ctx, session.ID(), userID); err != nil {
			log.Warn().Err(err).Str("session_id", session.ID()).Msg("failed to publish session-created event")
		}
	}

	log.Info().Str("session_id", session.ID()).Str("address", userID).Msg("created chat session")

	return session, nil
}

// Get returns the cached live session, or reconstructs one from the durable
// store. The cache is re-checked after the store load so two concurrent
// loads of the same id still converge on a single live object.
func (r *Registry) Get(ctx context.Context, sessionID string) (*ChatSession, error) {
	r.mu.Lock()
	if session, ok := r.sessions[sessionID]; ok {
		r.mu.Unlock()
		return session, nil
	}
	r.mu.Unlock()

	record, err := r.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[sessionID]; ok {
		return session, nil
	}
	session := newChatSession(record, r.store, r.generator)
	r.sessions[sessionID] = session
	return session, nil
}

// Evict removes a session from the cache only; durable data is untouched.
func (r *Registry) Evict(ctx context.Context, sessionID string) {
	r.mu.Lock()
	_, cached := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	if !cached {
		return
	}

	if r.eventPub != nil {
		if err := r.eventPub.PublishSessionEvicted(ctx, sessionID); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to publish session-evicted event")
		}
	}
}

// ListActive returns the cached sessions, optionally only those active
// within maxIdle. Pass zero for all.
func (r *Registry) ListActive(maxIdle time.Duration) []*ChatSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var active []*ChatSession
	for _, session := range r.sessions {
		if maxIdle > 0 && now.Sub(session.LastMessageAt()) > maxIdle {
			continue
		}
		active = append(active, session)
	}
	return active
}

// VerifyOwnership answers from durable storage so the check is
// authoritative for evicted sessions too.
func (r *Registry) VerifyOwnership(ctx context.Context, sessionID, userID string) (bool, error) {
	return r.store.VerifyOwnership(ctx, sessionID, userID)
}

// Summaries lists the caller's sessions with message counts.
func (r *Registry) Summaries(ctx context.Context, userID string) ([]core.SessionSummary, error) {
	return r.store.ListSessions(ctx, userID)
}

// TotalTokenUsage sums the usage of all cached sessions.
func (r *Registry) TotalTokenUsage() int64 {
	var total int64
	for _, session := range r.ListActive(0) {
		total += session.TokenUsage()
	}
	return total
}

// Sweep evicts every cached session idle longer than maxIdle and returns
// how many were evicted. A problem with one session never stops the sweep.
func (r *Registry) Sweep(ctx context.Context, maxIdle time.Duration) int {
	r.mu.Lock()
	var idle []string
	now := time.Now()
	for id, session := range r.sessions {
		if now.Sub(session.LastMessageAt()) > maxIdle {
			idle = append(idle, id)
		}
	}
	r.mu.Unlock()

	for _, id := range idle {
		r.Evict(ctx, id)
		log.Debug().Str("session_id", id).Msg("evicted idle session")
	}
	return len(idle)
}

// StartReaper runs the idle sweep every interval until ctx is cancelled.
// The interval doubles as the idle threshold.
func (r *Registry) StartReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReaperInterval
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(ctx, interval); n > 0 {
					log.Info().
						Int("evicted", n).
						Int64("cached_tokens", r.TotalTokenUsage()).
						Msg("session reaper sweep")
				}
			}
		}
	}()
}
