package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/layer-3/converse/core"
	"github.com/layer-3/converse/ports"
)

// historyWindow is how many recent messages are replayed to the model as
// conversation context on each exchange.
const historyWindow = 20

// ChatSession is one live conversation. It persists messages around each
// generation call and streams incremental output through a Sink. A session
// object is cached by the registry and evicted on idleness; the durable
// record outlives it.
type ChatSession struct {
	id        string
	userID    string
	createdAt time.Time

	store     ports.ConversationStore
	generator ports.Generator
	meter     *UsageMeter

	// callMu serializes exchanges: one in-flight SendMessage per session.
	callMu sync.Mutex

	// stateMu guards the mutable bookkeeping fields below.
	stateMu        sync.RWMutex
	lastMessageAt  time.Time
	tokenUsage     int64
	title          string
	titleRequested bool
}

func newChatSession(record *core.Session, store ports.ConversationStore, generator ports.Generator) *ChatSession {
	return &ChatSession{
		id:            record.ID,
		userID:        record.UserID,
		createdAt:     record.CreatedAt,
		store:         store,
		generator:     generator,
		meter:         NewUsageMeter(DefaultTokenRate, record.TokenUsage),
		lastMessageAt: record.LastMessageAt,
		tokenUsage:    record.TokenUsage,
		title:         record.Title,
	}
}

func (s *ChatSession) ID() string           { return s.id }
func (s *ChatSession) UserID() string       { return s.userID }
func (s *ChatSession) CreatedAt() time.Time { return s.createdAt }

func (s *ChatSession) LastMessageAt() time.Time {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastMessageAt
}

func (s *ChatSession) TokenUsage() int64 {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.tokenUsage
}

// Cost returns the priced usage accumulated by this live session object.
func (s *ChatSession) Cost() decimal.Decimal {
	return s.meter.Cost()
}

// SendMessage runs one exchange: the human message is durably recorded
// before the generation call starts, and the assistant message only after
// the full reply has completed. Tokens are pushed through sink as they
// arrive; emits after the sink closed are dropped by the sink itself.
//
// If generation fails or is cancelled the human message stays persisted and
// the error propagates. A failure persisting the assistant message is logged
// but does not retract the reply already streamed.
func (s *ChatSession) SendMessage(ctx context.Context, text string, sink ports.Sink) (string, error) {
	s.callMu.Lock()
	defer s.callMu.Unlock()

	history, err := s.recentHistory(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}

	human := &core.Message{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Role:      core.RoleHuman,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertMessage(ctx, human); err != nil {
		return "", fmt.Errorf("failed to persist human message: %w", err)
	}

	reply, used, err := s.generator.Generate(ctx, history, text, func(token string) {
		if emitErr := sink.Emit(token); emitErr != nil && !errors.Is(emitErr, core.ErrStreamClosed) {
			log.Warn().Err(emitErr).Str("session_id", s.id).Msg("failed to emit token")
		}
	})
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	now := time.Now().UTC()
	assistant := &core.Message{
		ID:        uuid.NewString(),
		SessionID: s.id,
		Role:      core.RoleAssistant,
		Text:      reply,
		CreatedAt: now,
	}
	if err := s.store.InsertMessage(ctx, assistant); err != nil {
		// reply already streamed; durability here is best-effort
		log.Error().Err(err).Str("session_id", s.id).Msg("failed to persist assistant message")
	}

	s.stateMu.Lock()
	s.lastMessageAt = now
	s.tokenUsage += used
	usage := s.tokenUsage
	s.stateMu.Unlock()
	s.meter.Add(used)

	if err := s.store.UpdateActivity(ctx, s.id, now, usage); err != nil {
		log.Error().Err(err).Str("session_id", s.id).Msg("failed to update session activity")
	}

	s.maybeGenerateTitle(text)

	return reply, nil
}

// History returns persisted messages in reverse-chronological order, paged.
func (s *ChatSession) History(ctx context.Context, limit, offset int) ([]core.Message, error) {
	return s.store.Messages(ctx, s.id, limit, offset)
}

// recentHistory loads the context window in chronological order.
func (s *ChatSession) recentHistory(ctx context.Context) ([]core.Message, error) {
	page, err := s.store.Messages(ctx, s.id, historyWindow, 0)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

// maybeGenerateTitle kicks off background title generation after the first
// successful exchange of an untitled session.
func (s *ChatSession) maybeGenerateTitle(basis string) {
	s.stateMu.Lock()
	if s.title != "" || s.titleRequested {
		s.stateMu.Unlock()
		return
	}
	s.titleRequested = true
	s.stateMu.Unlock()

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		title, err := s.generator.Title(ctx, basis)
		if err != nil {
			log.Warn().Err(err).Str("session_id", s.id).Msg("failed to generate title")
			return
		}
		if err := s.store.UpdateTitle(ctx, s.id, title); err != nil {
			log.Warn().Err(err).Str("session_id", s.id).Msg("failed to save title")
			return
		}

		s.stateMu.Lock()
		s.title = title
		s.stateMu.Unlock()

		log.Debug().Str("session_id", s.id).Str("title", title).Msg("generated session title")
	}()
}
