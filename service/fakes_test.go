package service

import (
	"context"
	"strings"
	"sync"

	"github.com/layer-3/converse/core"
)

// fakeGenerator emits a scripted sequence of tokens.
type fakeGenerator struct {
	tokens []string
	err    error
}

func (g *fakeGenerator) Generate(ctx context.Context, history []core.Message, prompt string, onToken func(string)) (string, int64, error) {
	if g.err != nil {
		return "", 0, g.err
	}
	var reply strings.Builder
	for _, token := range g.tokens {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}
		onToken(token)
		reply.WriteString(token)
	}
	return reply.String(), int64(len(g.tokens)), nil
}

func (g *fakeGenerator) Title(ctx context.Context, basis string) (string, error) {
	return "test conversation", nil
}

// disconnectingGenerator cancels the exchange context after its first token,
// the way an SSE request context dies when the client hangs up mid-stream.
type disconnectingGenerator struct {
	cancel context.CancelFunc
}

func (g *disconnectingGenerator) Generate(ctx context.Context, history []core.Message, prompt string, onToken func(string)) (string, int64, error) {
	onToken("par")
	g.cancel()
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	return "partial reply", 1, nil
}

func (g *disconnectingGenerator) Title(ctx context.Context, basis string) (string, error) {
	return "", ctx.Err()
}

// collectSink records emitted tokens and honors the closed guard.
type collectSink struct {
	mu     sync.Mutex
	tokens []string
	closed bool
}

func (s *collectSink) Emit(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrStreamClosed
	}
	s.tokens = append(s.tokens, token)
	return nil
}

func (s *collectSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *collectSink) Abort(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *collectSink) collected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tokens...)
}
