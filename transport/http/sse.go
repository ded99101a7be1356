package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/pkg/errors"

	"github.com/layer-3/converse/core"
	"github.com/layer-3/converse/ports"
)

// SSEStream adapts the Sink interface to a server-sent-events response.
// Every write is guarded by an is-open check so tokens racing in after the
// client disconnected are dropped instead of hitting a dead connection.
type SSEStream struct {
	mu      sync.Mutex
	open    bool
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEStream declares the response as an event stream and flushes the
// headers so the client sees the stream immediately.
func NewSSEStream(w http.ResponseWriter) (*SSEStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEStream{open: true, w: w, flusher: flusher}, nil
}

var _ ports.Sink = (*SSEStream)(nil)

// Emit sends one token as a discrete event.
func (s *SSEStream) Emit(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return core.ErrStreamClosed
	}

	payload, err := json.Marshal(map[string]string{"message": token})
	if err != nil {
		return errors.Wrap(err, "failed to encode token")
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return errors.Wrap(err, "failed to write event")
	}
	s.flusher.Flush()
	return nil
}

// Close emits the end-of-stream marker and shuts the stream.
func (s *SSEStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	s.open = false

	if _, err := fmt.Fprint(s.w, "event: close\ndata: \n\n"); err != nil {
		return errors.Wrap(err, "failed to write close event")
	}
	s.flusher.Flush()
	return nil
}

// Abort shuts the stream without a close marker. Used when the client is
// already gone or the generation call failed mid-stream.
func (s *SSEStream) Abort(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
}
