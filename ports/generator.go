package ports

import (
	"context"

	"github.com/layer-3/converse/core"
)

// Generator is the boundary to the generative model. Generate blocks until
// the full reply is available, pushing each incremental token through
// onToken as it arrives. Cancelling ctx is the cooperative abort signal for
// an in-flight call.
type Generator interface {
	// Generate returns the complete reply text and the number of tokens
	// consumed by the call.
	Generate(ctx context.Context, history []core.Message, prompt string, onToken func(token string)) (string, int64, error)

	// Title produces a short conversation title from the opening message.
	Title(ctx context.Context, basis string) (string, error)
}
