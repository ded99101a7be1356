package ports

// Sink receives incremental generation output. The transport layer adapts a
// Sink to its wire protocol, keeping the chat session transport-agnostic.
//
// Emit returns core.ErrStreamClosed once the consumer is gone; callers drop
// the token and keep the generation call running to completion unless its
// context has been cancelled.
type Sink interface {
	Emit(token string) error
	Close() error
	Abort(reason error)
}
