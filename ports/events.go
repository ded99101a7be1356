package ports

import "context"

// EventPublisher notifies other components about auth and session lifecycle
// transitions. Publishing is best-effort; failures are logged by callers and
// never fail the originating request.
type EventPublisher interface {
	PublishLogin(ctx context.Context, address string) error
	PublishLogout(ctx context.Context, address string) error
	PublishSessionCreated(ctx context.Context, sessionID, address string) error
	PublishSessionEvicted(ctx context.Context, sessionID string) error
}
