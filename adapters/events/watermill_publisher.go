package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"

	"github.com/layer-3/converse/ports"
)

const (
	TopicLogin          = "auth.login"
	TopicLogout         = "auth.logout"
	TopicSessionCreated = "chat.session.created"
	TopicSessionEvicted = "chat.session.evicted"
)

// AuthEvent is published on login and logout.
type AuthEvent struct {
	Address string    `json:"address"`
	At      time.Time `json:"at"`
}

// SessionEvent is published on session lifecycle transitions.
type SessionEvent struct {
	SessionID string    `json:"session_id"`
	Address   string    `json:"address,omitempty"`
	At        time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface on top of a
// watermill publisher (redis streams in production, gochannel in tests).
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new watermill-backed publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", topic)
	}
	return nil
}

func (p *WatermillPublisher) PublishLogin(ctx context.Context, address string) error {
	return p.publish(TopicLogin, AuthEvent{Address: address, At: time.Now().UTC()})
}

func (p *WatermillPublisher) PublishLogout(ctx context.Context, address string) error {
	return p.publish(TopicLogout, AuthEvent{Address: address, At: time.Now().UTC()})
}

func (p *WatermillPublisher) PublishSessionCreated(ctx context.Context, sessionID, address string) error {
	return p.publish(TopicSessionCreated, SessionEvent{SessionID: sessionID, Address: address, At: time.Now().UTC()})
}

func (p *WatermillPublisher) PublishSessionEvicted(ctx context.Context, sessionID string) error {
	return p.publish(TopicSessionEvicted, SessionEvent{SessionID: sessionID, At: time.Now().UTC()})
}
