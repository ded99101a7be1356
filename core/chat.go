package core

import "time"

// Role identifies the author of a message within an exchange.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

// Session is the durable record of one conversation. The id is immutable
// after creation and the session is owned by exactly one address.
type Session struct {
	ID            string
	UserID        string // owning wallet address
	Title         string
	TokenUsage    int64
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// Message is one persisted utterance. Messages are append-only and ordered
// by CreatedAt ascending; within an exchange the human message is recorded
// before the assistant reply.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Text      string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionSummary is a session row joined with its message count, as returned
// by list-sessions.
type SessionSummary struct {
	ID            string    `json:"sessionId"`
	Title         string    `json:"title,omitempty"`
	MessageCount  int64     `json:"messageCount"`
	TokenUsage    int64     `json:"tokenUsage"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}
