package domain

import "time"

// User represents an application user. Account management lives outside this
// service; only the display fields the chat pipeline denormalizes are kept.
type User struct {
	ID        string    `json:"id"` // 24-char hex id
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	Email     *string   `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a single persisted chat message. Records are append-only: once
// written, every field is immutable except Read, which transitions
// false->true exactly once via MarkRead.
//
// There is no conversation table. A conversation is identified structurally
// by (gig id, participant pair); an empty RecipientID marks a broadcast
// message visible to either participant of its gig conversation.
type Message struct {
	ID           int64
	MessageKey   string // idempotency key, unique
	GigID        string
	SenderID     string
	RecipientID  string // empty = broadcast
	Text         string // encrypted at rest
	SentAt       int64  // epoch ms
	Read         bool
	SenderName   string // denormalized at creation
	SenderAvatar string // denormalized at creation
}

// IsBroadcast reports whether the message has no explicit recipient.
func (m *Message) IsBroadcast() bool { return m.RecipientID == "" }
