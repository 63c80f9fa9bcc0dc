// Package wire defines the chat frame types exchanged between the gateway
// and its clients, and validates inbound frames at the boundary.
package wire

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// IDLength is the length of all identifier fields (hex-encoded object ids).
const IDLength = 24

// IsHexID reports whether s is a well-formed identifier: exactly 24
// lowercase hex characters.
func IsHexID(s string) bool {
	if len(s) != IDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Envelope is an inbound chat frame. A message with no recipient is a
// broadcast message, visible to either participant of its gig conversation.
type Envelope struct {
	GigID       string `json:"gigId"`
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId,omitempty"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp,omitempty"` // client clock, epoch ms
	MessageKey  string `json:"messageId,omitempty"` // idempotency key
}

// ValidationError describes a malformed frame. It is recoverable: the
// gateway reports it on the same connection and keeps reading.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid message: " + e.Reason
}

// Decode parses and validates a raw inbound frame.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ValidationError{Reason: "malformed JSON"}
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

// Validate checks required fields and identifier formats.
func (e *Envelope) Validate() error {
	if e.GigID == "" || e.SenderID == "" {
		return &ValidationError{Reason: "missing gigId or senderId"}
	}
	if !IsHexID(e.GigID) {
		return &ValidationError{Reason: "invalid gigId"}
	}
	if !IsHexID(e.SenderID) {
		return &ValidationError{Reason: "invalid senderId"}
	}
	if e.RecipientID != "" && !IsHexID(e.RecipientID) {
		return &ValidationError{Reason: "invalid recipientId"}
	}
	if e.Text == "" {
		return &ValidationError{Reason: "empty text"}
	}
	return nil
}

// CanonicalKey returns the idempotency key for the envelope. Clients are
// expected to supply their own opaque token; key uniqueness is the client's
// responsibility. The fallback for an omitted key carries a random suffix so
// two distinct messages sent within the same millisecond never collapse —
// deduplication only ever applies to client-supplied keys.
func (e *Envelope) CanonicalKey() string {
	if e.MessageKey != "" {
		return e.MessageKey
	}
	var b [4]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%s:%d:%s", e.SenderID, e.Timestamp, hex.EncodeToString(b[:]))
}

// Sender is the denormalized sender display info captured when a message
// record is created.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Record is the outbound frame for a persisted message.
type Record struct {
	ID          int64  `json:"id"`
	MessageKey  string `json:"messageId"`
	GigID       string `json:"gigId"`
	Sender      Sender `json:"sender"`
	RecipientID string `json:"recipientId,omitempty"`
	Text        string `json:"text"`
	SentAt      int64  `json:"sentAt"` // epoch ms
	Read        bool   `json:"read"`
}

// ErrorFrame is the outbound frame for a recoverable failure.
type ErrorFrame struct {
	Error string `json:"error"`
}
