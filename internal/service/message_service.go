package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samikhan1239/Fiver/internal/domain"
	"github.com/samikhan1239/Fiver/internal/security"
	"github.com/samikhan1239/Fiver/wire"
)

// ErrPersistence marks storage failures. The sender may retry the same
// envelope: the idempotency key makes the retry safe.
var ErrPersistence = errors.New("failed to save message")

// MessageService owns the append/history/mark-read pipeline over the message
// store. It is the only writer of message records; live-connection state is
// the registry's business.
type MessageService struct {
	messages  domain.MessageRepository
	users     domain.UserRepository
	encryptor *security.Encryptor
}

func NewMessageService(
	messages domain.MessageRepository,
	users domain.UserRepository,
	encryptor *security.Encryptor,
) *MessageService {
	return &MessageService{
		messages:  messages,
		users:     users,
		encryptor: encryptor,
	}
}

// Append persists a validated envelope and returns the outbound record plus
// whether a new row was created. A duplicate idempotency key is not an
// error: the original record comes back and created is false, so callers
// know not to broadcast a second time.
//
// Sender display info is denormalized into the row at creation so delivery
// never needs a second lookup.
func (s *MessageService) Append(ctx context.Context, env *wire.Envelope) (*wire.Record, bool, error) {
	sentAt := env.Timestamp
	if sentAt == 0 {
		sentAt = time.Now().UnixMilli()
	}

	m := &domain.Message{
		MessageKey:  env.CanonicalKey(),
		GigID:       env.GigID,
		SenderID:    env.SenderID,
		RecipientID: env.RecipientID,
		SentAt:      sentAt,
	}
	if u, err := s.users.GetByID(ctx, env.SenderID); err == nil {
		m.SenderName = u.Name
		m.SenderAvatar = u.Avatar
	}

	encrypted, err := s.encryptor.Encrypt(env.Text)
	if err != nil {
		return nil, false, fmt.Errorf("encrypt content: %w", err)
	}
	m.Text = encrypted

	rec, created, err := s.messages.Append(ctx, m)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return s.toRecord(rec), created, nil
}

// History returns the full conversation between the two participants for a
// gig, oldest first.
func (s *MessageService) History(ctx context.Context, gigID, a, b string) ([]*wire.Record, error) {
	msgs, err := s.messages.History(ctx, gigID, a, b)
	if err != nil {
		return nil, err
	}
	return s.toRecords(msgs), nil
}

// MarkRead flips every unread message addressed to userID in the gig and
// returns the transition count. Read never reverts.
func (s *MessageService) MarkRead(ctx context.Context, gigID, userID string) (int64, error) {
	return s.messages.MarkRead(ctx, gigID, userID)
}

// UnreadCount returns the user's unread badge across all conversations.
func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.messages.CountUnread(ctx, userID)
}

// ConversationSummary is the inbox row returned to the frontend.
type ConversationSummary struct {
	GigID           string       `json:"gigId"`
	OtherUserID     string       `json:"otherUserId,omitempty"`
	OtherUserName   string       `json:"otherUserName,omitempty"`
	OtherUserAvatar string       `json:"otherUserAvatar,omitempty"`
	LatestMessage   *wire.Record `json:"latestMessage"`
	UnreadCount     int          `json:"unreadCount"`
}

// Conversations derives the user's inbox from the message log: one row per
// (gig, counterpart), newest thread first. No conversation table exists;
// this is a fold over ListInvolving.
func (s *MessageService) Conversations(ctx context.Context, userID string) ([]*ConversationSummary, error) {
	msgs, err := s.messages.ListInvolving(ctx, userID)
	if err != nil {
		return nil, err
	}

	type key struct{ gig, other string }
	index := make(map[key]*ConversationSummary)
	var order []key
	for _, m := range msgs {
		other := m.SenderID
		if m.SenderID == userID {
			other = m.RecipientID
		}
		k := key{gig: m.GigID, other: other}
		sum, ok := index[k]
		if !ok {
			sum = &ConversationSummary{
				GigID:         m.GigID,
				OtherUserID:   other,
				LatestMessage: s.toRecord(m), // msgs are newest first
			}
			index[k] = sum
			order = append(order, k)
		}
		if m.RecipientID == userID && !m.Read {
			sum.UnreadCount++
		}
	}

	res := make([]*ConversationSummary, 0, len(order))
	for _, k := range order {
		sum := index[k]
		if sum.OtherUserID != "" {
			if u, err := s.users.GetByID(ctx, sum.OtherUserID); err == nil {
				sum.OtherUserName = u.Name
				sum.OtherUserAvatar = u.Avatar
			}
		}
		res = append(res, sum)
	}
	return res, nil
}

func (s *MessageService) toRecord(m *domain.Message) *wire.Record {
	text := m.Text
	if dec, err := s.encryptor.Decrypt(m.Text); err == nil {
		text = dec
	}
	// on decrypt error fall back to raw
	return &wire.Record{
		ID:         m.ID,
		MessageKey: m.MessageKey,
		GigID:      m.GigID,
		Sender: wire.Sender{
			ID:     m.SenderID,
			Name:   m.SenderName,
			Avatar: m.SenderAvatar,
		},
		RecipientID: m.RecipientID,
		Text:        text,
		SentAt:      m.SentAt,
		Read:        m.Read,
	}
}

func (s *MessageService) toRecords(msgs []*domain.Message) []*wire.Record {
	res := make([]*wire.Record, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, s.toRecord(m))
	}
	return res
}
