package domain

import (
	"context"
)

// MessageRepository defines persistence operations for chat messages.
type MessageRepository interface {
	// Append persists m unless a record with the same MessageKey already
	// exists. It returns the persisted record and whether a new row was
	// created; a duplicate key is not an error, the original record is
	// returned so retries are idempotent.
	Append(ctx context.Context, m *Message) (*Message, bool, error)

	// History returns all messages of the (gigID, a, b) conversation: rows
	// between the two participants in either direction plus broadcast rows
	// from either of them, sorted by SentAt ascending, ties broken by
	// insertion order. The pairing is symmetric.
	History(ctx context.Context, gigID, a, b string) ([]*Message, error)

	// MarkRead flips read=false rows addressed to recipientID in the given
	// gig to read=true and returns how many rows transitioned.
	MarkRead(ctx context.Context, gigID, recipientID string) (int64, error)

	// CountUnread returns the number of unread messages addressed to userID
	// across all gigs.
	CountUnread(ctx context.Context, userID string) (int64, error)

	// ListInvolving returns all messages sent by or addressed to userID
	// (including their broadcasts), newest first. Used to derive the
	// conversation inbox.
	ListInvolving(ctx context.Context, userID string) ([]*Message, error)
}

// UserRepository defines the user lookups the chat pipeline needs.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
}
