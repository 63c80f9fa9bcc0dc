package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/samikhan1239/Fiver/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

const messageColumns = `id, message_key, gig_id, sender_id, recipient_id, text, sent_at, read, sender_name, sender_avatar`

func (r *MessageRepo) Append(ctx context.Context, m *domain.Message) (*domain.Message, bool, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO messages
			(message_key, gig_id, sender_id, recipient_id, text, sent_at, read, sender_name, sender_avatar)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8)
		ON CONFLICT (message_key) DO NOTHING
		RETURNING id
	`, m.MessageKey, m.GigID, m.SenderID, m.RecipientID, m.Text, m.SentAt, m.SenderName, m.SenderAvatar,
	).Scan(&m.ID)
	if err == sql.ErrNoRows {
		// Lost the race or a retry: return the original row.
		existing, err := r.getByKey(ctx, m.MessageKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert message: %w", err)
	}
	m.Read = false
	return m, true, nil
}

func (r *MessageRepo) getByKey(ctx context.Context, key string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE message_key = $1
	`, key)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message by key: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) History(ctx context.Context, gigID, a, b string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE gig_id = $1 AND (
			(sender_id = $2 AND recipient_id = $3) OR
			(sender_id = $3 AND recipient_id = $2) OR
			(sender_id = $2 AND recipient_id = '') OR
			(sender_id = $3 AND recipient_id = '')
		)
		ORDER BY sent_at ASC, id ASC
	`, gigID, a, b)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *MessageRepo) MarkRead(ctx context.Context, gigID, recipientID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET read = TRUE
		WHERE gig_id = $1 AND recipient_id = $2 AND read = FALSE
	`, gigID, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func (r *MessageRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE recipient_id = $1 AND read = FALSE
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *MessageRepo) ListInvolving(ctx context.Context, userID string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE sender_id = $1 OR recipient_id = $1
		ORDER BY sent_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list involving: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(
		&m.ID,
		&m.MessageKey,
		&m.GigID,
		&m.SenderID,
		&m.RecipientID,
		&m.Text,
		&m.SentAt,
		&m.Read,
		&m.SenderName,
		&m.SenderAvatar,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func collectMessages(rows *sql.Rows) ([]*domain.Message, error) {
	var res []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
