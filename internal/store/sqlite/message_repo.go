package sqlite

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

// Append inserts the message unless its key already exists. The unique
// constraint makes concurrent duplicate submissions safe without locking:
// INSERT OR IGNORE either wins or the original row is re-read and returned.
func (r *MessageRepo) Append(ctx context.Context, m *domain.Message) (*domain.Message, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages
			(message_key, gig_id, sender_id, recipient_id, text, sent_at, read, sender_name, sender_avatar)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, m.MessageKey, m.GigID, m.SenderID, m.RecipientID, m.Text, m.SentAt, m.SenderName, m.SenderAvatar)
	if err != nil {
		return nil, false, fmt.Errorf("insert message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		existing, err := r.getByKey(ctx, m.MessageKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	m.Read = false
	return m, true, nil
}

func (r *MessageRepo) getByKey(ctx context.Context, key string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM messages WHERE message_key = ?
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

// History selects the (gigID, a, b) conversation structurally: direct rows in
// either direction plus broadcast rows from either participant.
func (r *MessageRepo) History(ctx context.Context, gigID, a, b string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE gig_id = ? AND (
			(sender_id = ? AND recipient_id = ?) OR
			(sender_id = ? AND recipient_id = ?) OR
			(sender_id = ? AND recipient_id = '') OR
			(sender_id = ? AND recipient_id = '')
		)
		ORDER BY sent_at ASC, id ASC
	`, gigID, a, b, b, a, a, b)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	return collectMessages(rows)
}

func (r *MessageRepo) MarkRead(ctx context.Context, gigID, recipientID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET read = 1
		WHERE gig_id = ? AND recipient_id = ? AND read = 0
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
		SELECT COUNT(*) FROM messages WHERE recipient_id = ? AND read = 0
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *MessageRepo) ListInvolving(ctx context.Context, userID string) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE sender_id = ? OR recipient_id = ?
		ORDER BY sent_at DESC, id DESC
	`, userID, userID)
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
