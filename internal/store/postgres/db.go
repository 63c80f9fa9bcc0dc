package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL for the chat schema on PostgreSQL. Same shape
// as the SQLite schema: append-only messages deduplicated by the unique
// message_key, no conversations table.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         VARCHAR(24)  PRIMARY KEY,
			name       VARCHAR(100) NOT NULL,
			avatar     TEXT         NOT NULL DEFAULT '',
			email      VARCHAR(100) UNIQUE,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id            BIGSERIAL   PRIMARY KEY,
			message_key   TEXT        UNIQUE NOT NULL,
			gig_id        VARCHAR(24) NOT NULL,
			sender_id     VARCHAR(24) NOT NULL,
			recipient_id  VARCHAR(24) NOT NULL DEFAULT '',
			text          TEXT        NOT NULL,
			sent_at       BIGINT      NOT NULL,
			read          BOOLEAN     NOT NULL DEFAULT FALSE,
			sender_name   TEXT        NOT NULL DEFAULT '',
			sender_avatar TEXT        NOT NULL DEFAULT ''
		)`,

		`CREATE INDEX IF NOT EXISTS idx_messages_gig_sent ON messages(gig_id, sent_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_recipient_read ON messages(recipient_id, read)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
