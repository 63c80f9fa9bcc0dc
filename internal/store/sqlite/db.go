package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL for the chat schema.
//
// Messages are append-only; the UNIQUE constraint on message_key is the
// deduplication mechanism for retried sends. There is deliberately no
// conversations table: conversation identity is derived from
// (gig_id, participant pair) on every query.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(24) PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			avatar TEXT NOT NULL DEFAULT '',
			email VARCHAR(100) UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY,
			message_key TEXT UNIQUE NOT NULL,
			gig_id VARCHAR(24) NOT NULL,
			sender_id VARCHAR(24) NOT NULL,
			recipient_id VARCHAR(24) NOT NULL DEFAULT '',
			text TEXT NOT NULL,
			sent_at INTEGER NOT NULL,
			read BOOLEAN NOT NULL DEFAULT 0,
			sender_name TEXT NOT NULL DEFAULT '',
			sender_avatar TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_gig_sent ON messages(gig_id, sent_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_recipient_read ON messages(recipient_id, read);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
