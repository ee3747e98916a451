package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Connect opens a pgx pool and verifies it with a ping
func Connect(ctx context.Context, databaseURL string, log *zap.SugaredLogger) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Infow("database connected", "driver", "pgx")
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		avatar TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
		owner_id TEXT NOT NULL,
		counterparty_id TEXT NOT NULL,
		id TEXT NOT NULL,
		type TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		receiver_id TEXT NOT NULL,
		sent_at TIMESTAMPTZ NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		media_url TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL DEFAULT '',
		file_size BIGINT NOT NULL DEFAULT 0,
		mime_type TEXT NOT NULL DEFAULT '',
		delivered BOOLEAN NOT NULL DEFAULT FALSE,
		seen BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (owner_id, counterparty_id, id)
	)`,
	`DROP INDEX IF EXISTS chat_messages_order_idx`,
	`CREATE INDEX IF NOT EXISTS chat_messages_order_c_idx
		ON chat_messages (owner_id, counterparty_id, sent_at, id COLLATE "C")`,
	`CREATE TABLE IF NOT EXISTS chat_inbox (
		owner_id TEXT NOT NULL,
		counterparty_id TEXT NOT NULL,
		sender_id TEXT NOT NULL DEFAULT '',
		receiver_id TEXT NOT NULL DEFAULT '',
		last_message TEXT NOT NULL DEFAULT '',
		seen BOOLEAN NOT NULL DEFAULT FALSE,
		sent_at TIMESTAMPTZ NOT NULL,
		user_name TEXT NOT NULL DEFAULT '',
		archive BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (owner_id, counterparty_id)
	)`,
	`CREATE INDEX IF NOT EXISTS chat_inbox_recent_idx ON chat_inbox (owner_id, sent_at DESC)`,
}

// Migrate creates the chat tables if they do not exist yet
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
