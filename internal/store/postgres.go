package store

import (
	"context"
	"errors"
	"fmt"

	"expertvakil/server/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores both mirrored message logs and the inbox projection in
// PostgreSQL. A Batch is sent as one pgx.Batch inside one transaction.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an open pool. Tables are created by database.Migrate.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const messageColumns = `id, type, sender_id, receiver_id, sent_at, message,
	media_url, thumbnail_url, file_name, file_size, mime_type, delivered, seen`

const inboxColumns = `owner_id, counterparty_id, sender_id, receiver_id, last_message,
	seen, sent_at, user_name, archive`

// Commit runs all writes of b in a single transaction
func (s *Postgres) Commit(ctx context.Context, b *Batch) error {
	if b.Len() == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		pb := &pgx.Batch{}
		for _, o := range b.ops {
			queueOp(pb, o)
		}
		br := tx.SendBatch(ctx, pb)
		for i := range b.ops {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("batch write %d: %w", i, err)
			}
		}
		return br.Close()
	})
}

func queueOp(pb *pgx.Batch, o op) {
	switch o.kind {
	case opSetMessage:
		m := o.msg
		pb.Queue(`
			INSERT INTO chat_messages (owner_id, counterparty_id, `+messageColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (owner_id, counterparty_id, id) DO UPDATE SET
				type = EXCLUDED.type, sender_id = EXCLUDED.sender_id, receiver_id = EXCLUDED.receiver_id,
				sent_at = EXCLUDED.sent_at, message = EXCLUDED.message, media_url = EXCLUDED.media_url,
				thumbnail_url = EXCLUDED.thumbnail_url, file_name = EXCLUDED.file_name,
				file_size = EXCLUDED.file_size, mime_type = EXCLUDED.mime_type,
				delivered = EXCLUDED.delivered, seen = EXCLUDED.seen
		`, o.owner, o.counterparty, m.ID, string(m.Type), m.SenderID, m.ReceiverID, m.Timestamp, m.Message,
			m.MediaURL, m.ThumbnailURL, m.FileName, m.FileSize, m.MimeType, m.Delivered, m.Seen)
	case opMarkMessage:
		pb.Queue(`
			UPDATE chat_messages SET seen = seen OR $4, delivered = delivered OR $5
			WHERE owner_id = $1 AND counterparty_id = $2 AND id = $3
		`, o.owner, o.counterparty, o.id, o.flags.Seen, o.flags.Delivered)
	case opDeleteMessage:
		pb.Queue(`
			DELETE FROM chat_messages WHERE owner_id = $1 AND counterparty_id = $2 AND id = $3
		`, o.owner, o.counterparty, o.id)
	case opUpsertInbox:
		e := o.entry
		pb.Queue(`
			INSERT INTO chat_inbox (`+inboxColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (owner_id, counterparty_id) DO UPDATE SET
				sender_id = EXCLUDED.sender_id, receiver_id = EXCLUDED.receiver_id,
				last_message = EXCLUDED.last_message, seen = EXCLUDED.seen, sent_at = EXCLUDED.sent_at,
				user_name = COALESCE(NULLIF(EXCLUDED.user_name, ''), chat_inbox.user_name)
		`, e.OwnerID, e.CounterpartyID, e.SenderID, e.ReceiverID, e.LastMessage, e.Seen, e.Timestamp, e.UserName, e.Archive)
	case opCreateInbox:
		e := o.entry
		pb.Queue(`
			INSERT INTO chat_inbox (`+inboxColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (owner_id, counterparty_id) DO NOTHING
		`, e.OwnerID, e.CounterpartyID, e.SenderID, e.ReceiverID, e.LastMessage, e.Seen, e.Timestamp, e.UserName, e.Archive)
	case opMarkInboxSeen:
		pb.Queue(`
			UPDATE chat_inbox SET seen = TRUE WHERE owner_id = $1 AND counterparty_id = $2
		`, o.owner, o.counterparty)
	}
}

func scanMessage(row pgx.Row) (models.Message, error) {
	var m models.Message
	var typ string
	err := row.Scan(&m.ID, &typ, &m.SenderID, &m.ReceiverID, &m.Timestamp, &m.Message,
		&m.MediaURL, &m.ThumbnailURL, &m.FileName, &m.FileSize, &m.MimeType, &m.Delivered, &m.Seen)
	m.Type = models.MessageType(typ)
	return m, err
}

func scanInbox(row pgx.Row) (models.InboxEntry, error) {
	var e models.InboxEntry
	err := row.Scan(&e.OwnerID, &e.CounterpartyID, &e.SenderID, &e.ReceiverID, &e.LastMessage,
		&e.Seen, &e.Timestamp, &e.UserName, &e.Archive)
	return e, err
}

// GetMessage returns one copy of a message or ErrNotFound
func (s *Postgres) GetMessage(ctx context.Context, owner, counterparty, id string) (models.Message, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+` FROM chat_messages
		WHERE owner_id = $1 AND counterparty_id = $2 AND id = $3
	`, owner, counterparty, id)
	m, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Message{}, ErrNotFound
	}
	return m, err
}

// QueryMessages filters one conversation copy in SQL. Ids are compared
// bytewise so ties sort the same way as in Memory.
func (s *Postgres) QueryMessages(ctx context.Context, owner, counterparty string, f MessageFilter) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+` FROM chat_messages
		WHERE owner_id = $1 AND counterparty_id = $2
			AND ($3 = '' OR receiver_id = $3)
			AND (NOT $4 OR NOT seen)
			AND (NOT $5 OR NOT delivered)
		ORDER BY sent_at ASC, id COLLATE "C" ASC
	`, owner, counterparty, f.ReceiverID, f.Unseen, f.Undelivered)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *Postgres) GetInbox(ctx context.Context, owner, counterparty string) (models.InboxEntry, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+inboxColumns+` FROM chat_inbox WHERE owner_id = $1 AND counterparty_id = $2
	`, owner, counterparty)
	e, err := scanInbox(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.InboxEntry{}, ErrNotFound
	}
	return e, err
}

// ListInbox returns owner's entries, most recent first
func (s *Postgres) ListInbox(ctx context.Context, owner string) ([]models.InboxEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+inboxColumns+` FROM chat_inbox
		WHERE owner_id = $1
		ORDER BY sent_at DESC, counterparty_id COLLATE "C" ASC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.InboxEntry{}
	for rows.Next() {
		e, err := scanInbox(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
