package store

import (
	"context"
	"os"
	"testing"
	"time"

	"expertvakil/server/internal/database"
	"expertvakil/server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestPostgres connects to TEST_DATABASE_URL and starts from empty tables
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := database.Connect(ctx, url, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE chat_messages, chat_inbox`)
	require.NoError(t, err)
	return NewPostgres(pool)
}

// checkTieBreaks asserts that equal timestamps are ordered by byte order of
// the id (messages) and counterparty id (inbox), whatever the backend.
func checkTieBreaks(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Commit(ctx, NewBatch().
		SetMessage("a", "b", models.Message{ID: "a1", Type: models.MessageTypeText, SenderID: "a", ReceiverID: "b", Timestamp: t0}).
		SetMessage("a", "b", models.Message{ID: "B2", Type: models.MessageTypeText, SenderID: "b", ReceiverID: "a", Timestamp: t0}).
		SetMessage("a", "b", models.Message{ID: "_3", Type: models.MessageTypeText, SenderID: "a", ReceiverID: "b", Timestamp: t0}).
		UpsertInbox(models.InboxEntry{OwnerID: "a", CounterpartyID: "amy", Timestamp: t0}).
		UpsertInbox(models.InboxEntry{OwnerID: "a", CounterpartyID: "Zed", Timestamp: t0})))

	msgs, err := s.QueryMessages(ctx, "a", "b", MessageFilter{})
	require.NoError(t, err)
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"B2", "_3", "a1"}, ids)

	entries, err := s.ListInbox(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Zed", entries[0].CounterpartyID)
	assert.Equal(t, "amy", entries[1].CounterpartyID)
}

func TestMemory_TieBreaks(t *testing.T) {
	checkTieBreaks(t, NewMemory())
}

func TestPostgres_TieBreaks(t *testing.T) {
	checkTieBreaks(t, newTestPostgres(t))
}

func TestPostgres_Commit(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	t.Run("happy path - mirrored copies, flags and inbox", func(t *testing.T) {
		msg := models.Message{ID: "m1", Type: models.MessageTypeText, SenderID: "client-1", ReceiverID: "lawyer-1", Message: "hi", Timestamp: t0}
		require.NoError(t, s.Commit(ctx, NewBatch().
			SetMessage("client-1", "lawyer-1", msg).
			SetMessage("lawyer-1", "client-1", msg).
			UpsertInbox(models.InboxEntry{OwnerID: "client-1", CounterpartyID: "lawyer-1", LastMessage: "hi", Seen: true, Timestamp: t0, UserName: "Adv. Rao"}).
			UpsertInbox(models.InboxEntry{OwnerID: "lawyer-1", CounterpartyID: "client-1", LastMessage: "hi", Timestamp: t0, UserName: "Asha"})))

		unseen, err := s.QueryMessages(ctx, "lawyer-1", "client-1", MessageFilter{ReceiverID: "lawyer-1", Unseen: true})
		require.NoError(t, err)
		require.Len(t, unseen, 1)
		assert.True(t, unseen[0].Timestamp.Equal(t0))

		require.NoError(t, s.Commit(ctx, NewBatch().
			MarkMessage("lawyer-1", "client-1", "m1", Flags{Seen: true, Delivered: true}).
			MarkMessage("client-1", "lawyer-1", "m1", Flags{Seen: true, Delivered: true}).
			MarkInboxSeen("lawyer-1", "client-1")))
		require.NoError(t, s.Commit(ctx, NewBatch().MarkMessage("client-1", "lawyer-1", "m1", Flags{})))

		mine, err := s.GetMessage(ctx, "client-1", "lawyer-1", "m1")
		require.NoError(t, err)
		assert.True(t, mine.Seen)
		assert.True(t, mine.Delivered)

		e, err := s.GetInbox(ctx, "lawyer-1", "client-1")
		require.NoError(t, err)
		assert.True(t, e.Seen)
		assert.Equal(t, "Asha", e.UserName)
	})

	t.Run("happy path - create does not overwrite and upsert keeps the name", func(t *testing.T) {
		require.NoError(t, s.Commit(ctx, NewBatch().CreateInbox(models.InboxEntry{OwnerID: "client-1", CounterpartyID: "lawyer-1", Timestamp: t0})))
		require.NoError(t, s.Commit(ctx, NewBatch().UpsertInbox(models.InboxEntry{
			OwnerID: "client-1", CounterpartyID: "lawyer-1", LastMessage: "later", Timestamp: t0.Add(time.Minute),
		})))

		e, err := s.GetInbox(ctx, "client-1", "lawyer-1")
		require.NoError(t, err)
		assert.Equal(t, "later", e.LastMessage)
		assert.Equal(t, "Adv. Rao", e.UserName)
	})

	t.Run("error - a failing write rolls back the whole batch", func(t *testing.T) {
		err := s.Commit(ctx, NewBatch().
			SetMessage("x", "y", models.Message{ID: "ok", Type: models.MessageTypeText, SenderID: "x", ReceiverID: "y", Timestamp: t0}).
			SetMessage("x", "y", models.Message{ID: "bad", Type: models.MessageTypeText, SenderID: "x", ReceiverID: "y", Message: "nul\x00", Timestamp: t0}))
		require.Error(t, err)

		_, err = s.GetMessage(ctx, "x", "y", "ok")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("error - missing documents", func(t *testing.T) {
		_, err := s.GetMessage(ctx, "nobody", "else", "m1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetInbox(ctx, "nobody", "else")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
