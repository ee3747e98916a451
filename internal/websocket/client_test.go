package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/chat"
	"expertvakil/server/internal/directory"
	"expertvakil/server/internal/identity"
	"expertvakil/server/internal/models"
	"expertvakil/server/internal/realtime"
	"expertvakil/server/internal/session"
	"expertvakil/server/internal/store"
	"expertvakil/server/internal/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T) (*Client, *chat.MessageStore) {
	t.Helper()
	log := zap.NewNop().Sugar()
	core := chat.NewCore(store.NewMemory(), realtime.NewLocalBroker(), log)
	messages := chat.NewMessageStore(core)
	deps := session.Deps{
		Messages:  messages,
		Inbox:     chat.NewInboxStore(core),
		Uploader:  upload.NewUploader(upload.NewMemoryStore("http://files.test"), log),
		Directory: directory.NewMemory(models.User{ID: "lawyer-1", Name: "Adv. Rao"}),
	}
	c := NewClient(context.Background(), identity.New("client-1", "Asha"), nil, NewHub(log), deps, log)
	t.Cleanup(c.Session.Close)
	return c, messages
}

func command(typ EventType, payload interface{}) IncomingMessage {
	raw, _ := json.Marshal(payload)
	return IncomingMessage{Type: typ, Payload: raw}
}

func TestClient_HandleCommand(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestClient(t)

	t.Run("error - send without a conversation", func(t *testing.T) {
		_, err := c.handleCommand(ctx, command(EventSendText, SendTextPayload{Text: "hi"}))
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})

	t.Run("error - payload validation", func(t *testing.T) {
		_, err := c.handleCommand(ctx, command(EventStartConversation, StartConversationPayload{}))
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

		_, err = c.handleCommand(ctx, command(EventDeleteMessage, DeleteMessagePayload{MessageID: "m1", Scope: "all"}))
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})

	t.Run("error - unknown command", func(t *testing.T) {
		_, err := c.handleCommand(ctx, IncomingMessage{Type: "typing_start"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})

	t.Run("happy path - start, send and clear", func(t *testing.T) {
		res, err := c.handleCommand(ctx, command(EventStartConversation, StartConversationPayload{OtherUserID: "lawyer-1"}))
		require.NoError(t, err)
		conv, ok := res.(session.Conversation)
		require.True(t, ok)
		assert.Equal(t, "Adv. Rao", conv.UserName)
		assert.Equal(t, session.StatusActive, c.Session.Status())

		res, err = c.handleCommand(ctx, command(EventSendText, SendTextPayload{Text: "hello"}))
		require.NoError(t, err)
		msg, ok := res.(models.Message)
		require.True(t, ok)
		assert.Equal(t, "hello", msg.Message)

		assert.Eventually(t, func() bool {
			return len(c.Session.State().Messages) == 1
		}, time.Second, 5*time.Millisecond)

		_, err = c.handleCommand(ctx, command(EventDeleteMessage, DeleteMessagePayload{MessageID: msg.ID, Scope: ScopeEveryone}))
		require.NoError(t, err)

		_, err = c.handleCommand(ctx, IncomingMessage{Type: EventClearConversation})
		require.NoError(t, err)
		assert.Equal(t, session.StatusIdle, c.Session.Status())
	})
}

func TestClient_PushesState(t *testing.T) {
	c, _ := newTestClient(t)

	select {
	case data := <-c.sendCh:
		var msg struct {
			Type    EventType     `json:"type"`
			Payload session.State `json:"payload"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, EventState, msg.Type)
		assert.Equal(t, "client-1", msg.Payload.UserID)
	case <-time.After(time.Second):
		t.Fatal("no state pushed")
	}
}

func TestHub(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := zap.NewNop().Sugar()
	hub := NewHub(log)
	go hub.Run(ctx)

	phone := &Client{UserID: "client-1", sendCh: make(chan []byte, 4), log: log}
	laptop := &Client{UserID: "client-1", sendCh: make(chan []byte, 4), log: log}
	require.True(t, hub.Add(phone))
	require.True(t, hub.Add(laptop))

	assert.Eventually(t, func() bool { return hub.GetConnectionCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.GetOnlineCount())
	assert.True(t, hub.IsUserOnline("client-1"))

	hub.BroadcastToUser("client-1", WSMessage{Type: EventUploadProgress, Payload: UploadProgressPayload{MessageID: "m1", Progress: 50}})
	for _, c := range []*Client{phone, laptop} {
		select {
		case data := <-c.sendCh:
			assert.Contains(t, string(data), `"progress":50`)
		case <-time.After(time.Second):
			t.Fatal("no progress event")
		}
	}

	hub.Remove(phone)
	assert.Eventually(t, func() bool { return hub.GetConnectionCount() == 1 }, time.Second, 5*time.Millisecond)
	_, open := <-phone.sendCh
	assert.False(t, open)

	cancel()
	assert.Eventually(t, func() bool { return hub.GetOnlineCount() == 0 }, time.Second, 5*time.Millisecond)
	hub.Remove(laptop) // returns once the hub has stopped
}
