package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/chat"
	"expertvakil/server/internal/directory"
	"expertvakil/server/internal/identity"
	"expertvakil/server/internal/models"
	"expertvakil/server/internal/realtime"
	"expertvakil/server/internal/store"
	"expertvakil/server/internal/upload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingBlobs struct{}

func (failingBlobs) Put(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	return "", errors.New("bucket unavailable")
}

type harness struct {
	store    *store.Memory
	broker   *realtime.LocalBroker
	messages *chat.MessageStore
	inbox    *chat.InboxStore
	blobs    *upload.MemoryStore
	dir      *directory.Memory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  store.NewMemory(),
		broker: realtime.NewLocalBroker(),
		blobs:  upload.NewMemoryStore("http://files.test"),
		dir: directory.NewMemory(
			models.User{ID: "client-1", Name: "Asha"},
			models.User{ID: "lawyer-1", Name: "Adv. Rao"},
		),
	}
	core := chat.NewCore(h.store, h.broker, zap.NewNop().Sugar())
	h.messages = chat.NewMessageStore(core)
	h.inbox = chat.NewInboxStore(core)
	return h
}

func (h *harness) manager(t *testing.T, blobs upload.BlobStore) *Manager {
	t.Helper()
	if blobs == nil {
		blobs = h.blobs
	}
	m := New(context.Background(), Deps{
		Messages:     h.messages,
		Inbox:        h.inbox,
		Uploader:     upload.NewUploader(blobs, zap.NewNop().Sugar()),
		Directory:    h.dir,
		RefreshDelay: 10 * time.Millisecond,
	})
	t.Cleanup(m.Close)
	return m
}

func login(m *Manager, userID, name string) {
	id := identity.New(userID, name)
	m.SetIdentity(&id)
}

func TestManager_Lifecycle(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t, nil)

	assert.Equal(t, StatusUninitialized, m.Status())

	login(m, "client-1", "Asha")
	assert.Equal(t, StatusIdle, m.Status())
	assert.Eventually(t, func() bool {
		return h.broker.Subscribers(store.InboxTopic("client-1")) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := m.StartConversation(context.Background(), "lawyer-1", "Adv. Rao")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, m.Status())

	m.ClearCurrentConversation()
	assert.Equal(t, StatusIdle, m.Status())
	assert.Empty(t, m.State().Messages)
	assert.Equal(t, 0, h.broker.Subscribers(store.MessagesTopic("client-1", "lawyer-1")))

	m.SetIdentity(nil)
	assert.Equal(t, StatusUninitialized, m.Status())
	assert.Equal(t, 0, h.broker.Subscribers(store.InboxTopic("client-1")))
}

func TestManager_StartConversation(t *testing.T) {
	t.Run("happy path - provisional conversation is replaced by the stored entry", func(t *testing.T) {
		h := newHarness(t)
		m := h.manager(t, nil)
		login(m, "client-1", "Asha")

		conv, err := m.StartConversation(context.Background(), "lawyer-1", "Adv. Rao")
		require.NoError(t, err)
		assert.True(t, conv.Provisional)
		assert.Equal(t, "Adv. Rao", conv.UserName)

		assert.Eventually(t, func() bool {
			st := m.State()
			return len(st.Conversations) == 1 && st.Current != nil && !st.Current.Provisional
		}, time.Second, 5*time.Millisecond)

		theirs, err := h.store.GetInbox(context.Background(), "lawyer-1", "client-1")
		require.NoError(t, err)
		assert.False(t, theirs.Seen)
		assert.Empty(t, theirs.UserName)
	})

	t.Run("happy path - existing conversation is selected", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		_, err := h.messages.SendText(ctx, identity.New("lawyer-1", "Adv. Rao"), "client-1", "hello", chat.SendOptions{})
		require.NoError(t, err)

		m := h.manager(t, nil)
		login(m, "client-1", "Asha")
		assert.Eventually(t, func() bool { return len(m.State().Conversations) == 1 }, time.Second, 5*time.Millisecond)

		conv, err := m.StartConversation(ctx, "lawyer-1", "")
		require.NoError(t, err)
		assert.False(t, conv.Provisional)
		assert.Equal(t, "hello", conv.LastMessage)
	})

	t.Run("error - without identity", func(t *testing.T) {
		m := newHarness(t).manager(t, nil)
		_, err := m.StartConversation(context.Background(), "lawyer-1", "")
		assert.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	})

	t.Run("error - with myself", func(t *testing.T) {
		m := newHarness(t).manager(t, nil)
		login(m, "client-1", "Asha")
		_, err := m.StartConversation(context.Background(), "client-1", "")
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})
}

func TestManager_SelectConversation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rao := identity.New("lawyer-1", "Adv. Rao")
	mehta := identity.New("lawyer-2", "Adv. Mehta")
	_, err := h.messages.SendText(ctx, rao, "client-1", "from rao", chat.SendOptions{})
	require.NoError(t, err)
	_, err = h.messages.SendText(ctx, mehta, "client-1", "from mehta", chat.SendOptions{})
	require.NoError(t, err)

	m := h.manager(t, nil)
	login(m, "client-1", "Asha")

	require.NoError(t, m.SelectConversation(ctx, Conversation{InboxEntry: models.InboxEntry{OwnerID: "client-1", CounterpartyID: "lawyer-1"}}))
	assert.Eventually(t, func() bool {
		st := m.State()
		return len(st.Messages) == 1 && st.Messages[0].Message == "from rao" && !st.Loading
	}, time.Second, 5*time.Millisecond)

	// selecting marks the conversation seen and the snapshot marks it delivered
	assert.Eventually(t, func() bool {
		msgs, err := h.store.QueryMessages(ctx, "lawyer-1", "client-1", store.MessageFilter{})
		return err == nil && len(msgs) == 1 && msgs[0].Seen && msgs[0].Delivered
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.SelectConversation(ctx, Conversation{InboxEntry: models.InboxEntry{OwnerID: "client-1", CounterpartyID: "lawyer-2"}}))
	assert.Equal(t, 0, h.broker.Subscribers(store.MessagesTopic("client-1", "lawyer-1")))
	assert.Eventually(t, func() bool {
		st := m.State()
		return len(st.Messages) == 1 && st.Messages[0].Message == "from mehta"
	}, time.Second, 5*time.Millisecond)

	// a new message in the old conversation must not show up
	_, err = h.messages.SendText(ctx, rao, "client-1", "late", chat.SendOptions{})
	require.NoError(t, err)
	assert.Never(t, func() bool {
		for _, msg := range m.State().Messages {
			if msg.Message == "late" {
				return true
			}
		}
		return false
	}, 100*time.Millisecond, 10*time.Millisecond)

	assert.ErrorIs(t, m.SelectConversationWith(ctx, "lawyer-9"), apperrors.ErrNotFound)
}

func TestManager_SendTextMessage(t *testing.T) {
	t.Run("happy path - message reaches both sides", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		m := h.manager(t, nil)
		login(m, "client-1", "Asha")
		_, err := m.StartConversation(ctx, "lawyer-1", "Adv. Rao")
		require.NoError(t, err)

		msg, err := m.SendTextMessage(ctx, "  need advice  ")
		require.NoError(t, err)
		assert.Equal(t, "need advice", msg.Message)
		assert.Empty(t, m.State().InFlight)

		assert.Eventually(t, func() bool {
			msgs := m.State().Messages
			return len(msgs) == 1 && msgs[0].ID == msg.ID
		}, time.Second, 5*time.Millisecond)

		theirs, err := h.store.GetInbox(ctx, "lawyer-1", "client-1")
		require.NoError(t, err)
		assert.Equal(t, "Asha", theirs.UserName)
		assert.Equal(t, "need advice", theirs.LastMessage)
	})

	t.Run("error - no active conversation", func(t *testing.T) {
		m := newHarness(t).manager(t, nil)
		login(m, "client-1", "Asha")
		_, err := m.SendTextMessage(context.Background(), "hi")
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})

	t.Run("error - blank text", func(t *testing.T) {
		h := newHarness(t)
		m := h.manager(t, nil)
		login(m, "client-1", "Asha")
		_, err := m.StartConversation(context.Background(), "lawyer-1", "")
		require.NoError(t, err)
		_, err = m.SendTextMessage(context.Background(), "   ")
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
	})
}

type progressRecorder struct {
	mu     sync.Mutex
	values []int
}

func (p *progressRecorder) record(v int) {
	p.mu.Lock()
	p.values = append(p.values, v)
	p.mu.Unlock()
}

func TestManager_SendFileMessage(t *testing.T) {
	t.Run("happy path - document with progress checkpoints", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		m := h.manager(t, nil)
		login(m, "client-1", "Asha")
		_, err := m.StartConversation(ctx, "lawyer-1", "Adv. Rao")
		require.NoError(t, err)

		var progress progressRecorder
		f := upload.BytesFile("contract.pdf", "application/pdf", []byte("%PDF-1.4"))
		msg, err := m.SendFileMessage(ctx, f, models.MessageTypeDocument, "", progress.record)
		require.NoError(t, err)

		assert.Equal(t, []int{ProgressStarted, ProgressUploaded, ProgressDone}, progress.values)
		assert.Equal(t, "contract.pdf", msg.Message)
		assert.Equal(t, "http://files.test/chat_uploads/client-1/lawyer-1/"+msg.ID+"/contract.pdf", msg.MediaURL)

		mine, err := h.store.GetInbox(ctx, "client-1", "lawyer-1")
		require.NoError(t, err)
		assert.Equal(t, "📄 contract.pdf", mine.LastMessage)
	})

	t.Run("error - upload failure writes nothing", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		m := h.manager(t, failingBlobs{})
		login(m, "client-1", "Asha")
		_, err := m.StartConversation(ctx, "lawyer-1", "Adv. Rao")
		require.NoError(t, err)

		var progress progressRecorder
		f := upload.BytesFile("clip.mp4", "video/mp4", []byte("not really a video"))
		_, err = m.SendFileMessage(ctx, f, models.MessageTypeVideo, "", progress.record)
		assert.ErrorIs(t, err, apperrors.ErrUploadFailed)
		assert.Equal(t, []int{ProgressStarted, ProgressFailed}, progress.values)

		msgs, err := h.store.QueryMessages(ctx, "client-1", "lawyer-1", store.MessageFilter{})
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("error - text is not an attachment type", func(t *testing.T) {
		h := newHarness(t)
		m := h.manager(t, nil)
		login(m, "client-1", "Asha")
		_, err := m.StartConversation(context.Background(), "lawyer-1", "")
		require.NoError(t, err)

		var progress progressRecorder
		_, err = m.SendFileMessage(context.Background(), upload.BytesFile("a.txt", "text/plain", []byte("x")), models.MessageTypeText, "", progress.record)
		assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
		assert.Equal(t, []int{ProgressFailed}, progress.values)
	})
}

func TestManager_DeleteMessage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rao := identity.New("lawyer-1", "Adv. Rao")
	theirs, err := h.messages.SendText(ctx, rao, "client-1", "from rao", chat.SendOptions{})
	require.NoError(t, err)

	m := h.manager(t, nil)
	login(m, "client-1", "Asha")
	_, err = m.StartConversation(ctx, "lawyer-1", "")
	require.NoError(t, err)
	mine, err := m.SendTextMessage(ctx, "from asha")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(m.State().Messages) == 2 }, time.Second, 5*time.Millisecond)

	t.Run("error - cannot delete someone else's message for everyone", func(t *testing.T) {
		err := m.DeleteMessageForEveryone(ctx, theirs.ID)
		assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	})

	t.Run("happy path - delete for me keeps the other copy", func(t *testing.T) {
		require.NoError(t, m.DeleteMessageForMe(ctx, theirs.ID))
		_, err := h.store.GetMessage(ctx, "lawyer-1", "client-1", theirs.ID)
		assert.NoError(t, err)
		for _, msg := range m.State().Messages {
			assert.NotEqual(t, theirs.ID, msg.ID)
		}
	})

	t.Run("happy path - delete for everyone removes both copies", func(t *testing.T) {
		require.NoError(t, m.DeleteMessageForEveryone(ctx, mine.ID))
		_, err := h.store.GetMessage(ctx, "lawyer-1", "client-1", mine.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.Eventually(t, func() bool { return len(m.State().Messages) == 0 }, time.Second, 5*time.Millisecond)
	})
}

func TestManager_MarkMessagesAsSeenWithoutConversation(t *testing.T) {
	m := newHarness(t).manager(t, nil)
	assert.NoError(t, m.MarkMessagesAsSeen(context.Background()))
	login(m, "client-1", "Asha")
	assert.NoError(t, m.MarkMessagesAsSeen(context.Background()))
}

func TestManager_UserName(t *testing.T) {
	h := newHarness(t)
	m := h.manager(t, nil)

	assert.Equal(t, "Adv. Rao", m.UserName(context.Background(), "lawyer-1"))
	assert.Equal(t, "User ghost-", m.UserName(context.Background(), "ghost-user"))

	// cached for the session
	h.dir.Put(models.User{ID: "lawyer-1", Name: "Adv. S. Rao"})
	assert.Equal(t, "Adv. Rao", m.UserName(context.Background(), "lawyer-1"))

	assert.Empty(t, m.ProfilePic(context.Background(), "lawyer-1"))
}

func TestManager_OnState(t *testing.T) {
	h := newHarness(t)
	var mu sync.Mutex
	var seen []Status
	m := New(context.Background(), Deps{
		Messages:  h.messages,
		Inbox:     h.inbox,
		Uploader:  upload.NewUploader(h.blobs, zap.NewNop().Sugar()),
		Directory: h.dir,
		OnState: func(st State) {
			mu.Lock()
			seen = append(seen, st.Status)
			mu.Unlock()
		},
	})
	defer m.Close()

	login(m, "client-1", "Asha")
	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, StatusIdle, seen[len(seen)-1])
}

func TestManager_ConversationProfiles(t *testing.T) {
	h := newHarness(t)
	avatar := "http://files.test/avatars/client-1.png"
	h.dir.Put(models.User{ID: "client-1", Name: "Asha", Avatar: &avatar})

	lawyer := h.manager(t, nil)
	login(lawyer, "lawyer-1", "Adv. Rao")
	client := h.manager(t, nil)
	login(client, "client-1", "Asha")

	_, err := client.StartConversation(context.Background(), "lawyer-1", "Adv. Rao")
	require.NoError(t, err)

	// the lawyer's placeholder has no stored name
	assert.Eventually(t, func() bool { return len(lawyer.State().Conversations) == 1 }, time.Second, 5*time.Millisecond)
	stored, err := h.store.GetInbox(context.Background(), "lawyer-1", "client-1")
	require.NoError(t, err)
	assert.Empty(t, stored.UserName)

	conv := lawyer.State().Conversations[0]
	assert.Equal(t, "Asha", conv.UserName)
	assert.Equal(t, avatar, conv.ProfilePic)
}

// gatedStore holds commits until released
type gatedStore struct {
	*store.Memory
	release chan struct{}
}

func (g *gatedStore) Commit(ctx context.Context, b *store.Batch) error {
	<-g.release
	return g.Memory.Commit(ctx, b)
}

func TestManager_StartConversationAfterLogout(t *testing.T) {
	gated := &gatedStore{Memory: store.NewMemory(), release: make(chan struct{})}
	core := chat.NewCore(gated, realtime.NewLocalBroker(), zap.NewNop().Sugar())
	m := New(context.Background(), Deps{
		Messages:     chat.NewMessageStore(core),
		Inbox:        chat.NewInboxStore(core),
		Uploader:     upload.NewUploader(upload.NewMemoryStore("http://files.test"), zap.NewNop().Sugar()),
		Directory:    directory.NewMemory(),
		RefreshDelay: time.Hour,
	})
	defer m.Close()
	login(m, "client-1", "Asha")

	_, err := m.StartConversation(context.Background(), "lawyer-1", "Adv. Rao")
	require.NoError(t, err)

	m.SetIdentity(nil)
	close(gated.release)

	assert.Eventually(t, func() bool {
		_, err := gated.GetInbox(context.Background(), "client-1", "lawyer-1")
		return err == nil
	}, time.Second, 5*time.Millisecond)
	// give the background writer time to reach the timer
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, StatusUninitialized, m.Status())
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Nil(t, m.refreshTimer)
}
