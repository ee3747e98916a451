// Package session holds the per-connection chat orchestrator: which
// conversation is active, what is visible, and every write made on behalf
// of the connected user.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/chat"
	"expertvakil/server/internal/directory"
	"expertvakil/server/internal/identity"
	"expertvakil/server/internal/models"
	"expertvakil/server/internal/upload"

	"go.uber.org/zap"
)

// DefaultRefreshDelay is how long StartConversation waits before reloading
// the conversation list, giving the inbox listener time to deliver the new
// placeholder entries first.
const DefaultRefreshDelay = time.Second

// Deps are the collaborators of a Manager
type Deps struct {
	Messages  *chat.MessageStore
	Inbox     *chat.InboxStore
	Uploader  *upload.Uploader
	Directory directory.Directory
	Log       *zap.SugaredLogger

	RefreshDelay time.Duration
	// OnState receives a snapshot after every state change. It must not
	// block for long and must not call Manager methods other than State.
	OnState func(State)
	// OnError receives listener and background failures
	OnError func(error)
}

// Manager is the stateful chat orchestrator a client binds to
type Manager struct {
	deps Deps
	ctx  context.Context
	stop context.CancelFunc

	notifyMu sync.Mutex

	mu            sync.Mutex
	me            *identity.Identity
	current       *Conversation
	messages      []models.Message
	conversations []Conversation
	loading       bool
	inFlight      map[string]struct{}
	unsubMessages func()
	unsubInbox    func()
	listenerGen   uint64
	refreshTimer  *time.Timer
	names         map[string]string
	pics          map[string]string
}

// New creates an uninitialized Manager. ctx bounds every listener the
// manager opens; Close releases them.
func New(ctx context.Context, deps Deps) *Manager {
	if deps.RefreshDelay <= 0 {
		deps.RefreshDelay = DefaultRefreshDelay
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop().Sugar()
	}
	ctx, stop := context.WithCancel(ctx)
	return &Manager{
		deps:     deps,
		ctx:      ctx,
		stop:     stop,
		inFlight: make(map[string]struct{}),
		names:    make(map[string]string),
		pics:     make(map[string]string),
	}
}

// State returns a snapshot of the session
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	st := State{
		Status:        StatusUninitialized,
		Messages:      append([]models.Message{}, m.messages...),
		Conversations: append([]Conversation{}, m.conversations...),
		Loading:       m.loading,
		InFlight:      sortedKeys(m.inFlight),
	}
	if m.me != nil {
		st.UserID = m.me.UserID
		st.Status = StatusIdle
	}
	if m.current != nil {
		c := *m.current
		st.Current = &c
		st.Status = StatusActive
	}
	return st
}

func (m *Manager) notify() {
	if m.deps.OnState == nil {
		return
	}
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.deps.OnState(m.State())
}

func (m *Manager) reportError(err error) {
	m.deps.Log.Warnw("chat session error", "error", err)
	if m.deps.OnError != nil {
		m.deps.OnError(err)
	}
}

// Status returns the current lifecycle state
func (m *Manager) Status() Status {
	return m.State().Status
}

// identity returns the current identity or a NotAuthenticated error
func (m *Manager) identity(op string) (identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.me == nil {
		return identity.Identity{}, apperrors.NotAuthenticated(op)
	}
	return *m.me, nil
}

// active returns the identity and the counterparty of the active conversation
func (m *Manager) active(op string) (identity.Identity, Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.me == nil {
		return identity.Identity{}, Conversation{}, apperrors.NotAuthenticated(op)
	}
	if m.current == nil {
		return identity.Identity{}, Conversation{}, apperrors.InvalidArgument(op, "no active conversation")
	}
	return *m.me, *m.current, nil
}

// SetIdentity is called by the authentication layer on login and logout.
// nil, or an identity without a user id, returns the session to the
// uninitialized state and tears down every listener.
func (m *Manager) SetIdentity(me *identity.Identity) {
	m.mu.Lock()
	m.teardownLocked()
	m.conversations = nil
	m.inFlight = make(map[string]struct{})
	m.names = make(map[string]string)
	m.pics = make(map[string]string)
	m.me = nil

	if me != nil && me.Valid() {
		id := *me
		m.me = &id
		m.unsubInbox = m.deps.Inbox.ListenList(m.ctx, id, m.onConversations, m.reportError)
	}
	m.mu.Unlock()
	m.notify()
}

// teardownLocked closes both listeners and forgets the active conversation
func (m *Manager) teardownLocked() {
	m.closeMessagesLocked()
	if m.unsubInbox != nil {
		m.unsubInbox()
		m.unsubInbox = nil
	}
	if m.refreshTimer != nil {
		m.refreshTimer.Stop()
		m.refreshTimer = nil
	}
}

// closeMessagesLocked ends the message listener and clears what it showed
func (m *Manager) closeMessagesLocked() {
	if m.unsubMessages != nil {
		m.unsubMessages()
		m.unsubMessages = nil
	}
	// snapshots from the old listener still in flight are dropped
	m.listenerGen++
	m.current = nil
	m.messages = nil
	m.loading = false
}

func (m *Manager) onConversations(entries []models.InboxEntry) {
	m.mu.Lock()
	me := m.me
	m.mu.Unlock()
	if me == nil {
		return
	}
	convs := m.resolveConversations(*me, entries)

	m.mu.Lock()
	if m.me != me {
		// identity changed while names were being resolved
		m.mu.Unlock()
		return
	}
	m.conversations = convs
	if m.current != nil {
		other := m.current.OtherUserID(m.me.UserID)
		for _, c := range m.conversations {
			if c.CounterpartyID == other {
				// the stored entry replaces a provisional one
				c := c
				m.current = &c
				break
			}
		}
	}
	m.mu.Unlock()
	m.notify()
}

// resolveConversations fills counterparty names missing from placeholder
// entries and attaches avatars, both through the session cache.
func (m *Manager) resolveConversations(me identity.Identity, entries []models.InboxEntry) []Conversation {
	convs := wrapEntries(entries)
	for i := range convs {
		other := convs[i].OtherUserID(me.UserID)
		if convs[i].UserName == "" {
			convs[i].UserName = m.UserName(m.ctx, other)
		}
		convs[i].ProfilePic = m.ProfilePic(m.ctx, other)
	}
	return convs
}

func (m *Manager) findConversationLocked(otherUserID string) (Conversation, bool) {
	for _, c := range m.conversations {
		if c.OtherUserID(m.me.UserID) == otherUserID {
			return c, true
		}
	}
	return Conversation{}, false
}

// StartConversation opens the conversation with otherUserID. A known
// conversation is selected as is. Otherwise a provisional conversation is
// selected right away while the placeholder inbox entries are written in
// the background, followed by a delayed refresh of the list.
func (m *Manager) StartConversation(ctx context.Context, otherUserID, otherUserName string) (Conversation, error) {
	const op = "session.StartConversation"
	me, err := m.identity(op)
	if err != nil {
		return Conversation{}, err
	}
	otherUserID = strings.TrimSpace(otherUserID)
	if otherUserID == "" || otherUserID == me.UserID {
		return Conversation{}, apperrors.InvalidArgument(op, "invalid counterparty")
	}

	m.mu.Lock()
	existing, ok := m.findConversationLocked(otherUserID)
	m.mu.Unlock()
	if ok {
		return existing, m.SelectConversation(ctx, existing)
	}

	if otherUserName == "" {
		otherUserName = m.UserName(ctx, otherUserID)
	}
	placeholder := Conversation{
		InboxEntry: models.InboxEntry{
			OwnerID:        me.UserID,
			CounterpartyID: otherUserID,
			SenderID:       me.UserID,
			ReceiverID:     otherUserID,
			Seen:           true,
			Timestamp:      time.Now(),
			UserName:       otherUserName,
		},
		Provisional: true,
		ProfilePic:  m.ProfilePic(ctx, otherUserID),
	}
	if err := m.SelectConversation(ctx, placeholder); err != nil {
		return Conversation{}, err
	}

	go func() {
		if err := m.deps.Inbox.CreatePlaceholder(m.ctx, me, otherUserID, otherUserName); err != nil {
			m.reportError(err)
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.me == nil || *m.me != me {
			// the session was torn down or switched users meanwhile
			return
		}
		if m.refreshTimer != nil {
			m.refreshTimer.Stop()
		}
		m.refreshTimer = time.AfterFunc(m.deps.RefreshDelay, func() {
			if err := m.RefreshConversations(m.ctx); err != nil {
				m.reportError(err)
			}
		})
	}()
	return placeholder, nil
}

// RefreshConversations reloads the conversation list once
func (m *Manager) RefreshConversations(ctx context.Context) error {
	m.mu.Lock()
	me := m.me
	m.mu.Unlock()
	if me == nil {
		return nil
	}
	entries, err := m.deps.Inbox.List(ctx, *me)
	if err != nil {
		return err
	}
	m.onConversations(entries)
	return nil
}

// SelectConversation makes conv the active conversation. The previous
// message listener is closed before the new one opens, and the
// conversation is marked seen.
func (m *Manager) SelectConversation(ctx context.Context, conv Conversation) error {
	const op = "session.SelectConversation"
	m.mu.Lock()
	if m.me == nil {
		m.mu.Unlock()
		return apperrors.NotAuthenticated(op)
	}
	me := *m.me
	other := conv.OtherUserID(me.UserID)
	if other == "" || other == me.UserID {
		m.mu.Unlock()
		return apperrors.InvalidArgument(op, "invalid conversation")
	}
	if conv.CounterpartyID == "" {
		conv.CounterpartyID = other
	}
	if conv.OwnerID == "" {
		conv.OwnerID = me.UserID
	}

	m.closeMessagesLocked()
	gen := m.listenerGen
	m.current = &conv
	m.loading = true
	m.unsubMessages = m.deps.Messages.Listen(m.ctx, me, other,
		func(msgs []models.Message) { m.onMessages(gen, me, other, msgs) },
		m.reportError,
	)
	m.mu.Unlock()
	m.notify()

	if err := m.deps.Messages.MarkSeen(ctx, me, other); err != nil {
		m.reportError(err)
	}
	return nil
}

// SelectConversationWith selects the known conversation with otherUserID
func (m *Manager) SelectConversationWith(ctx context.Context, otherUserID string) error {
	const op = "session.SelectConversation"
	m.mu.Lock()
	if m.me == nil {
		m.mu.Unlock()
		return apperrors.NotAuthenticated(op)
	}
	conv, ok := m.findConversationLocked(otherUserID)
	m.mu.Unlock()
	if !ok {
		return apperrors.NotFound(op, "conversation not found")
	}
	return m.SelectConversation(ctx, conv)
}

func (m *Manager) onMessages(gen uint64, me identity.Identity, other string, msgs []models.Message) {
	m.mu.Lock()
	if gen != m.listenerGen {
		m.mu.Unlock()
		return
	}
	m.messages = msgs
	m.loading = false
	m.mu.Unlock()
	m.notify()

	for _, msg := range msgs {
		if msg.ReceiverID == me.UserID && !msg.Delivered {
			// materialized on the receiving side
			if _, err := m.deps.Messages.MarkDelivered(m.ctx, me, other); err != nil && m.ctx.Err() == nil {
				m.reportError(err)
			}
			return
		}
	}
}

func (m *Manager) trackInFlight(id string, on bool) {
	m.mu.Lock()
	if on {
		m.inFlight[id] = struct{}{}
	} else {
		delete(m.inFlight, id)
	}
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) sendOptions(ctx context.Context, me identity.Identity, conv Conversation, id string) chat.SendOptions {
	senderName := me.DisplayName
	if senderName == "" {
		senderName = m.UserName(ctx, me.UserID)
	}
	receiverName := conv.UserName
	if receiverName == "" {
		receiverName = m.UserName(ctx, conv.OtherUserID(me.UserID))
	}
	return chat.SendOptions{MessageID: id, SenderName: senderName, ReceiverName: receiverName}
}

// SendTextMessage sends text to the active conversation
func (m *Manager) SendTextMessage(ctx context.Context, text string) (models.Message, error) {
	const op = "session.SendTextMessage"
	me, conv, err := m.active(op)
	if err != nil {
		return models.Message{}, err
	}
	if strings.TrimSpace(text) == "" {
		return models.Message{}, apperrors.InvalidArgument(op, "message text is empty")
	}

	id := m.deps.Messages.NewID()
	m.trackInFlight(id, true)
	defer m.trackInFlight(id, false)

	return m.deps.Messages.SendText(ctx, me, conv.OtherUserID(me.UserID), text, m.sendOptions(ctx, me, conv, id))
}

// SendFileMessage uploads f and sends it to the active conversation,
// reporting progress like SendFile.
func (m *Manager) SendFileMessage(ctx context.Context, f upload.File, typ models.MessageType, caption string, onProgress func(int)) (models.Message, error) {
	me, conv, err := m.active("session.SendFileMessage")
	if err != nil {
		if onProgress != nil {
			onProgress(ProgressFailed)
		}
		return models.Message{}, err
	}

	id := m.deps.Messages.NewID()
	m.trackInFlight(id, true)
	defer m.trackInFlight(id, false)

	return SendFile(ctx, m.deps.Messages, m.deps.Uploader, me, conv.OtherUserID(me.UserID), f, typ, caption, m.sendOptions(ctx, me, conv, id), onProgress)
}

// MarkMessagesAsSeen marks the active conversation seen. It is a no-op
// without an identity or an active conversation.
func (m *Manager) MarkMessagesAsSeen(ctx context.Context) error {
	me, conv, err := m.active("session.MarkMessagesAsSeen")
	if err != nil {
		return nil
	}
	return m.deps.Messages.MarkSeen(ctx, me, conv.OtherUserID(me.UserID))
}

// DeleteMessageForMe removes my copy of a message in the active
// conversation and drops it from the visible list.
func (m *Manager) DeleteMessageForMe(ctx context.Context, messageID string) error {
	me, conv, err := m.active("session.DeleteMessageForMe")
	if err != nil {
		return err
	}
	if err := m.deps.Messages.DeleteForMe(ctx, me, conv.OtherUserID(me.UserID), messageID); err != nil {
		return err
	}
	m.removeLocalMessage(messageID)
	return nil
}

// DeleteMessageForEveryone removes both copies of a message I sent in the
// active conversation and drops it from the visible list.
func (m *Manager) DeleteMessageForEveryone(ctx context.Context, messageID string) error {
	me, conv, err := m.active("session.DeleteMessageForEveryone")
	if err != nil {
		return err
	}
	if err := m.deps.Messages.DeleteForEveryone(ctx, me, conv.OtherUserID(me.UserID), messageID); err != nil {
		return err
	}
	m.removeLocalMessage(messageID)
	return nil
}

func (m *Manager) removeLocalMessage(id string) {
	m.mu.Lock()
	kept := m.messages[:0:0]
	for _, msg := range m.messages {
		if msg.ID != id {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	m.mu.Unlock()
	m.notify()
}

// ClearCurrentConversation closes the message listener and forgets the
// active conversation. The inbox listener stays live.
func (m *Manager) ClearCurrentConversation() {
	m.mu.Lock()
	m.closeMessagesLocked()
	m.mu.Unlock()
	m.notify()
}

// UserName resolves a display name through the directory, caching it for
// the lifetime of the session. Unknown users get a fallback name.
func (m *Manager) UserName(ctx context.Context, userID string) string {
	m.mu.Lock()
	name, ok := m.names[userID]
	m.mu.Unlock()
	if ok {
		return name
	}

	name, err := m.deps.Directory.UserName(ctx, userID)
	if err != nil || name == "" {
		name = directory.FallbackName(userID)
	}
	m.mu.Lock()
	m.names[userID] = name
	m.mu.Unlock()
	return name
}

// ProfilePic resolves an avatar URL, cached like UserName. It returns an
// empty string when the user has none.
func (m *Manager) ProfilePic(ctx context.Context, userID string) string {
	m.mu.Lock()
	pic, ok := m.pics[userID]
	m.mu.Unlock()
	if ok {
		return pic
	}

	pic, err := m.deps.Directory.ProfilePic(ctx, userID)
	if err != nil {
		pic = ""
	}
	m.mu.Lock()
	m.pics[userID] = pic
	m.mu.Unlock()
	return pic
}

// Close tears everything down. The manager is unusable afterwards.
func (m *Manager) Close() {
	m.SetIdentity(nil)
	m.stop()
}
