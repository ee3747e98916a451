package chat

import (
	"context"
	"errors"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/identity"
	"expertvakil/server/internal/models"
	"expertvakil/server/internal/store"
)

// InboxStore exposes a user's conversation list. Entries are updated by the
// message write path; the only direct write is CreatePlaceholder.
type InboxStore struct {
	*Core
}

// NewInboxStore creates an inbox store on top of core
func NewInboxStore(core *Core) *InboxStore {
	return &InboxStore{Core: core}
}

// CreatePlaceholder writes an empty entry on both sides when I start a
// conversation before any message exists. My entry is seen and carries
// otherUserName; the counterparty's is unseen and has no name until a
// message is exchanged. Existing entries are left as they are.
func (s *InboxStore) CreatePlaceholder(ctx context.Context, me identity.Identity, otherUserID, otherUserName string) (err error) {
	const op = "inbox.CreatePlaceholder"
	if err := checkPair(op, me, otherUserID); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, op)
	defer func() { endSpan(span, err) }()

	now := s.now()
	b := store.NewBatch().
		CreateInbox(models.InboxEntry{
			OwnerID:        me.UserID,
			CounterpartyID: otherUserID,
			SenderID:       me.UserID,
			ReceiverID:     otherUserID,
			Seen:           true,
			Timestamp:      now,
			UserName:       otherUserName,
		}).
		CreateInbox(models.InboxEntry{
			OwnerID:        otherUserID,
			CounterpartyID: me.UserID,
			SenderID:       me.UserID,
			ReceiverID:     otherUserID,
			Seen:           false,
			Timestamp:      now,
		})
	return s.commit(ctx, op, b)
}

// Entry returns my inbox entry for otherUserID
func (s *InboxStore) Entry(ctx context.Context, me identity.Identity, otherUserID string) (models.InboxEntry, error) {
	const op = "inbox.Entry"
	if !me.Valid() {
		return models.InboxEntry{}, apperrors.NotAuthenticated(op)
	}
	e, err := s.store.GetInbox(ctx, me.UserID, otherUserID)
	if errors.Is(err, store.ErrNotFound) {
		return models.InboxEntry{}, apperrors.NotFound(op, "conversation not found")
	}
	if err != nil {
		return models.InboxEntry{}, apperrors.ReadFailed(op, err)
	}
	return e, nil
}

// List returns my conversations, most recently active first. Without an
// identity it returns an empty list.
func (s *InboxStore) List(ctx context.Context, me identity.Identity) ([]models.InboxEntry, error) {
	if !me.Valid() {
		return []models.InboxEntry{}, nil
	}
	entries, err := s.store.ListInbox(ctx, me.UserID)
	if err != nil {
		return nil, apperrors.ReadFailed("inbox.List", err)
	}
	return entries, nil
}

// ListenList streams my full ordered conversation list after every change.
// Without an identity the returned unsubscribe is a no-op.
func (s *InboxStore) ListenList(ctx context.Context, me identity.Identity, onUpdate func([]models.InboxEntry), onError func(error)) (unsubscribe func()) {
	if !me.Valid() {
		return func() {}
	}
	fetch := func(ctx context.Context) ([]models.InboxEntry, error) {
		return s.List(ctx, me)
	}
	return watch(ctx, s.Core, store.InboxTopic(me.UserID), "inbox", fetch, onUpdate, onError)
}
