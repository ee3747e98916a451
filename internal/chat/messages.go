package chat

import (
	"context"
	"errors"
	"strings"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/events"
	"expertvakil/server/internal/identity"
	"expertvakil/server/internal/metrics"
	"expertvakil/server/internal/models"
	"expertvakil/server/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

// MessageStore persists one-to-one messages as two mirrored copies, one
// under each participant, and keeps both inbox entries in step.
type MessageStore struct {
	*Core
}

// NewMessageStore creates a message store on top of core
func NewMessageStore(core *Core) *MessageStore {
	return &MessageStore{Core: core}
}

// SendOptions carries the optional parts of a send. MessageID lets the
// caller pick the id up front; the display names are cached into the inbox
// entries.
type SendOptions struct {
	MessageID    string
	SenderName   string
	ReceiverName string
}

func (o SendOptions) id(gen func() string) string {
	if o.MessageID != "" {
		return o.MessageID
	}
	return gen()
}

// Attachment describes an uploaded file to be sent as a message
type Attachment struct {
	URL          string
	FileName     string
	Type         models.MessageType
	Size         int64
	MimeType     string
	Caption      string
	ThumbnailURL string
}

func checkPair(op string, me identity.Identity, otherUserID string) error {
	if !me.Valid() {
		return apperrors.NotAuthenticated(op)
	}
	if otherUserID == "" {
		return apperrors.InvalidArgument(op, "counterparty id is required")
	}
	if otherUserID == me.UserID {
		return apperrors.InvalidArgument(op, "cannot chat with yourself")
	}
	return nil
}

// SendText sends a text message from me to receiverID. The returned message
// is the committed value; callers do not need to wait for the realtime echo.
func (s *MessageStore) SendText(ctx context.Context, me identity.Identity, receiverID, text string, opts SendOptions) (models.Message, error) {
	const op = "messages.SendText"
	if err := checkPair(op, me, receiverID); err != nil {
		return models.Message{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, apperrors.InvalidArgument(op, "message text is empty")
	}

	msg := models.Message{
		ID:         opts.id(s.newID),
		Type:       models.MessageTypeText,
		SenderID:   me.UserID,
		ReceiverID: receiverID,
		Timestamp:  s.now(),
		Message:    text,
	}
	if err := s.write(ctx, op, me, msg, models.PreviewText(msg, ""), opts); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// SendAttachment sends an already uploaded file. The message body is the
// caption, or the file name when there is none. Pass the id used in the
// upload path as opts.MessageID.
func (s *MessageStore) SendAttachment(ctx context.Context, me identity.Identity, receiverID string, a Attachment, opts SendOptions) (models.Message, error) {
	const op = "messages.SendAttachment"
	if err := checkPair(op, me, receiverID); err != nil {
		return models.Message{}, err
	}
	if !a.Type.IsAttachment() {
		return models.Message{}, apperrors.InvalidArgument(op, "attachment type must be image, video, document or audio")
	}
	if a.URL == "" {
		return models.Message{}, apperrors.InvalidArgument(op, "attachment url is empty")
	}

	caption := strings.TrimSpace(a.Caption)
	body := caption
	if body == "" {
		body = a.FileName
	}
	msg := models.Message{
		ID:         opts.id(s.newID),
		Type:       a.Type,
		SenderID:   me.UserID,
		ReceiverID: receiverID,
		Timestamp:  s.now(),
		Message:    body,
		MediaURL:   a.URL,
		FileName:   a.FileName,
		FileSize:   a.Size,
		MimeType:   a.MimeType,
	}
	if a.Type == models.MessageTypeImage {
		msg.ThumbnailURL = a.ThumbnailURL
	}
	if err := s.write(ctx, op, me, msg, models.PreviewText(msg, caption), opts); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// write commits both message copies and both inbox entries in one batch
func (s *MessageStore) write(ctx context.Context, op string, me identity.Identity, msg models.Message, preview string, opts SendOptions) (err error) {
	ctx, span := s.tracer.Start(ctx, op)
	span.SetAttributes(
		attribute.String("chat.message_id", msg.ID),
		attribute.String("chat.message_type", string(msg.Type)),
	)
	defer func() { endSpan(span, err) }()

	senderName := opts.SenderName
	if senderName == "" {
		senderName = me.DisplayName
	}

	b := store.NewBatch().
		SetMessage(msg.SenderID, msg.ReceiverID, msg).
		SetMessage(msg.ReceiverID, msg.SenderID, msg).
		UpsertInbox(models.InboxEntry{
			OwnerID:        msg.SenderID,
			CounterpartyID: msg.ReceiverID,
			SenderID:       msg.SenderID,
			ReceiverID:     msg.ReceiverID,
			LastMessage:    preview,
			Seen:           true,
			Timestamp:      msg.Timestamp,
			UserName:       opts.ReceiverName,
		}).
		UpsertInbox(models.InboxEntry{
			OwnerID:        msg.ReceiverID,
			CounterpartyID: msg.SenderID,
			SenderID:       msg.SenderID,
			ReceiverID:     msg.ReceiverID,
			LastMessage:    preview,
			Seen:           false,
			Timestamp:      msg.Timestamp,
			UserName:       senderName,
		})

	if err := s.commit(ctx, op, b); err != nil {
		s.log.Errorw("message write failed", "message_id", msg.ID, "sender", msg.SenderID, "receiver", msg.ReceiverID, "error", err)
		return err
	}

	metrics.MessagesSent.WithLabelValues(string(msg.Type)).Inc()
	s.emit(ctx, events.ChatEvent{
		Type:        events.EventMessageSent,
		MessageID:   msg.ID,
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		MessageType: string(msg.Type),
		Preview:     preview,
		Timestamp:   msg.Timestamp,
	})
	return nil
}

// Messages returns my copy of the conversation with otherUserID, ordered
// by timestamp then id. Without an identity it returns an empty list.
func (s *MessageStore) Messages(ctx context.Context, me identity.Identity, otherUserID string) ([]models.Message, error) {
	if !me.Valid() {
		return []models.Message{}, nil
	}
	msgs, err := s.store.QueryMessages(ctx, me.UserID, otherUserID, store.MessageFilter{})
	if err != nil {
		return nil, apperrors.ReadFailed("messages.Messages", err)
	}
	return msgs, nil
}

// Listen streams full ordered snapshots of my copy of the conversation with
// otherUserID: once immediately, then after every change. Failures go to
// onError and never end the subscription. Without an identity the returned
// unsubscribe is a no-op and no callback ever fires.
func (s *MessageStore) Listen(ctx context.Context, me identity.Identity, otherUserID string, onUpdate func([]models.Message), onError func(error)) (unsubscribe func()) {
	if !me.Valid() || otherUserID == "" {
		return func() {}
	}
	fetch := func(ctx context.Context) ([]models.Message, error) {
		return s.Messages(ctx, me, otherUserID)
	}
	return watch(ctx, s.Core, store.MessagesTopic(me.UserID, otherUserID), "messages", fetch, onUpdate, onError)
}

// MarkSeen flips seen and delivered on every message I received from
// otherUserID that I have not seen yet, on both copies, and marks my inbox
// entry seen. Nothing is written when there is nothing unseen.
func (s *MessageStore) MarkSeen(ctx context.Context, me identity.Identity, otherUserID string) (err error) {
	const op = "messages.MarkSeen"
	if err := checkPair(op, me, otherUserID); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, op)
	defer func() { endSpan(span, err) }()

	unseen, err := s.store.QueryMessages(ctx, me.UserID, otherUserID, store.MessageFilter{
		ReceiverID: me.UserID,
		Unseen:     true,
	})
	if err != nil {
		return apperrors.ReadFailed(op, err)
	}
	if len(unseen) == 0 {
		return nil
	}

	flags := store.Flags{Seen: true, Delivered: true}
	b := store.NewBatch()
	for _, m := range unseen {
		b.MarkMessage(me.UserID, otherUserID, m.ID, flags)
		b.MarkMessage(otherUserID, me.UserID, m.ID, flags)
	}
	b.MarkInboxSeen(me.UserID, otherUserID)

	if err := s.commit(ctx, op, b); err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("chat.seen_count", len(unseen)))
	s.emit(ctx, events.ChatEvent{
		Type:       events.EventMessagesSeen,
		SenderID:   otherUserID,
		ReceiverID: me.UserID,
		Timestamp:  s.now(),
	})
	return nil
}

// MarkDelivered flips delivered on both copies of every message I received
// from otherUserID that has not been marked delivered. It returns how many
// messages changed.
func (s *MessageStore) MarkDelivered(ctx context.Context, me identity.Identity, otherUserID string) (int, error) {
	const op = "messages.MarkDelivered"
	if err := checkPair(op, me, otherUserID); err != nil {
		return 0, err
	}
	pending, err := s.store.QueryMessages(ctx, me.UserID, otherUserID, store.MessageFilter{
		ReceiverID:  me.UserID,
		Undelivered: true,
	})
	if err != nil {
		return 0, apperrors.ReadFailed(op, err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	b := store.NewBatch()
	for _, m := range pending {
		b.MarkMessage(me.UserID, otherUserID, m.ID, store.Flags{Delivered: true})
		b.MarkMessage(otherUserID, me.UserID, m.ID, store.Flags{Delivered: true})
	}
	if err := s.commit(ctx, op, b); err != nil {
		return 0, err
	}
	return len(pending), nil
}

// DeleteForMe removes only my copy of the message. The counterparty's copy
// is untouched.
func (s *MessageStore) DeleteForMe(ctx context.Context, me identity.Identity, otherUserID, messageID string) (err error) {
	const op = "messages.DeleteForMe"
	if err := checkPair(op, me, otherUserID); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, op)
	defer func() { endSpan(span, err) }()

	b := store.NewBatch().DeleteMessage(me.UserID, otherUserID, messageID)
	if err := s.commit(ctx, op, b); err != nil {
		return err
	}
	s.emit(ctx, events.ChatEvent{
		Type:       events.EventMessageDeleted,
		MessageID:  messageID,
		SenderID:   me.UserID,
		ReceiverID: otherUserID,
		Scope:      "me",
		Timestamp:  s.now(),
	})
	return nil
}

// DeleteForEveryone removes both copies of a message I sent. It fails with
// a permission error, writing nothing, when I am not the sender.
func (s *MessageStore) DeleteForEveryone(ctx context.Context, me identity.Identity, otherUserID, messageID string) (err error) {
	const op = "messages.DeleteForEveryone"
	if err := checkPair(op, me, otherUserID); err != nil {
		return err
	}
	ctx, span := s.tracer.Start(ctx, op)
	defer func() { endSpan(span, err) }()

	msg, err := s.store.GetMessage(ctx, me.UserID, otherUserID, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound(op, "message not found")
	}
	if err != nil {
		return apperrors.ReadFailed(op, err)
	}
	if msg.SenderID != me.UserID {
		return apperrors.PermissionDenied(op, "only the sender can delete a message for everyone")
	}

	b := store.NewBatch().
		DeleteMessage(me.UserID, otherUserID, messageID).
		DeleteMessage(otherUserID, me.UserID, messageID)
	if err := s.commit(ctx, op, b); err != nil {
		return err
	}
	s.emit(ctx, events.ChatEvent{
		Type:       events.EventMessageDeleted,
		MessageID:  messageID,
		SenderID:   me.UserID,
		ReceiverID: otherUserID,
		Scope:      "everyone",
		Timestamp:  s.now(),
	})
	return nil
}
