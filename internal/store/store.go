package store

import (
	"context"
	"errors"

	"expertvakil/server/internal/models"
)

// ErrNotFound is returned by reads of a missing document
var ErrNotFound = errors.New("store: document not found")

// MessageFilter narrows QueryMessages. Zero values match everything.
type MessageFilter struct {
	ReceiverID  string
	Unseen      bool
	Undelivered bool
}

func (f MessageFilter) match(m models.Message) bool {
	if f.ReceiverID != "" && m.ReceiverID != f.ReceiverID {
		return false
	}
	if f.Unseen && m.Seen {
		return false
	}
	if f.Undelivered && m.Delivered {
		return false
	}
	return true
}

// Store is the document store behind the chat core. Writes only happen
// through Commit, which applies a whole Batch or nothing.
type Store interface {
	Commit(ctx context.Context, b *Batch) error

	GetMessage(ctx context.Context, owner, counterparty, id string) (models.Message, error)
	// QueryMessages returns the owner's copy of the conversation ordered
	// by timestamp then id.
	QueryMessages(ctx context.Context, owner, counterparty string, f MessageFilter) ([]models.Message, error)

	GetInbox(ctx context.Context, owner, counterparty string) (models.InboxEntry, error)
	// ListInbox returns the owner's entries, most recent first
	ListInbox(ctx context.Context, owner string) ([]models.InboxEntry, error)
}

// MessagesTopic is the change feed topic of the owner's copy of a conversation
func MessagesTopic(owner, counterparty string) string {
	return "chat/" + owner + "/" + counterparty
}

// InboxTopic is the change feed topic of a user's inbox
func InboxTopic(owner string) string {
	return "chat/" + owner + "/inbox"
}
