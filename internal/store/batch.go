package store

import "expertvakil/server/internal/models"

type opKind int

const (
	opSetMessage opKind = iota
	opMarkMessage
	opDeleteMessage
	opUpsertInbox
	opCreateInbox
	opMarkInboxSeen
)

type op struct {
	kind         opKind
	owner        string
	counterparty string
	id           string
	msg          models.Message
	flags        Flags
	entry        models.InboxEntry
}

// Flags are the only mutable message fields. A false value leaves the
// stored flag untouched, so flags never go back from true to false.
type Flags struct {
	Seen      bool
	Delivered bool
}

// Batch is an ordered set of writes applied atomically by Store.Commit
type Batch struct {
	ops []op
}

// NewBatch creates an empty batch
func NewBatch() *Batch {
	return &Batch{}
}

// SetMessage writes the owner's copy of m, replacing any previous copy
func (b *Batch) SetMessage(owner, counterparty string, m models.Message) *Batch {
	b.ops = append(b.ops, op{kind: opSetMessage, owner: owner, counterparty: counterparty, id: m.ID, msg: m})
	return b
}

// MarkMessage raises flags on the owner's copy. A missing copy is skipped.
func (b *Batch) MarkMessage(owner, counterparty, id string, f Flags) *Batch {
	b.ops = append(b.ops, op{kind: opMarkMessage, owner: owner, counterparty: counterparty, id: id, flags: f})
	return b
}

// DeleteMessage removes the owner's copy. Deleting a missing copy is a no-op.
func (b *Batch) DeleteMessage(owner, counterparty, id string) *Batch {
	b.ops = append(b.ops, op{kind: opDeleteMessage, owner: owner, counterparty: counterparty, id: id})
	return b
}

// UpsertInbox merges e into the owner's entry. Archive is never changed and
// an empty UserName keeps the cached one.
func (b *Batch) UpsertInbox(e models.InboxEntry) *Batch {
	b.ops = append(b.ops, op{kind: opUpsertInbox, owner: e.OwnerID, counterparty: e.CounterpartyID, entry: e})
	return b
}

// CreateInbox writes e only if the owner has no entry for the counterparty yet
func (b *Batch) CreateInbox(e models.InboxEntry) *Batch {
	b.ops = append(b.ops, op{kind: opCreateInbox, owner: e.OwnerID, counterparty: e.CounterpartyID, entry: e})
	return b
}

// MarkInboxSeen sets seen on an existing entry
func (b *Batch) MarkInboxSeen(owner, counterparty string) *Batch {
	b.ops = append(b.ops, op{kind: opMarkInboxSeen, owner: owner, counterparty: counterparty})
	return b
}

// Len returns the number of queued writes
func (b *Batch) Len() int {
	return len(b.ops)
}

// Topics lists the change feed topics touched by the batch, without duplicates
func (b *Batch) Topics() []string {
	seen := make(map[string]bool)
	var topics []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			topics = append(topics, t)
		}
	}
	for _, o := range b.ops {
		switch o.kind {
		case opSetMessage, opMarkMessage, opDeleteMessage:
			add(MessagesTopic(o.owner, o.counterparty))
		default:
			add(InboxTopic(o.owner))
		}
	}
	return topics
}
