package store

import (
	"context"
	"sync"

	"expertvakil/server/internal/models"
)

type convKey struct {
	owner        string
	counterparty string
}

// Memory is an in-process Store. It backs development runs and tests.
type Memory struct {
	mu       sync.RWMutex
	messages map[convKey]map[string]models.Message
	inbox    map[string]map[string]models.InboxEntry
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		messages: make(map[convKey]map[string]models.Message),
		inbox:    make(map[string]map[string]models.InboxEntry),
	}
}

// Commit applies every write of b under a single lock
func (s *Memory) Commit(ctx context.Context, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range b.ops {
		switch o.kind {
		case opSetMessage:
			s.conversation(o.owner, o.counterparty, true)[o.id] = o.msg
		case opMarkMessage:
			conv := s.conversation(o.owner, o.counterparty, false)
			if m, ok := conv[o.id]; ok {
				m.Seen = m.Seen || o.flags.Seen
				m.Delivered = m.Delivered || o.flags.Delivered
				conv[o.id] = m
			}
		case opDeleteMessage:
			delete(s.conversation(o.owner, o.counterparty, false), o.id)
		case opUpsertInbox:
			box := s.box(o.owner)
			e := o.entry
			if prev, ok := box[o.counterparty]; ok {
				e.Archive = prev.Archive
				if e.UserName == "" {
					e.UserName = prev.UserName
				}
			}
			box[o.counterparty] = e
		case opCreateInbox:
			box := s.box(o.owner)
			if _, ok := box[o.counterparty]; !ok {
				box[o.counterparty] = o.entry
			}
		case opMarkInboxSeen:
			box := s.box(o.owner)
			if e, ok := box[o.counterparty]; ok {
				e.Seen = true
				box[o.counterparty] = e
			}
		}
	}
	return nil
}

func (s *Memory) conversation(owner, counterparty string, create bool) map[string]models.Message {
	k := convKey{owner, counterparty}
	conv, ok := s.messages[k]
	if !ok && create {
		conv = make(map[string]models.Message)
		s.messages[k] = conv
	}
	return conv
}

func (s *Memory) box(owner string) map[string]models.InboxEntry {
	box, ok := s.inbox[owner]
	if !ok {
		box = make(map[string]models.InboxEntry)
		s.inbox[owner] = box
	}
	return box
}

// GetMessage returns one copy of a message or ErrNotFound
func (s *Memory) GetMessage(ctx context.Context, owner, counterparty, id string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[convKey{owner, counterparty}][id]
	if !ok {
		return models.Message{}, ErrNotFound
	}
	return m, nil
}

// QueryMessages returns the matching messages of one conversation copy,
// ordered by timestamp then id
func (s *Memory) QueryMessages(ctx context.Context, owner, counterparty string, f MessageFilter) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	conv := s.messages[convKey{owner, counterparty}]
	out := make([]models.Message, 0, len(conv))
	for _, m := range conv {
		if f.match(m) {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()

	models.SortMessages(out)
	return out, nil
}

// GetInbox returns owner's entry for counterparty or ErrNotFound
func (s *Memory) GetInbox(ctx context.Context, owner, counterparty string) (models.InboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.inbox[owner][counterparty]
	if !ok {
		return models.InboxEntry{}, ErrNotFound
	}
	return e, nil
}

// ListInbox returns owner's entries, most recent first
func (s *Memory) ListInbox(ctx context.Context, owner string) ([]models.InboxEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	box := s.inbox[owner]
	out := make([]models.InboxEntry, 0, len(box))
	for _, e := range box {
		out = append(out, e)
	}
	s.mu.RUnlock()

	models.SortInbox(out)
	return out, nil
}
