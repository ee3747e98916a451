package models

import (
	"sort"
	"time"
)

// InboxEntry is the denormalized latest state of one conversation as seen
// by its owner. It is keyed by (OwnerID, CounterpartyID).
type InboxEntry struct {
	OwnerID        string `json:"ownerId"`
	CounterpartyID string `json:"otherUserId"`

	// SenderID and ReceiverID describe the most recent message, not fixed roles
	SenderID    string    `json:"senderId"`
	ReceiverID  string    `json:"receiverId"`
	LastMessage string    `json:"lastMessage"`
	Seen        bool      `json:"seen"`
	Timestamp   time.Time `json:"timestamp"`
	UserName    string    `json:"userName,omitempty"` // display name of the counterparty
	Archive     bool      `json:"archive"`
}

// OtherUserID resolves the counterparty, preferring the explicit key and
// falling back to the sender/receiver fields.
func (e InboxEntry) OtherUserID(owner string) string {
	if e.CounterpartyID != "" {
		return e.CounterpartyID
	}
	if e.SenderID == owner {
		return e.ReceiverID
	}
	return e.SenderID
}

// SortInbox orders entries most recently active first
func SortInbox(entries []InboxEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return a.CounterpartyID < b.CounterpartyID
	})
}
