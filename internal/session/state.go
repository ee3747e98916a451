package session

import (
	"sort"

	"expertvakil/server/internal/models"
)

// Status is the lifecycle state of a session
type Status string

const (
	StatusUninitialized Status = "uninitialized" // no identity
	StatusIdle          Status = "idle"          // inbox listener only
	StatusActive        Status = "active"        // a conversation is selected
)

// Upload progress checkpoints reported by SendFileMessage
const (
	ProgressFailed   = -1
	ProgressStarted  = 0
	ProgressUploaded = 50
	ProgressDone     = 100
)

// Conversation is an inbox entry as shown to the session owner. A
// provisional conversation was synthesized locally and will be replaced by
// the stored entry once the inbox listener delivers it.
type Conversation struct {
	models.InboxEntry
	Provisional bool   `json:"provisional,omitempty"`
	ProfilePic  string `json:"profilePic,omitempty"` // counterparty avatar
}

// State is a read-only snapshot of a session
type State struct {
	Status        Status           `json:"status"`
	UserID        string           `json:"userId,omitempty"`
	Current       *Conversation    `json:"currentConversation,omitempty"`
	Messages      []models.Message `json:"messages"`
	Conversations []Conversation   `json:"conversations"`
	Loading       bool             `json:"loading"`
	InFlight      []string         `json:"inFlight"`
}

func wrapEntries(entries []models.InboxEntry) []Conversation {
	out := make([]Conversation, len(entries))
	for i, e := range entries {
		out[i] = Conversation{InboxEntry: e}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
