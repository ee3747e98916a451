package websocket

import (
	"encoding/json"
	"time"
)

// EventType represents different WebSocket event types
type EventType string

const (
	// Commands sent by the client
	EventStartConversation    EventType = "start_conversation"
	EventSelectConversation   EventType = "select_conversation"
	EventSendText             EventType = "send_text"
	EventMarkSeen             EventType = "mark_seen"
	EventDeleteMessage        EventType = "delete_message"
	EventClearConversation    EventType = "clear_conversation"
	EventRefreshConversations EventType = "refresh_conversations"

	// Events pushed by the server
	EventState          EventType = "state"
	EventAck            EventType = "ack"
	EventUploadProgress EventType = "upload_progress"
	EventError          EventType = "error"
)

// Delete scopes accepted by delete_message
const (
	ScopeMe       = "me"
	ScopeEveryone = "everyone"
)

// WSMessage represents a WebSocket message structure
type WSMessage struct {
	Type      EventType   `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// IncomingMessage represents commands received from clients
type IncomingMessage struct {
	Type      EventType       `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type StartConversationPayload struct {
	OtherUserID   string `json:"otherUserId" validate:"required"`
	OtherUserName string `json:"otherUserName"`
}

type SelectConversationPayload struct {
	OtherUserID string `json:"otherUserId" validate:"required"`
}

type SendTextPayload struct {
	Text string `json:"text" validate:"required"`
}

type DeleteMessagePayload struct {
	MessageID string `json:"messageId" validate:"required"`
	Scope     string `json:"scope" validate:"required,oneof=me everyone"`
}

// UploadProgressPayload reports the checkpoints of an attachment send
type UploadProgressPayload struct {
	MessageID   string `json:"messageId"`
	OtherUserID string `json:"otherUserId"`
	FileName    string `json:"fileName"`
	Progress    int    `json:"progress"`
}

// ErrorPayload represents error event payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
