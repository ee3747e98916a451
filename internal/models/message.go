package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MessageType is the kind of content a message carries
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeDocument MessageType = "document"
	MessageTypeAudio    MessageType = "audio"
)

// ParseMessageType validates a message type coming from a client
func ParseMessageType(s string) (MessageType, error) {
	switch t := MessageType(strings.ToLower(strings.TrimSpace(s))); t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeDocument, MessageTypeAudio:
		return t, nil
	}
	return "", fmt.Errorf("invalid message type %q", s)
}

// IsAttachment reports whether the type carries a media file
func (t MessageType) IsAttachment() bool {
	return t != MessageTypeText && t != ""
}

// Message is one chat turn between exactly two users. The same value is
// stored twice, once under each participant.
type Message struct {
	ID           string      `json:"id"`
	Type         MessageType `json:"type"`
	SenderID     string      `json:"senderId"`
	ReceiverID   string      `json:"receiverId"`
	Timestamp    time.Time   `json:"timestamp"`
	Message      string      `json:"message"`
	MediaURL     string      `json:"mediaUrl,omitempty"`
	ThumbnailURL string      `json:"thumbnailUrl,omitempty"` // images only
	FileName     string      `json:"fileName,omitempty"`
	FileSize     int64       `json:"fileSize,omitempty"`
	MimeType     string      `json:"mimeType,omitempty"`
	Delivered    bool        `json:"delivered"`
	Seen         bool        `json:"seen"`
}

// Counterparty returns the other participant from the point of view of owner
func (m Message) Counterparty(owner string) string {
	if m.SenderID == owner {
		return m.ReceiverID
	}
	return m.SenderID
}

// PreviewText is the human readable inbox summary of a message. Attachments
// show their caption when one was supplied, otherwise a type label; the
// stored message body is not used since it falls back to the file name.
func PreviewText(m Message, caption string) string {
	if !m.Type.IsAttachment() {
		return m.Message
	}
	if caption != "" {
		return caption
	}
	switch m.Type {
	case MessageTypeImage:
		return "📷 Photo"
	case MessageTypeVideo:
		return "🎥 Video"
	case MessageTypeAudio:
		return "🎵 Audio"
	case MessageTypeDocument:
		if m.FileName == "" {
			return "📄 Document"
		}
		return "📄 " + m.FileName
	}
	return m.Message
}

// SortMessages orders messages by timestamp ascending, breaking ties by id
func SortMessages(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.ID < b.ID
	})
}
