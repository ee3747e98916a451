package models

import "path"

// UploadResult describes a stored attachment. It is folded into the
// Message it accompanies and never persisted on its own.
type UploadResult struct {
	URL          string `json:"url"`
	FileName     string `json:"fileName"`
	MimeType     string `json:"mimeType"`
	Size         int64  `json:"size"`
	MessageID    string `json:"messageId"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// ConversationKey identifies the directional pair an attachment belongs to
type ConversationKey struct {
	SenderID   string
	ReceiverID string
}

const (
	// UploadsRoot is the top level prefix of every chat attachment
	UploadsRoot = "chat_uploads"
	// ThumbnailPrefix marks the JPEG thumbnail stored next to an image
	ThumbnailPrefix = "thumb_"
)

// ObjectKey returns chat_uploads/{sender}/{receiver}/{messageId}/{name}
func (k ConversationKey) ObjectKey(messageID, name string) string {
	return path.Join(UploadsRoot, k.SenderID, k.ReceiverID, messageID, path.Base(name))
}

// ThumbnailKey returns the key of the thumbnail stored next to name
func (k ConversationKey) ThumbnailKey(messageID, name string) string {
	return k.ObjectKey(messageID, ThumbnailPrefix+path.Base(name))
}
