package session

import (
	"context"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/chat"
	"expertvakil/server/internal/identity"
	"expertvakil/server/internal/models"
	"expertvakil/server/internal/upload"
)

// SendFile uploads f and then writes the message that references it.
// onProgress receives 0 when the upload starts, 50 when the file is
// stored, 100 once the message is written, or -1 on failure. Nothing is
// written when the upload fails. The upload path uses opts.MessageID, which
// is generated when empty.
func SendFile(
	ctx context.Context,
	messages *chat.MessageStore,
	uploader *upload.Uploader,
	me identity.Identity,
	otherUserID string,
	f upload.File,
	typ models.MessageType,
	caption string,
	opts chat.SendOptions,
	onProgress func(int),
) (models.Message, error) {
	const op = "session.SendFile"
	if onProgress == nil {
		onProgress = func(int) {}
	}
	switch {
	case !me.Valid():
		onProgress(ProgressFailed)
		return models.Message{}, apperrors.NotAuthenticated(op)
	case otherUserID == "" || otherUserID == me.UserID:
		onProgress(ProgressFailed)
		return models.Message{}, apperrors.InvalidArgument(op, "invalid counterparty")
	case !typ.IsAttachment():
		onProgress(ProgressFailed)
		return models.Message{}, apperrors.InvalidArgument(op, "attachment type must be image, video, document or audio")
	}
	if opts.MessageID == "" {
		opts.MessageID = messages.NewID()
	}

	onProgress(ProgressStarted)
	res, err := uploader.UploadWithThumbnail(ctx, f, models.ConversationKey{SenderID: me.UserID, ReceiverID: otherUserID}, opts.MessageID)
	if err != nil {
		onProgress(ProgressFailed)
		return models.Message{}, err
	}
	onProgress(ProgressUploaded)

	msg, err := messages.SendAttachment(ctx, me, otherUserID, chat.Attachment{
		URL:          res.URL,
		FileName:     res.FileName,
		Type:         typ,
		Size:         res.Size,
		MimeType:     res.MimeType,
		Caption:      caption,
		ThumbnailURL: res.ThumbnailURL,
	}, opts)
	if err != nil {
		onProgress(ProgressFailed)
		return models.Message{}, err
	}
	onProgress(ProgressDone)
	return msg, nil
}
