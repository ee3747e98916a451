package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/metrics"
	"expertvakil/server/internal/models"
	"expertvakil/server/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMimeType is used when the client does not declare one
const DefaultMimeType = "application/octet-stream"

// Uploader moves attachments into blob storage before the message that
// references them is written. It trusts its input: size and type checks
// belong to the caller.
type Uploader struct {
	blobs     BlobStore
	log       *zap.SugaredLogger
	tracer    trace.Tracer
	thumbnail func([]byte) ([]byte, error)
}

// NewUploader creates an uploader writing to blobs
func NewUploader(blobs BlobStore, log *zap.SugaredLogger) *Uploader {
	return &Uploader{
		blobs:     blobs,
		log:       log,
		tracer:    telemetry.Tracer("expertvakil/upload"),
		thumbnail: Thumbnail,
	}
}

func mimeTypeOf(f File) string {
	if f.MimeType == "" {
		return DefaultMimeType
	}
	return f.MimeType
}

// Upload stores f at chat_uploads/{sender}/{receiver}/{messageId}/{name}
func (u *Uploader) Upload(ctx context.Context, f File, key models.ConversationKey, messageID string) (res models.UploadResult, err error) {
	ctx, span := u.tracer.Start(ctx, "upload.Upload")
	defer func() { finish(span, err) }()

	rc, err := f.Open()
	if err != nil {
		return models.UploadResult{}, apperrors.UploadFailed("upload.Upload", err)
	}
	defer rc.Close()

	return u.put(ctx, f, rc, key, messageID)
}

func (u *Uploader) put(ctx context.Context, f File, body io.Reader, key models.ConversationKey, messageID string) (models.UploadResult, error) {
	mimeType := mimeTypeOf(f)
	objectKey := key.ObjectKey(messageID, f.Name)

	url, err := u.blobs.Put(ctx, objectKey, mimeType, body, f.Size)
	if err != nil {
		metrics.Uploads.WithLabelValues("failed").Inc()
		u.log.Errorw("attachment upload failed", "key", objectKey, "error", err)
		return models.UploadResult{}, apperrors.UploadFailed("upload.Upload", err)
	}
	metrics.Uploads.WithLabelValues("ok").Inc()

	return models.UploadResult{
		URL:       url,
		FileName:  f.Name,
		MimeType:  mimeType,
		Size:      f.Size,
		MessageID: messageID,
	}, nil
}

// UploadWithThumbnail uploads f and, for images, a JPEG thumbnail stored as
// thumb_{name} next to it. A thumbnail failure is logged and the result is
// returned without ThumbnailURL.
func (u *Uploader) UploadWithThumbnail(ctx context.Context, f File, key models.ConversationKey, messageID string) (res models.UploadResult, err error) {
	if !strings.HasPrefix(mimeTypeOf(f), "image/") {
		return u.Upload(ctx, f, key, messageID)
	}

	ctx, span := u.tracer.Start(ctx, "upload.UploadWithThumbnail")
	defer func() { finish(span, err) }()

	rc, err := f.Open()
	if err != nil {
		return models.UploadResult{}, apperrors.UploadFailed("upload.UploadWithThumbnail", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return models.UploadResult{}, apperrors.UploadFailed("upload.UploadWithThumbnail", err)
	}
	if f.Size == 0 {
		f.Size = int64(len(data))
	}

	res, err = u.put(ctx, f, bytes.NewReader(data), key, messageID)
	if err != nil {
		return models.UploadResult{}, err
	}

	thumbURL, terr := u.storeThumbnail(ctx, data, key, messageID, f.Name)
	if terr != nil {
		metrics.ThumbnailFailures.Inc()
		span.SetAttributes(attribute.Bool("upload.thumbnail_failed", true))
		u.log.Warnw("thumbnail skipped", "message_id", messageID, "file", f.Name, "error", terr)
		return res, nil
	}
	res.ThumbnailURL = thumbURL
	return res, nil
}

func (u *Uploader) storeThumbnail(ctx context.Context, data []byte, key models.ConversationKey, messageID, name string) (url string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("thumbnail: %v", r)
		}
	}()
	thumb, err := u.thumbnail(data)
	if err != nil {
		return "", err
	}
	return u.blobs.Put(ctx, key.ThumbnailKey(messageID, name), "image/jpeg", bytes.NewReader(thumb), int64(len(thumb)))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
