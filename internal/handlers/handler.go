package handlers

import (
	"errors"
	"fmt"
	"time"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/chat"
	"expertvakil/server/internal/directory"
	"expertvakil/server/internal/session"
	"expertvakil/server/internal/upload"
	ws "expertvakil/server/internal/websocket"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Handler serves the chat HTTP and websocket API
type Handler struct {
	messages  *chat.MessageStore
	inbox     *chat.InboxStore
	uploader  *upload.Uploader
	directory directory.Directory
	hub       *ws.Hub
	uploadDir string
	memBlobs  *upload.MemoryStore
	session   session.Deps
	validate  *validator.Validate
	log       *zap.SugaredLogger
}

// Deps are what a Handler serves from. UploadDir or MemoryBlobs is set
// when blobs live in this process and must be served by /uploads.
type Deps struct {
	Messages     *chat.MessageStore
	Inbox        *chat.InboxStore
	Uploader     *upload.Uploader
	Directory    directory.Directory
	Hub          *ws.Hub
	UploadDir    string
	MemoryBlobs  *upload.MemoryStore
	RefreshDelay time.Duration
	Log          *zap.SugaredLogger
}

// New creates a Handler
func New(d Deps) *Handler {
	return &Handler{
		messages:  d.Messages,
		inbox:     d.Inbox,
		uploader:  d.Uploader,
		directory: d.Directory,
		hub:       d.Hub,
		uploadDir: d.UploadDir,
		memBlobs:  d.MemoryBlobs,
		session: session.Deps{
			Messages:     d.Messages,
			Inbox:        d.Inbox,
			Uploader:     d.Uploader,
			Directory:    d.Directory,
			RefreshDelay: d.RefreshDelay,
		},
		validate: validator.New(),
		log:      d.Log,
	}
}

// statusOf maps an error kind to an HTTP status
func statusOf(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindNotAuthenticated:
		return fiber.StatusUnauthorized
	case apperrors.KindPermissionDenied:
		return fiber.StatusForbidden
	case apperrors.KindNotFound:
		return fiber.StatusNotFound
	case apperrors.KindInvalidArgument:
		return fiber.StatusBadRequest
	case apperrors.KindUploadFailed:
		return fiber.StatusBadGateway
	case apperrors.KindReadFailed:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func (h *Handler) fail(c *fiber.Ctx, err error) error {
	status := statusOf(err)
	msg := err.Error()
	if status >= fiber.StatusInternalServerError {
		h.log.Errorw("request failed", "path", c.Path(), "error", err)
		msg = "Internal server error"
	}
	var ae *apperrors.Error
	if errors.As(err, &ae) && ae.Message != "" && status < fiber.StatusInternalServerError {
		msg = ae.Message
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
		"code":    apperrors.KindOf(err),
	})
}

func (h *Handler) bind(c *fiber.Ctx, v interface{}) error {
	const op = "handlers.bind"
	if err := c.BodyParser(v); err != nil {
		return apperrors.InvalidArgument(op, "Invalid request body")
	}
	if err := h.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperrors.InvalidArgument(op, fmt.Sprintf("%s failed on %s", verrs[0].Field(), verrs[0].Tag()))
		}
		return apperrors.InvalidArgument(op, err.Error())
	}
	return nil
}
