package handlers

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/chat"
	"expertvakil/server/internal/middleware"
	"expertvakil/server/internal/models"
	"expertvakil/server/internal/session"
	"expertvakil/server/internal/upload"
	ws "expertvakil/server/internal/websocket"

	"github.com/gofiber/fiber/v2"
)

const (
	MaxVideoSize = 25 * 1024 * 1024 // 25MB
	MaxFileSize  = 10 * 1024 * 1024 // 10MB

	AllowedImageExts    = ".jpg,.jpeg,.png,.gif,.webp,.heic"
	AllowedVideoExts    = ".mp4,.webm,.mov,.3gp"
	AllowedAudioExts    = ".mp3,.wav,.ogg,.m4a,.aac"
	AllowedDocumentExts = ".pdf,.doc,.docx,.xls,.xlsx,.ppt,.pptx,.txt,.rtf,.zip"
)

// SendAttachment uploads a file and sends it as a message. Progress
// checkpoints are pushed to the caller's open websocket connections.
func (h *Handler) SendAttachment(c *fiber.Ctx) error {
	const op = "handlers.SendAttachment"
	me := middleware.GetIdentity(c)
	otherID := c.Params("otherId")

	file, err := c.FormFile("file")
	if err != nil {
		return h.fail(c, apperrors.InvalidArgument(op, "No file uploaded"))
	}

	typ, err := models.ParseMessageType(c.FormValue("type"))
	if err != nil || !typ.IsAttachment() {
		return h.fail(c, apperrors.InvalidArgument(op, "Invalid file type. Must be: image, video, document or audio"))
	}
	if err := checkAttachment(file.Filename, file.Size, typ); err != nil {
		return h.fail(c, err)
	}

	f := upload.MultipartFile(file)
	messageID := h.messages.NewID()
	progress := func(p int) {
		h.hub.BroadcastToUser(me.UserID, ws.WSMessage{
			Type: ws.EventUploadProgress,
			Payload: ws.UploadProgressPayload{
				MessageID:   messageID,
				OtherUserID: otherID,
				FileName:    f.Name,
				Progress:    p,
			},
		})
	}

	msg, err := session.SendFile(c.UserContext(), h.messages, h.uploader, me, otherID, f, typ, c.FormValue("caption"), chat.SendOptions{
		MessageID:    messageID,
		ReceiverName: h.userName(c.UserContext(), otherID),
	}, progress)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}

// checkAttachment enforces the size and extension limits of a type
func checkAttachment(name string, size int64, typ models.MessageType) error {
	const op = "handlers.checkAttachment"

	limit := int64(MaxFileSize)
	if typ == models.MessageTypeVideo {
		limit = MaxVideoSize
	}
	if size > limit {
		return apperrors.InvalidArgument(op, fmt.Sprintf("File size exceeds limit of %dMB (uploaded: %.2fMB)", limit/(1024*1024), float64(size)/(1024*1024)))
	}

	ext := strings.ToLower(filepath.Ext(name))
	if !isAllowedExtension(ext, typ) {
		return apperrors.InvalidArgument(op, fmt.Sprintf("File extension %s not allowed for type %s", ext, typ))
	}
	return nil
}

// isAllowedExtension checks if file extension is allowed for the given type
func isAllowedExtension(ext string, typ models.MessageType) bool {
	if ext == "" {
		return false
	}
	var allowed string
	switch typ {
	case models.MessageTypeImage:
		allowed = AllowedImageExts
	case models.MessageTypeVideo:
		allowed = AllowedVideoExts
	case models.MessageTypeAudio:
		allowed = AllowedAudioExts
	case models.MessageTypeDocument:
		allowed = AllowedDocumentExts
	default:
		return false
	}
	for _, a := range strings.Split(allowed, ",") {
		if a == ext {
			return true
		}
	}
	return false
}

// GetFile serves blobs stored by this process
func (h *Handler) GetFile(c *fiber.Ctx) error {
	key, err := url.PathUnescape(c.Params("*"))
	if err != nil || key == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid file path",
		})
	}

	if h.memBlobs != nil {
		obj, ok := h.memBlobs.Get(key)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"error":   "File not found",
			})
		}
		c.Set("Content-Type", obj.ContentType)
		return c.Send(obj.Data)
	}
	if h.uploadDir == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "File not found",
		})
	}

	root := filepath.Clean(h.uploadDir)
	filePath := filepath.Join(root, filepath.FromSlash(key))
	if !strings.HasPrefix(filePath, root+string(os.PathSeparator)) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "Invalid file path",
		})
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "File not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to open file",
		})
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil || fileInfo.IsDir() {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "File not found",
		})
	}

	// thumbnails keep the original name but are always JPEG
	contentType := getContentType(strings.ToLower(filepath.Ext(filePath)))
	if strings.HasPrefix(filepath.Base(filePath), models.ThumbnailPrefix) {
		contentType = "image/jpeg"
	}
	c.Set("Content-Type", contentType)
	c.Set("Content-Length", fmt.Sprintf("%d", fileInfo.Size()))

	if _, err := io.Copy(c.Response().BodyWriter(), file); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to send file",
		})
	}

	return nil
}

// getContentType returns content type based on file extension
func getContentType(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	case ".3gp":
		return "video/3gpp"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".aac":
		return "audio/aac"
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".ppt":
		return "application/vnd.ms-powerpoint"
	case ".pptx":
		return "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	case ".txt":
		return "text/plain"
	case ".rtf":
		return "application/rtf"
	case ".zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}
