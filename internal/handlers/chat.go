package handlers

import (
	"context"

	"expertvakil/server/internal/apperrors"
	"expertvakil/server/internal/chat"
	"expertvakil/server/internal/middleware"
	ws "expertvakil/server/internal/websocket"

	"github.com/gofiber/fiber/v2"
)

type startConversationRequest struct {
	OtherUserID   string `json:"otherUserId" validate:"required"`
	OtherUserName string `json:"otherUserName"`
}

type sendTextRequest struct {
	Text         string `json:"text" validate:"required"`
	SenderName   string `json:"senderName"`
	ReceiverName string `json:"receiverName"`
}

// GetInbox returns the caller's conversations, most recent first
func (h *Handler) GetInbox(c *fiber.Ctx) error {
	me := middleware.GetIdentity(c)

	entries, err := h.inbox.List(c.UserContext(), me)
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    entries,
	})
}

// StartConversation writes placeholder inbox entries for a new conversation
func (h *Handler) StartConversation(c *fiber.Ctx) error {
	me := middleware.GetIdentity(c)

	var req startConversationRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	if req.OtherUserName == "" {
		req.OtherUserName = h.userName(c.UserContext(), req.OtherUserID)
	}

	if err := h.inbox.CreatePlaceholder(c.UserContext(), me, req.OtherUserID, req.OtherUserName); err != nil {
		return h.fail(c, err)
	}
	entry, err := h.inbox.Entry(c.UserContext(), me, req.OtherUserID)
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    entry,
	})
}

// GetMessages returns the caller's copy of a conversation, oldest first
func (h *Handler) GetMessages(c *fiber.Ctx) error {
	me := middleware.GetIdentity(c)

	msgs, err := h.messages.Messages(c.UserContext(), me, c.Params("otherId"))
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    msgs,
	})
}

// SendMessage sends a text message
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	me := middleware.GetIdentity(c)
	otherID := c.Params("otherId")

	var req sendTextRequest
	if err := h.bind(c, &req); err != nil {
		return h.fail(c, err)
	}
	if req.ReceiverName == "" {
		req.ReceiverName = h.userName(c.UserContext(), otherID)
	}

	msg, err := h.messages.SendText(c.UserContext(), me, otherID, req.Text, chat.SendOptions{
		SenderName:   req.SenderName,
		ReceiverName: req.ReceiverName,
	})
	if err != nil {
		return h.fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    msg,
	})
}

// MarkSeen marks every message the counterparty sent me as seen
func (h *Handler) MarkSeen(c *fiber.Ctx) error {
	me := middleware.GetIdentity(c)

	if err := h.messages.MarkSeen(c.UserContext(), me, c.Params("otherId")); err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

// DeleteMessage deletes a message for the caller or, with
// scope=everyone, for both participants.
func (h *Handler) DeleteMessage(c *fiber.Ctx) error {
	me := middleware.GetIdentity(c)
	otherID := c.Params("otherId")
	messageID := c.Params("messageId")

	var err error
	switch c.Query("scope", ws.ScopeMe) {
	case ws.ScopeMe:
		err = h.messages.DeleteForMe(c.UserContext(), me, otherID, messageID)
	case ws.ScopeEveryone:
		err = h.messages.DeleteForEveryone(c.UserContext(), me, otherID, messageID)
	default:
		err = apperrors.InvalidArgument("handlers.DeleteMessage", "scope must be me or everyone")
	}
	if err != nil {
		return h.fail(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
	})
}

func (h *Handler) userName(ctx context.Context, userID string) string {
	name, err := h.directory.UserName(ctx, userID)
	if err != nil || name == "" {
		return ""
	}
	return name
}
