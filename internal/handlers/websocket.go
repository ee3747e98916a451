package handlers

import (
	"context"

	"expertvakil/server/internal/identity"
	"expertvakil/server/internal/middleware"
	ws "expertvakil/server/internal/websocket"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// WebSocketUpgrade checks if the request should be upgraded to WebSocket
func (h *Handler) WebSocketUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		// carry the caller across the upgrade
		c.Locals("identity", middleware.GetIdentity(c))
		return c.Next()
	}

	return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
		"success": false,
		"error":   "WebSocket upgrade required",
	})
}

// WebSocket binds the connection to a new chat session for the caller
func (h *Handler) WebSocket(c *websocket.Conn) {
	me, _ := c.Locals("identity").(identity.Identity)
	if !me.Valid() {
		c.Close()
		return
	}
	if me.DisplayName == "" {
		me.DisplayName = h.userName(context.Background(), me.UserID)
	}

	client := ws.NewClient(context.Background(), me, c, h.hub, h.session, h.log)
	if !h.hub.Add(client) {
		client.Session.Close()
		c.Close()
		return
	}

	go client.WritePump()
	client.ReadPump() // blocks until the connection closes
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"onlineUsers": h.hub.GetOnlineCount(),
			"connections": h.hub.GetConnectionCount(),
			"userIds":     h.hub.GetOnlineUsers(),
		},
	})
}
