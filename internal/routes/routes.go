package routes

import (
	"expertvakil/server/internal/handlers"
	"expertvakil/server/internal/middleware"
	"expertvakil/server/internal/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, h *handlers.Handler, j *utils.JWT, limits *middleware.Limiters) {
	auth := middleware.Auth(j)

	// API v1 group
	api := app.Group("/api/v1")

	// Health check (public)
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "ExpertVakil chat API is running",
		})
	})

	// Prometheus scrape endpoint (public)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Chat routes (protected)
	chat := api.Group("/chat", auth)
	reads, sends := limits.Reads(), limits.Sends()
	chat.Get("/inbox", reads, h.GetInbox)
	chat.Post("/conversations", sends, h.StartConversation)
	chat.Get("/:otherId/messages", reads, h.GetMessages)
	chat.Post("/:otherId/messages", sends, h.SendMessage)
	chat.Post("/:otherId/attachments", limits.Uploads(), h.SendAttachment)
	chat.Put("/:otherId/seen", h.MarkSeen)
	chat.Delete("/:otherId/messages/:messageId", h.DeleteMessage)

	// Serve uploaded files (public)
	app.Get("/uploads/*", h.GetFile)

	// WebSocket route (protected)
	api.Get("/ws", auth, h.WebSocketUpgrade, websocket.New(h.WebSocket))

	// WebSocket stats (protected, for debugging)
	api.Get("/ws/stats", auth, h.GetWebSocketStats)
}
