package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/Buchi-dev/puretrack/internal/ws"
)

// Setup wires the in-scope HTTP surface: /api/auth/login, /health, and the
// /ws upgrade route. REST CRUD, reports, and the browser UI are external
// collaborators and are not served here.
func Setup(app *fiber.App, authHandler *AuthHandler, hub *ws.Hub, statusSrc StatusSource) {
	app.Post("/api/auth/login", authHandler.Login)
	app.Get("/health", HealthHandler(statusSrc))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(hub.HandleConnection))
}
