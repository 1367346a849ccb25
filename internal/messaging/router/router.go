package router

import (
	"context"

	"school_messaging_service/internal/messaging/app"
	"school_messaging_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes 註冊 websocket 路由
func RegisterRoutes(r *fiber.App, messagingWebsocket *app.MessagingWebsocketHandler) {
	ws := r.Group("/ws", middlewares.JWTMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	ws.Get("/", websocket.New(func(c *websocket.Conn) {
		messagingWebsocket.HandleConnection(context.Background(), c)
	}))
}
