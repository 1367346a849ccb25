package router

import (
	"school_messaging_service/internal/api/handlers"
	"school_messaging_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 註冊 REST API 路由
// @title School Messaging Service API
// @version 1.0
// @description Threads, messages, receipts and unread counters
// @BasePath /
func RegisterRoutes(app *fiber.App, h *handlers.MessagingHandler) {
	app.Get("/", handlers.ConnectCheck)
	app.Post("/debug", handlers.DebugLogFlag)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1", middlewares.JWTMiddleware())

	api.Get("/orgs/:orgID/threads", h.ListThreads)
	api.Post("/orgs/:orgID/threads", h.StartThread)

	api.Get("/threads/:threadID", h.GetThread)
	api.Get("/threads/:threadID/messages", h.ListMessages)
	api.Post("/threads/:threadID/messages", h.SendMessage)
	api.Post("/threads/:threadID/read", h.MarkThreadRead)
	api.Get("/threads/:threadID/search", h.SearchInThread)

	api.Delete("/messages/:messageID", h.DeleteMessage)

	api.Get("/unread", h.UnreadCount)
	api.Post("/receipts/delivered", h.MarkAllDelivered)
}
