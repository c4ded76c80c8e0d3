package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/Dahimi/File-Search-POC/internal/api/handlers"
	"github.com/Dahimi/File-Search-POC/internal/dealroom"
	"github.com/Dahimi/File-Search-POC/internal/metrics"
	"github.com/Dahimi/File-Search-POC/internal/middleware/ratelimit"
	"github.com/Dahimi/File-Search-POC/internal/middleware/validation"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

type Options struct {
	// Limiter is applied to the store routes when set.
	Limiter *ratelimit.RateLimiter
	// Metrics exposes /metrics when true.
	Metrics bool
	// Ready reports whether dependencies are reachable. nil means always ready.
	Ready func() error
}

// Register mounts the HTTP and WebSocket routes on app.
func Register(app *fiber.App, service *dealroom.Service, opts Options) {
	storeHandler := handlers.NewStoreHandler(service)
	documentHandler := handlers.NewDocumentHandler(service)
	chatHandler := handlers.NewChatHandler(service)
	wsHandler := handlers.NewWebSocketHandler(service)

	if opts.Metrics {
		app.Get("/metrics", metrics.MetricsHandler())
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/stores/:id/chat", websocket.New(wsHandler.HandleConnection))

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if opts.Ready != nil {
			if err := opts.Ready(); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"status": "not ready",
					"error":  err.Error(),
				})
			}
		}
		return c.JSON(fiber.Map{
			"status": "ready",
			"model":  service.Model(),
		})
	})

	storesAPI := api.Group("/stores", validation.Middleware(validation.Config{Logger: logger.GetLogger()}))
	if opts.Limiter != nil {
		storesAPI.Use(opts.Limiter.Middleware())
	}

	storesAPI.Get("/", storeHandler.ListStores)
	storesAPI.Post("/", storeHandler.CreateStore)
	storesAPI.Get("/:id", storeHandler.GetStore)
	storesAPI.Delete("/:id", storeHandler.DeleteStore)
	storesAPI.Get("/:id/activity", storeHandler.GetActivity)

	storesAPI.Post("/:id/documents", documentHandler.UploadDocument)
	storesAPI.Post("/:id/documents/url", documentHandler.ImportURL)

	storesAPI.Post("/:id/chat", chatHandler.HandleChat)
	storesAPI.Get("/:id/history", chatHandler.GetHistory)
	storesAPI.Delete("/:id/history", chatHandler.ClearHistory)
}
