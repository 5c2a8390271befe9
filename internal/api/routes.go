package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/geniechat/geniechat-backend/internal/api/handlers"
	"github.com/geniechat/geniechat-backend/internal/services"
)

// SetupRoutes configures all API routes.
func SetupRoutes(app *fiber.App, svc *services.Services) {
	api := app.Group("/api/v1")

	// Conversation entry points
	api.Post("/ask", handlers.Ask(svc))
	api.Post("/conversations/:id/messages", handlers.ContinueConversation(svc))

	// Per-message feedback
	api.Put("/messages/:id/rating", handlers.UpdateRating(svc))
	api.Get("/messages/:id/rating", handlers.GetRating(svc))

	// Chat history
	api.Get("/history", handlers.GetHistory(svc))
	api.Delete("/history", handlers.ClearHistory(svc))

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "geniechat-backend",
		})
	})
}
