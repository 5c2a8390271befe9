package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/geniechat/geniechat-backend/internal/services"
)

// Ask starts a fresh conversation for the question and returns the resolved
// answer. The service never fails this call; errors come back as readable
// text in the response body.
func Ask(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req struct {
			Question string `json:"question"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if req.Question == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "question is required",
			})
		}

		result, queryText, messageID := svc.Conversation.Ask(c.Context(), req.Question)
		return c.JSON(fiber.Map{
			"result":     result,
			"query_text": queryText,
			"message_id": messageID,
		})
	}
}

// ContinueConversation sends a follow-up question into an existing remote
// conversation.
func ContinueConversation(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		conversationID := c.Params("id")

		var req struct {
			Question string `json:"question"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if req.Question == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "question is required",
			})
		}

		result, queryText := svc.Conversation.Continue(c.Context(), conversationID, req.Question)
		return c.JSON(fiber.Map{
			"result":     result,
			"query_text": queryText,
		})
	}
}

// UpdateRating records, changes or removes a thumbs rating for a message.
// A null rating clears any existing one.
func UpdateRating(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		messageID := c.Params("id")

		var req struct {
			UserID string  `json:"user_id"`
			Rating *string `json:"rating"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if req.Rating != nil && *req.Rating != "up" && *req.Rating != "down" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "rating must be \"up\", \"down\" or null",
			})
		}

		ok := svc.Conversation.SetRating(c.Context(), messageID, req.UserID, req.Rating)
		return c.JSON(fiber.Map{"success": ok})
	}
}

// GetRating returns the stored rating for a message, null when unrated.
func GetRating(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		messageID := c.Params("id")
		userID := c.Query("user_id")

		rating, err := svc.Conversation.GetRating(c.Context(), messageID, userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"rating": rating})
	}
}

// GetHistory returns sessions newest-first with their messages oldest-first.
// Without a user_id query parameter it returns every session (admin path).
func GetHistory(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessions, err := svc.Conversation.History(c.Context(), c.Query("user_id"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"sessions": sessions})
	}
}

// ClearHistory wipes the user's persisted chat history.
func ClearHistory(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Conversation.ClearHistory(c.Context(), c.Query("user_id")); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"success": true})
	}
}
