package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/chat"
	"github.com/Dahimi/File-Search-POC/internal/dealroom"
	"github.com/Dahimi/File-Search-POC/internal/middleware/validation"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

type ChatHandler struct {
	service *dealroom.Service
}

func NewChatHandler(service *dealroom.Service) *ChatHandler {
	return &ChatHandler{
		service: service,
	}
}

type chatRequest struct {
	Message        string `json:"message" validate:"required,max=32000"`
	SystemPrompt   string `json:"system_prompt" validate:"max=32000"`
	Model          string `json:"model" validate:"max=128"`
	ThinkingBudget *int   `json:"thinking_budget"`
}

func (r chatRequest) options() chat.Options {
	return chat.Options{
		Model:          r.Model,
		SystemPrompt:   r.SystemPrompt,
		ThinkingBudget: r.ThinkingBudget,
	}
}

// HandleChat answers a message against the store. A failed generation still
// returns 200 with degraded set and the error in text.
func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req chatRequest

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	if err := validation.ValidateRequest(&req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.service.Chat(c.Context(), c.Params("id"), req.Message, req.options())
	if err != nil {
		return respondError(c, "Failed to process chat", err)
	}

	return c.JSON(result)
}

func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	turns, err := h.service.History(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, "Failed to load history", err)
	}
	if turns == nil {
		turns = []chat.Turn{}
	}

	return c.JSON(fiber.Map{
		"history": turns,
		"count":   len(turns),
	})
}

func (h *ChatHandler) ClearHistory(c *fiber.Ctx) error {
	if err := h.service.ClearHistory(c.Context(), c.Params("id")); err != nil {
		return respondError(c, "Failed to clear history", err)
	}

	return c.JSON(fiber.Map{
		"message": "History cleared",
	})
}
