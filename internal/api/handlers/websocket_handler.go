package handlers

import (
	"context"
	"unicode"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/chat"
	"github.com/Dahimi/File-Search-POC/internal/dealroom"
	"github.com/Dahimi/File-Search-POC/internal/middleware/validation"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

type WebSocketHandler struct {
	service *dealroom.Service
}

func NewWebSocketHandler(service *dealroom.Service) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
	}
}

type wsMessage struct {
	Type string `json:"type"`
	chatRequest
}

// HandleConnection serves one chat session on /ws/stores/:id/chat. Clients
// send {"type":"chat","message":...} or {"type":"clear"}.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	storeID := c.Params("id")
	logger.Info("WebSocket connection established", zap.String("store_id", storeID))

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("store_id", storeID))
	}()

	for {
		var msg wsMessage

		err := c.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error("Failed to read WebSocket message", zap.Error(err))
			}
			break
		}

		switch msg.Type {
		case "chat":
			if err := validation.ValidateRequest(&msg.chatRequest); err != nil {
				h.sendError(c, err.Error())
				continue
			}

			logger.Info("Processing WebSocket chat", zap.String("store_id", storeID))

			if err := h.streamResponse(c, storeID, msg.chatRequest); err != nil {
				logger.Error("Failed to stream response", zap.Error(err))
				h.sendError(c, "Failed to process chat")
			}
		case "clear":
			if err := h.service.ClearHistory(context.Background(), storeID); err != nil {
				logger.Error("Failed to clear history", zap.Error(err))
				h.sendError(c, "Failed to clear history")
				continue
			}
			h.sendChunk(c, "cleared", "")
		}
	}
}

func (h *WebSocketHandler) streamResponse(c *websocket.Conn, storeID string, req chatRequest) error {
	ctx := context.Background()

	if err := h.sendChunk(c, "status", "Searching documents..."); err != nil {
		return err
	}

	result, err := h.service.Chat(ctx, storeID, req.Message, req.options())
	if err != nil {
		return err
	}

	if result.Reasoning != nil {
		if err := h.sendChunk(c, "reasoning", *result.Reasoning); err != nil {
			return err
		}
	}

	for _, chunk := range splitIntoChunks(result.Text) {
		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, result)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, result *chat.Result) error {
	msg := map[string]interface{}{
		"type":          "complete",
		"text":          result.Text,
		"citations":     result.Citations,
		"grounding":     result.Grounding,
		"model":         result.Model,
		"finish_reason": result.FinishReason,
		"usage":         result.Usage,
		"degraded":      result.Degraded,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	if err := c.WriteJSON(msg); err != nil {
		logger.Debug("Failed to send WebSocket error", zap.Error(err))
	}
}

// splitIntoChunks cuts text after each run of whitespace so every chunk is a
// word with the spaces and newlines that follow it. Joining the chunks gives
// back text unchanged.
func splitIntoChunks(text string) []string {
	chunks := []string{}
	start := 0
	inSpace := false

	for i, char := range text {
		space := unicode.IsSpace(char)
		if inSpace && !space && i > start {
			chunks = append(chunks, text[start:i])
			start = i
		}
		inSpace = space
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}

	return chunks
}
