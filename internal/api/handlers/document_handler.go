package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/dealroom"
	"github.com/Dahimi/File-Search-POC/internal/middleware/validation"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

type DocumentHandler struct {
	service *dealroom.Service
}

func NewDocumentHandler(service *dealroom.Service) *DocumentHandler {
	return &DocumentHandler{
		service: service,
	}
}

// UploadDocument takes a multipart "file" field and an optional
// "display_name" field, and blocks until indexing finishes.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "file is required")
	}

	displayName := c.FormValue("display_name")
	if displayName == "" {
		displayName = header.Filename
	}

	f, err := header.Open()
	if err != nil {
		logger.Error("Failed to open uploaded file", zap.Error(err))
		return badRequest(c, "Invalid file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		logger.Error("Failed to read uploaded file", zap.Error(err))
		return badRequest(c, "Invalid file")
	}

	result, err := h.service.Upload(c.Context(), c.Params("id"), data, displayName)
	if err != nil {
		return respondError(c, "Failed to upload document", err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *DocumentHandler) ImportURL(c *fiber.Ctx) error {
	var req struct {
		URL string `json:"url" validate:"required,http_url"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	if err := validation.ValidateRequest(&req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.service.ImportURL(c.Context(), c.Params("id"), req.URL)
	if err != nil {
		return respondError(c, "Failed to import URL", err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}
