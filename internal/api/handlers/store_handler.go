package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/dealroom"
	"github.com/Dahimi/File-Search-POC/internal/middleware/validation"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

type StoreHandler struct {
	service *dealroom.Service
}

func NewStoreHandler(service *dealroom.Service) *StoreHandler {
	return &StoreHandler{
		service: service,
	}
}

func (h *StoreHandler) ListStores(c *fiber.Ctx) error {
	list, err := h.service.ListStores(c.Context())
	if err != nil {
		return respondError(c, "Failed to list stores", err)
	}

	return c.JSON(fiber.Map{
		"stores": list,
		"count":  len(list),
	})
}

func (h *StoreHandler) CreateStore(c *fiber.Ctx) error {
	var req struct {
		DisplayName string `json:"display_name" validate:"required,max=512"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	if err := validation.ValidateRequest(&req); err != nil {
		return badRequest(c, err.Error())
	}

	store, err := h.service.CreateStore(c.Context(), req.DisplayName)
	if err != nil {
		return respondError(c, "Failed to create store", err)
	}

	return c.Status(fiber.StatusCreated).JSON(store)
}

func (h *StoreHandler) GetStore(c *fiber.Ctx) error {
	store, err := h.service.StoreInfo(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, "Failed to get store", err)
	}

	return c.JSON(store)
}

func (h *StoreHandler) DeleteStore(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.DeleteStore(c.Context(), id); err != nil {
		return respondError(c, "Failed to delete store", err)
	}

	return c.JSON(fiber.Map{
		"message": "Store deleted",
		"id":      id,
	})
}

func (h *StoreHandler) GetActivity(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 500 {
		return badRequest(c, "limit must be between 1 and 500")
	}

	activity, err := h.service.Activity(c.Context(), c.Params("id"), limit)
	if err != nil {
		return respondError(c, "Failed to load activity", err)
	}

	return c.JSON(activity)
}
