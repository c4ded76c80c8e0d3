package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/dealroom"
	"github.com/Dahimi/File-Search-POC/internal/ingestion"
	"github.com/Dahimi/File-Search-POC/internal/provider"
	"github.com/Dahimi/File-Search-POC/internal/stores"
	"github.com/Dahimi/File-Search-POC/pkg/circuitbreaker"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, stores.ErrEmptyDisplayName),
		errors.Is(err, ingestion.ErrEmptyDisplayName):
		return fiber.StatusBadRequest
	case errors.Is(err, ingestion.ErrFileTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.Is(err, dealroom.ErrAuditDisabled):
		return fiber.StatusNotImplemented
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, ingestion.ErrPollTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	case provider.IsNotFound(err):
		return fiber.StatusNotFound
	case errors.Is(err, ingestion.ErrOperationFailed):
		return fiber.StatusUnprocessableEntity
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return fiber.StatusBadGateway
	}

	var ingestErr *ingestion.IngestionError
	if errors.As(err, &ingestErr) && ingestErr.Stage == ingestion.StageFetch {
		return fiber.StatusBadGateway
	}

	return fiber.StatusInternalServerError
}

func respondError(c *fiber.Ctx, msg string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	} else {
		logger.Warn(msg, zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(status).JSON(fiber.Map{
		"error":   msg,
		"details": err.Error(),
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
