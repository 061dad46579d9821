package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/dto"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/services"
	"github.com/gofiber/fiber/v2"
)

// respondError maps service errors to statuses. Unknown errors are logged
// and hidden behind a generic 500.
func respondError(c *fiber.Ctx, err error, fallback string) error {
	status := fiber.StatusInternalServerError
	message := fallback
	switch {
	case errors.Is(err, services.ErrQueueEmpty):
		status, message = fiber.StatusNotFound, "No pending tasks"
	case errors.Is(err, services.ErrTaskNotFound):
		status, message = fiber.StatusNotFound, "Task not found"
	case errors.Is(err, services.ErrNotCheckedOut):
		status, message = fiber.StatusConflict, "Task is not checked out"
	case errors.Is(err, services.ErrNotOwned):
		status, message = fiber.StatusConflict, "You do not have this task checked out"
	case errors.Is(err, services.ErrUnauthorized):
		status, message = fiber.StatusForbidden, "Admin access required"
	case errors.Is(err, services.ErrUnknownTaskType):
		status, message = fiber.StatusBadRequest, "Unknown task type"
	case errors.Is(err, services.ErrInvalidReport):
		status, message = fiber.StatusBadRequest, err.Error()
	default:
		slog.Error(fallback, "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: message})
}
