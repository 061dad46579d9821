package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/dto"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/queues"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	repo     repository.Repository
	registry *queues.Registry
}

func NewHealthHandler(repo repository.Repository, registry *queues.Registry) *HealthHandler {
	return &HealthHandler{repo: repo, registry: registry}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := "ok"
	dbStatus := "ok"
	if err := h.repo.Ping(c.UserContext()); err != nil {
		status = "degraded"
		dbStatus = "unhealthy: " + err.Error()
	}

	taskTypes := h.registry.TaskTypes()
	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(dto.HealthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		DB:         dbStatus,
		TaskTypes:  taskTypes,
		QueueCount: len(taskTypes),
	})
}
