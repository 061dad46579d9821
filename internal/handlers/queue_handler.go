package handlers

import (
	"strconv"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/auth"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/dto"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/services"
	"github.com/gofiber/fiber/v2"
)

type QueueHandler struct {
	queue        *services.TaskQueue
	recalculator *services.PriorityRecalculator
	activity     *services.ActivityLog
}

func NewQueueHandler(queue *services.TaskQueue, recalculator *services.PriorityRecalculator, activity *services.ActivityLog) *QueueHandler {
	return &QueueHandler{queue: queue, recalculator: recalculator, activity: activity}
}

func (h *QueueHandler) Checkout(c *fiber.Ctx) error {
	worker, ok := auth.GetWorker(c)
	if !ok {
		return unauthorized(c)
	}

	result, err := h.queue.CheckoutNext(c.UserContext(), c.Params("task_type"), worker)
	if err != nil {
		return respondError(c, err, "Failed to check out task")
	}

	return c.JSON(dto.CheckoutResponse{
		Task:        dto.NewTaskResponse(result.Task),
		ReportGroup: result.Group,
	})
}

func (h *QueueHandler) CheckIn(c *fiber.Ctx) error {
	worker, ok := auth.GetWorker(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.CheckInRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if err := h.requireQueueTask(c); err != nil {
		return respondError(c, err, "Failed to check in task")
	}
	task, err := h.queue.CheckIn(c.UserContext(), c.Params("id"), req.Resolved, req.Resolution, worker.UserID)
	if err != nil {
		return respondError(c, err, "Failed to check in task")
	}
	return c.JSON(dto.NewTaskResponse(task))
}

func (h *QueueHandler) Release(c *fiber.Ctx) error {
	worker, ok := auth.GetWorker(c)
	if !ok {
		return unauthorized(c)
	}

	if err := h.requireQueueTask(c); err != nil {
		return respondError(c, err, "Failed to release task")
	}
	task, err := h.queue.Release(c.UserContext(), c.Params("id"), worker.UserID)
	if err != nil {
		return respondError(c, err, "Failed to release task")
	}
	return c.JSON(dto.NewTaskResponse(task))
}

func (h *QueueHandler) WorkLater(c *fiber.Ctx) error {
	worker, ok := auth.GetWorker(c)
	if !ok {
		return unauthorized(c)
	}

	var req dto.WorkLaterRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Invalid request body",
			})
		}
	}

	if err := h.requireQueueTask(c); err != nil {
		return respondError(c, err, "Failed to defer task")
	}
	task, err := h.queue.WorkLater(c.UserContext(), c.Params("id"), worker.UserID, req.Minutes)
	if err != nil {
		return respondError(c, err, "Failed to defer task")
	}
	return c.JSON(dto.NewTaskResponse(task))
}

func (h *QueueHandler) ListTasks(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	tasks, total, err := h.queue.List(c.UserContext(), repository.TaskFilter{
		TaskType: c.Params("task_type"),
		Status:   models.TaskStatus(c.Query("status", "")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return respondError(c, err, "Failed to fetch tasks")
	}

	return c.JSON(dto.TaskListResponse{
		Tasks:  dto.NewTaskResponses(tasks),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (h *QueueHandler) Stats(c *fiber.Ctx) error {
	taskType := c.Params("task_type")
	stats, err := h.queue.Stats(c.UserContext(), taskType)
	if err != nil {
		return respondError(c, err, "Failed to fetch queue stats")
	}

	counts := make(map[string]int64, len(stats))
	for status, n := range stats {
		counts[string(status)] = n
	}
	return c.JSON(dto.QueueStatsResponse{TaskType: taskType, Counts: counts})
}

func (h *QueueHandler) Recalculate(c *fiber.Ctx) error {
	result, err := h.recalculator.Recalculate(c.UserContext(), c.Params("task_type"))
	if err != nil {
		return respondError(c, err, "Failed to recalculate priorities")
	}
	return c.JSON(result)
}

func (h *QueueHandler) Sweep(c *fiber.Ctx) error {
	taskType := c.Params("task_type")
	released, err := h.queue.ReleaseExpired(c.UserContext(), taskType)
	if err != nil {
		return respondError(c, err, "Failed to release expired leases")
	}
	return c.JSON(dto.SweepResponse{TaskType: taskType, Released: released})
}

func (h *QueueHandler) ListActivity(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	entries, err := h.activity.List(c.UserContext(), repository.ActivityFilter{
		TaskID:      c.Query("task_id", ""),
		AdminUserID: c.Query("admin_user_id", ""),
		Limit:       limit,
	})
	if err != nil {
		return respondError(c, err, "Failed to fetch activity log")
	}
	if entries == nil {
		entries = []models.ActivityLogEntry{}
	}
	return c.JSON(dto.ActivityListResponse{Entries: entries})
}

// requireQueueTask rejects a task id addressed through another queue's path.
// A task never changes queue, so checking before the transition is enough.
func (h *QueueHandler) requireQueueTask(c *fiber.Ctx) error {
	_, err := h.queue.Task(c.UserContext(), c.Params("task_type"), c.Params("id"))
	return err
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error: true, Message: "Unauthorized",
	})
}
