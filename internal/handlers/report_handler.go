package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/auth"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/dto"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ReportHandler struct {
	intake *services.ReportIntake
}

func NewReportHandler(intake *services.ReportIntake) *ReportHandler {
	return &ReportHandler{intake: intake}
}

func (h *ReportHandler) CreateReport(c *fiber.Ctx) error {
	userID, err := auth.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CreateReportRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}
	req.ReporterID = userID

	report := req.ToReport()
	group, err := h.intake.Submit(c.UserContext(), report)
	if err != nil && !errors.Is(err, services.ErrListenerFailed) {
		return respondError(c, err, "Failed to submit report")
	}

	resp := dto.CreateReportResponse{ReportID: report.ID, Grouped: group != nil}
	if group != nil {
		resp.GroupKey = group.GroupKey
		resp.TotalReports = group.TotalReports
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}
