package dto

import (
	"encoding/json"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// CreateReportRequest is the body of POST /api/reports and the payload of
// report messages on RabbitMQ.
type CreateReportRequest struct {
	Reason           string          `json:"reason"`
	ReportedItemID   string          `json:"reported_item_id"`
	ReportedItemType string          `json:"reported_item_type"`
	ReportedUserID   string          `json:"reported_user_id,omitempty"`
	ReportedUsername string          `json:"reported_username,omitempty"`
	ReporterID       string          `json:"reporter_id,omitempty"`
	Details          string          `json:"details,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

type CreateReportResponse struct {
	ReportID     uuid.UUID `json:"report_id"`
	Grouped      bool      `json:"grouped"`
	GroupKey     string    `json:"group_key,omitempty"`
	TotalReports int       `json:"total_reports,omitempty"`
}

// ToReport converts the wire form into a raw report.
func (r *CreateReportRequest) ToReport() *models.Report {
	report := &models.Report{
		ReporterID:       r.ReporterID,
		Reason:           r.Reason,
		ReportedItemID:   r.ReportedItemID,
		ReportedItemType: r.ReportedItemType,
		Details:          r.Details,
	}
	if r.ReportedUserID != "" {
		id := r.ReportedUserID
		report.ReportedUserID = &id
	}
	if r.ReportedUsername != "" {
		name := r.ReportedUsername
		report.ReportedUsername = &name
	}
	if len(r.Metadata) > 0 {
		report.Metadata = datatypes.JSON(r.Metadata)
	}
	return report
}
