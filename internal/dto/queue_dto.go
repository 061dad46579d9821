package dto

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
)

// CheckoutDetails is null on the wire unless the task is checked out.
type CheckoutDetails struct {
	UserID          string     `json:"user_id"`
	UserDisplayName string     `json:"user_display_name"`
	UserPhotoURL    string     `json:"user_photo_url,omitempty"`
	CheckedOutAt    time.Time  `json:"checked_out_at"`
	ExpiresAt       time.Time  `json:"expires_at"`
	WorkLaterUntil  *time.Time `json:"work_later_until,omitempty"`
}

type TaskResponse struct {
	ID              string           `json:"id"`
	TaskType        string           `json:"task_type"`
	TaskID          string           `json:"task_id"`
	OriginalPath    string           `json:"original_path"`
	Status          string           `json:"status"`
	Priority        float64          `json:"priority"`
	Summary         string           `json:"summary"`
	CheckoutDetails *CheckoutDetails `json:"checkout_details"`
	CreatedAt       time.Time        `json:"created_at"`
	LastUpdatedAt   time.Time        `json:"last_updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

func NewTaskResponse(t *models.Task) TaskResponse {
	resp := TaskResponse{
		ID:            t.ID,
		TaskType:      t.TaskType,
		TaskID:        t.TaskID,
		OriginalPath:  t.OriginalPath,
		Status:        string(t.Status),
		Priority:      t.Priority,
		Summary:       t.Summary,
		CreatedAt:     t.CreatedAt,
		LastUpdatedAt: t.LastUpdatedAt,
		CompletedAt:   t.CompletedAt,
	}
	l := t.Lease
	if t.Status == models.TaskCheckedOut && l.UserID != nil {
		details := &CheckoutDetails{
			UserID:         *l.UserID,
			WorkLaterUntil: l.WorkLaterUntil,
		}
		if l.UserDisplayName != nil {
			details.UserDisplayName = *l.UserDisplayName
		}
		if l.UserPhotoURL != nil {
			details.UserPhotoURL = *l.UserPhotoURL
		}
		if l.CheckedOutAt != nil {
			details.CheckedOutAt = *l.CheckedOutAt
		}
		if l.ExpiresAt != nil {
			details.ExpiresAt = *l.ExpiresAt
		}
		resp.CheckoutDetails = details
	}
	return resp
}

func NewTaskResponses(tasks []models.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, NewTaskResponse(&tasks[i]))
	}
	return out
}

type CheckoutResponse struct {
	Task        TaskResponse        `json:"task"`
	ReportGroup *models.ReportGroup `json:"report_group"`
}

type CheckInRequest struct {
	Resolved   bool   `json:"resolved"`
	Resolution string `json:"resolution"`
}

type WorkLaterRequest struct {
	Minutes int `json:"minutes"`
}

type TaskListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Total  int64          `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type QueueStatsResponse struct {
	TaskType string           `json:"task_type"`
	Counts   map[string]int64 `json:"counts"`
}

type SweepResponse struct {
	TaskType string `json:"task_type"`
	Released int    `json:"released"`
}

type ActivityListResponse struct {
	Entries []models.ActivityLogEntry `json:"entries"`
}
