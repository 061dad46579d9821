package models

import "time"

const (
	ActionCheckoutNext      = "checkout_next_important"
	ActionCheckinResolved   = "checkin_resolved"
	ActionCheckinUnresolved = "checkin_unresolved"
	ActionRelease           = "release"
	ActionWorkLater         = "work_later"
	ActionLeaseExpired      = "lease_expired"
)

// ActivityLogEntry is an immutable audit record of one leasing transition.
type ActivityLogEntry struct {
	ID               string    `gorm:"primaryKey;size:64" json:"id"`
	AdminUserID      string    `gorm:"not null;size:128;index" json:"admin_user_id"`
	AdminDisplayName string    `gorm:"size:255" json:"admin_display_name"`
	Action           string    `gorm:"not null;size:50;index" json:"action"`
	TaskType         string    `gorm:"not null;size:100" json:"task_type"`
	TaskID           string    `gorm:"not null;size:400;index" json:"task_id"`
	Priority         *float64  `json:"priority,omitempty"`
	Timestamp        time.Time `gorm:"not null;index" json:"timestamp"`
	Resolution       *string   `gorm:"size:1000" json:"resolution,omitempty"`
	TimeSpentMinutes *int      `json:"time_spent_minutes,omitempty"`
}

func (ActivityLogEntry) TableName() string {
	return "activity_log"
}
