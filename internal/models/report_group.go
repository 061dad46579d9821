package models

import (
	"strings"
	"time"
)

const (
	GroupStatusPending = "pending"

	reportGroupsPath = "report_groups/"
)

// ReportGroup is the deduplicated aggregate of every report against the same
// target. TotalReports and HighestReasonScore never decrease; only the
// aggregator writes them.
type ReportGroup struct {
	GroupKey           string    `gorm:"primaryKey;size:255" json:"group_key"`
	ReportedItemID     string    `gorm:"not null;size:255;index" json:"reported_item_id"`
	ReportedItemType   string    `gorm:"not null;size:50" json:"reported_item_type"`
	ReportedUserID     *string   `gorm:"size:128" json:"reported_user_id,omitempty"`
	ReportedUsername   *string   `gorm:"size:255" json:"reported_username,omitempty"`
	TotalReports       int       `gorm:"not null" json:"total_reports"`
	HighestReasonScore float64   `gorm:"not null" json:"highest_reason_score"`
	LastReportAt       time.Time `gorm:"not null" json:"last_report_at"`
	Status             string    `gorm:"not null;size:50;default:'pending';index" json:"status"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (ReportGroup) TableName() string {
	return "report_groups"
}

// Path is the pointer stored on a Task's OriginalPath.
func (g *ReportGroup) Path() string {
	return reportGroupsPath + g.GroupKey
}

// GroupKeyFromPath reverses ReportGroup.Path.
func GroupKeyFromPath(path string) (string, bool) {
	if !strings.HasPrefix(path, reportGroupsPath) {
		return "", false
	}
	key := strings.TrimPrefix(path, reportGroupsPath)
	return key, key != ""
}
