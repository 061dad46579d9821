package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Report is one raw abuse report as submitted. Reports are folded into a
// ReportGroup by the aggregator; the row itself is kept for audit.
type Report struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ReporterID       string         `gorm:"size:128;index" json:"reporter_id"`
	Reason           string         `gorm:"not null;size:100" json:"reason"`
	ReportedItemID   string         `gorm:"not null;size:255;index" json:"reported_item_id"`
	ReportedItemType string         `gorm:"not null;size:50" json:"reported_item_type"`
	ReportedUserID   *string        `gorm:"size:128" json:"reported_user_id,omitempty"`
	ReportedUsername *string        `gorm:"size:255" json:"reported_username,omitempty"`
	GroupKey         string         `gorm:"size:255;index" json:"group_key"`
	Details          string         `gorm:"size:1000" json:"details,omitempty"`
	Metadata         datatypes.JSON `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}
