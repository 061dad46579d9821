package services

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
	"golang.org/x/crypto/blake2b"
)

const systemDisplayName = "System"

// activityID derives the entry id from what happened, so replaying the same
// transition writes the same row and the insert is ignored.
func activityID(action, taskID, userID string, at time.Time) string {
	sum := blake2b.Sum256([]byte(action + "\x00" + taskID + "\x00" + userID + "\x00" + at.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}

func newActivityEntry(action string, task *models.Task, userID, displayName string, at time.Time) *models.ActivityLogEntry {
	return &models.ActivityLogEntry{
		ID:               activityID(action, task.ID, userID, at),
		AdminUserID:      userID,
		AdminDisplayName: displayName,
		Action:           action,
		TaskType:         task.TaskType,
		TaskID:           task.ID,
		Timestamp:        at,
	}
}

// ActivityLog reads the audit trail. Writes happen inside the leasing
// transactions of TaskQueue.
type ActivityLog struct {
	repo repository.Repository
}

func NewActivityLog(repo repository.Repository) *ActivityLog {
	return &ActivityLog{repo: repo}
}

func (l *ActivityLog) List(ctx context.Context, filter repository.ActivityFilter) ([]models.ActivityLogEntry, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 {
		filter.Limit = 200
	}
	return l.repo.ListActivity(ctx, filter)
}
