package models

import "time"

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskCheckedOut TaskStatus = "checkedOut"
	TaskCompleted  TaskStatus = "completed"
)

// Lease holds the checkout details of a task. All fields are nil while the
// task is not checked out.
type Lease struct {
	UserID          *string    `gorm:"size:128;index"`
	UserDisplayName *string    `gorm:"size:255"`
	UserPhotoURL    *string    `gorm:"size:1000"`
	CheckedOutAt    *time.Time
	ExpiresAt       *time.Time `gorm:"index"`
	WorkLaterUntil  *time.Time
}

// Task is one reviewable unit of work, one per report group. ID is
// "{taskType}-{groupKey}" so creation is idempotent.
type Task struct {
	ID            string     `gorm:"primaryKey;size:400"`
	TaskType      string     `gorm:"not null;size:100;index:idx_tasks_queue,priority:1"`
	TaskID        string     `gorm:"not null;size:255"`
	OriginalPath  string     `gorm:"not null;size:300"`
	Status        TaskStatus `gorm:"not null;size:20;index:idx_tasks_queue,priority:2"`
	Lease         Lease      `gorm:"embedded;embeddedPrefix:checkout_"`
	Priority      float64    `gorm:"not null;index:idx_tasks_queue,priority:3,sort:desc"`
	Summary       string     `gorm:"size:500"`
	CreatedAt     time.Time  `gorm:"not null;index:idx_tasks_queue,priority:4"`
	LastUpdatedAt time.Time  `gorm:"not null"`
	CompletedAt   *time.Time
}

func TaskDocumentID(taskType, groupKey string) string {
	return taskType + "-" + groupKey
}

// HeldBy reports whether userID currently holds the lease.
func (t *Task) HeldBy(userID string) bool {
	return t.Status == TaskCheckedOut && t.Lease.UserID != nil && *t.Lease.UserID == userID
}

// ClearLease returns the task to the unleased state.
func (t *Task) ClearLease() {
	t.Lease = Lease{}
}
