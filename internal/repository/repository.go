// Package repository is the transactional store behind the moderation queue.
// Two implementations exist: Gorm (Postgres) for production and Memory, a
// mutex-guarded store used for local development and tests. Both give the
// same guarantee: reading the highest-priority pending task and claiming it
// happen inside one indivisible transaction.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict marks a transaction that lost a race and may be retried.
	ErrConflict = errors.New("transaction conflict")
)

type Repository interface {
	// InTx runs fn in one transaction. fn's error aborts and is returned
	// unchanged unless it is a store conflict, which is wrapped in
	// ErrConflict.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetReportGroups(ctx context.Context, keys []string) (map[string]models.ReportGroup, error)

	// PendingTasksAfter pages through pending tasks ordered by id. An empty
	// taskType matches every queue.
	PendingTasksAfter(ctx context.Context, taskType, afterID string, limit int) ([]models.Task, error)
	// ApplyPriorities commits one batch of priority writes atomically. Batches
	// are independent of each other.
	ApplyPriorities(ctx context.Context, updates []PriorityUpdate) error

	// GetTask reads a task without locking it.
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, int64, error)
	CountTasksByStatus(ctx context.Context, taskType string) (map[models.TaskStatus]int64, error)
	ListActivity(ctx context.Context, filter ActivityFilter) ([]models.ActivityLogEntry, error)

	GetUser(ctx context.Context, id string) (*models.User, error)
	Ping(ctx context.Context) error
}

// Tx is the set of operations available inside a transaction. Task reads
// lock the row until the transaction ends.
type Tx interface {
	// CreateReport stores a raw report. It reports false, and changes
	// nothing, when a report with the same id is already stored.
	CreateReport(report *models.Report) (bool, error)

	// MergeReportGroup creates the group from seed, or, if it exists,
	// increments TotalReports by one, raises HighestReasonScore to
	// max(existing, seed), sets LastReportAt and fills identity fields that
	// are still empty. Returns the group as stored after the merge.
	MergeReportGroup(seed *models.ReportGroup) (*models.ReportGroup, error)
	GetReportGroup(key string) (*models.ReportGroup, error)

	GetTask(id string) (*models.Task, error)
	// NextPendingTask returns the pending task of taskType with the highest
	// priority, oldest first among equals. ErrNotFound when the queue is
	// empty.
	NextPendingTask(taskType string) (*models.Task, error)
	ExpiredLeases(taskType string, now time.Time, limit int) ([]models.Task, error)
	CreateTask(task *models.Task) error
	SaveTask(task *models.Task) error

	// AppendActivity inserts entry; an entry with an existing id is ignored.
	AppendActivity(entry *models.ActivityLogEntry) error
}

type PriorityUpdate struct {
	TaskID    string
	Priority  float64
	UpdatedAt time.Time
}

type TaskFilter struct {
	TaskType string
	Status   models.TaskStatus
	Limit    int
	Offset   int
}

type ActivityFilter struct {
	TaskID      string
	AdminUserID string
	Limit       int
}
