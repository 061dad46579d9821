package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/clock"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/queues"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
)

const expiredLeaseBatch = 100

type TaskQueueOptions struct {
	Authorizer Authorizer
	Profiles   ProfileLookup
	Clock      clock.Clock
	Retry      RetryPolicy
}

// TaskQueue leases tasks to reviewers. Every state change and its activity
// entry commit in the same transaction.
type TaskQueue struct {
	tx       txRunner
	repo     repository.Repository
	registry *queues.Registry
	authz    Authorizer
	profiles ProfileLookup
	clock    clock.Clock
}

func NewTaskQueue(repo repository.Repository, registry *queues.Registry, opts TaskQueueOptions) *TaskQueue {
	q := &TaskQueue{
		tx:       newTxRunner(repo, opts.Retry),
		repo:     repo,
		registry: registry,
		authz:    opts.Authorizer,
		profiles: opts.Profiles,
		clock:    opts.Clock,
	}
	if q.authz == nil {
		q.authz = AnyOf{}
	}
	if q.profiles == nil {
		q.profiles = NoProfiles{}
	}
	if q.clock == nil {
		q.clock = clock.Real()
	}
	return q
}

type CheckoutResult struct {
	Task *models.Task
	// Group is nil when the task's source group no longer exists.
	Group *models.ReportGroup
}

// CheckoutNext leases the highest-priority pending task of taskType to
// worker. Two concurrent callers never receive the same task.
func (q *TaskQueue) CheckoutNext(ctx context.Context, taskType string, worker Worker) (*CheckoutResult, error) {
	cfg, err := q.registry.Get(taskType)
	if err != nil {
		return nil, err
	}
	if err := q.authz.RequireAdmin(ctx, worker.UserID, worker.AuthToken); err != nil {
		metrics.CheckoutsTotal.WithLabelValues(taskType, "unauthorized").Inc()
		if !errors.Is(err, ErrUnauthorized) {
			err = fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return nil, err
	}

	adminName := resolveDisplayName(ctx, q.profiles, worker.UserID)
	leaseName := worker.DisplayName
	if leaseName == "" {
		leaseName = adminName
	}
	now := q.clock.Now()
	expiresAt := now.Add(cfg.CheckoutDuration())

	var result *CheckoutResult
	err = q.tx.run(ctx, "checkout_next", func(tx repository.Tx) error {
		task, err := tx.NextPendingTask(taskType)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQueueEmpty
		}
		if err != nil {
			return err
		}

		userID, name, checkedOutAt, expires := worker.UserID, leaseName, now, expiresAt
		task.Status = models.TaskCheckedOut
		task.Lease = models.Lease{
			UserID:          &userID,
			UserDisplayName: &name,
			UserPhotoURL:    optional(worker.PhotoURL),
			CheckedOutAt:    &checkedOutAt,
			ExpiresAt:       &expires,
		}
		task.LastUpdatedAt = now
		if err := tx.SaveTask(task); err != nil {
			return err
		}

		entry := newActivityEntry(models.ActionCheckoutNext, task, worker.UserID, adminName, now)
		priority := task.Priority
		entry.Priority = &priority
		if err := tx.AppendActivity(entry); err != nil {
			return err
		}

		var group *models.ReportGroup
		if key, ok := models.GroupKeyFromPath(task.OriginalPath); ok {
			g, err := tx.GetReportGroup(key)
			switch {
			case err == nil:
				group = g
			case errors.Is(err, repository.ErrNotFound):
				slog.Warn("checked out task has no report group", "task_type", taskType, "task_id", task.ID)
			default:
				return err
			}
		}
		result = &CheckoutResult{Task: task, Group: group}
		return nil
	})
	switch {
	case errors.Is(err, ErrQueueEmpty):
		metrics.CheckoutsTotal.WithLabelValues(taskType, "empty").Inc()
		return nil, err
	case err != nil:
		metrics.CheckoutsTotal.WithLabelValues(taskType, "error").Inc()
		return nil, fmt.Errorf("failed to check out task: %w", err)
	}

	metrics.CheckoutsTotal.WithLabelValues(taskType, "leased").Inc()
	slog.Info("task checked out", "task_type", taskType, "task_id", result.Task.ID, "worker_id", worker.UserID, "action", models.ActionCheckoutNext)
	return result, nil
}

// CheckIn ends worker's lease on taskID. Resolved tasks complete; unresolved
// ones go back to pending.
func (q *TaskQueue) CheckIn(ctx context.Context, taskID string, resolved bool, resolution, workerID string) (*models.Task, error) {
	adminName := resolveDisplayName(ctx, q.profiles, workerID)
	now := q.clock.Now()
	action := models.ActionCheckinUnresolved
	if resolved {
		action = models.ActionCheckinResolved
	}

	var result *models.Task
	err := q.tx.run(ctx, "checkin", func(tx repository.Tx) error {
		task, err := ownedTask(tx, taskID, workerID)
		if err != nil {
			return err
		}
		spent := minutesSince(task.Lease.CheckedOutAt, now)

		if resolved {
			completedAt := now
			task.Status = models.TaskCompleted
			task.CompletedAt = &completedAt
		} else {
			task.Status = models.TaskPending
			task.CompletedAt = nil
		}
		task.ClearLease()
		task.LastUpdatedAt = now
		if err := tx.SaveTask(task); err != nil {
			return err
		}

		entry := newActivityEntry(action, task, workerID, adminName, now)
		priority := task.Priority
		entry.Priority = &priority
		entry.Resolution = optional(resolution)
		entry.TimeSpentMinutes = &spent
		if err := tx.AppendActivity(entry); err != nil {
			return err
		}
		result = task
		return nil
	})
	if err != nil {
		return nil, wrapTransition(err, "check in")
	}

	metrics.TransitionsTotal.WithLabelValues(result.TaskType, action).Inc()
	slog.Info("task checked in", "task_type", result.TaskType, "task_id", taskID, "worker_id", workerID, "action", action)
	return result, nil
}

// Release returns a held task to pending without completing it.
func (q *TaskQueue) Release(ctx context.Context, taskID, workerID string) (*models.Task, error) {
	adminName := resolveDisplayName(ctx, q.profiles, workerID)
	now := q.clock.Now()

	var result *models.Task
	err := q.tx.run(ctx, "release", func(tx repository.Tx) error {
		task, err := ownedTask(tx, taskID, workerID)
		if err != nil {
			return err
		}
		task.Status = models.TaskPending
		task.ClearLease()
		task.LastUpdatedAt = now
		if err := tx.SaveTask(task); err != nil {
			return err
		}
		if err := tx.AppendActivity(newActivityEntry(models.ActionRelease, task, workerID, adminName, now)); err != nil {
			return err
		}
		result = task
		return nil
	})
	if err != nil {
		return nil, wrapTransition(err, "release")
	}

	metrics.TransitionsTotal.WithLabelValues(result.TaskType, models.ActionRelease).Inc()
	slog.Info("task released", "task_type", result.TaskType, "task_id", taskID, "worker_id", workerID, "action", models.ActionRelease)
	return result, nil
}

// WorkLater extends worker's lease. minutes <= 0 uses the queue's
// work_later_minutes; the value is capped at max_work_later_minutes.
func (q *TaskQueue) WorkLater(ctx context.Context, taskID, workerID string, minutes int) (*models.Task, error) {
	adminName := resolveDisplayName(ctx, q.profiles, workerID)
	now := q.clock.Now()

	var result *models.Task
	err := q.tx.run(ctx, "work_later", func(tx repository.Tx) error {
		task, err := ownedTask(tx, taskID, workerID)
		if err != nil {
			return err
		}
		cfg, err := q.registry.Get(task.TaskType)
		if err != nil {
			return err
		}
		m := minutes
		if m <= 0 {
			m = cfg.WorkLaterMinutes
		}
		if m > cfg.MaxWorkLaterMinutes {
			m = cfg.MaxWorkLaterMinutes
		}

		until := now.Add(time.Duration(m) * time.Minute)
		expires := until
		if task.Lease.ExpiresAt != nil && task.Lease.ExpiresAt.After(until) {
			expires = *task.Lease.ExpiresAt
		}
		task.Lease.WorkLaterUntil = &until
		task.Lease.ExpiresAt = &expires
		task.LastUpdatedAt = now
		if err := tx.SaveTask(task); err != nil {
			return err
		}
		if err := tx.AppendActivity(newActivityEntry(models.ActionWorkLater, task, workerID, adminName, now)); err != nil {
			return err
		}
		result = task
		return nil
	})
	if err != nil {
		return nil, wrapTransition(err, "defer")
	}

	metrics.TransitionsTotal.WithLabelValues(result.TaskType, models.ActionWorkLater).Inc()
	slog.Info("task deferred", "task_type", result.TaskType, "task_id", taskID, "worker_id", workerID, "action", models.ActionWorkLater)
	return result, nil
}

// ReleaseExpired returns every lease of taskType that expired before now to
// the pending state and reports how many were released.
func (q *TaskQueue) ReleaseExpired(ctx context.Context, taskType string) (int, error) {
	if _, err := q.registry.Get(taskType); err != nil {
		return 0, err
	}
	now := q.clock.Now()

	total := 0
	for {
		released := 0
		err := q.tx.run(ctx, "release_expired", func(tx repository.Tx) error {
			released = 0
			tasks, err := tx.ExpiredLeases(taskType, now, expiredLeaseBatch)
			if err != nil {
				return err
			}
			for i := range tasks {
				task := &tasks[i]
				holder := ""
				if task.Lease.UserID != nil {
					holder = *task.Lease.UserID
				}
				task.Status = models.TaskPending
				task.ClearLease()
				task.LastUpdatedAt = now
				if err := tx.SaveTask(task); err != nil {
					return err
				}
				if err := tx.AppendActivity(newActivityEntry(models.ActionLeaseExpired, task, holder, systemDisplayName, now)); err != nil {
					return err
				}
			}
			released = len(tasks)
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("failed to release expired leases: %w", err)
		}
		total += released
		if released < expiredLeaseBatch {
			break
		}
	}

	if total > 0 {
		metrics.TransitionsTotal.WithLabelValues(taskType, models.ActionLeaseExpired).Add(float64(total))
		slog.Info("expired leases released", "task_type", taskType, "count", total, "action", models.ActionLeaseExpired)
	}
	return total, nil
}

// Task returns taskID when it belongs to taskType's queue. A task of another
// queue is reported as ErrTaskNotFound.
func (q *TaskQueue) Task(ctx context.Context, taskType, taskID string) (*models.Task, error) {
	if _, err := q.registry.Get(taskType); err != nil {
		return nil, err
	}
	task, err := q.repo.GetTask(ctx, taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task.TaskType != taskType {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (q *TaskQueue) List(ctx context.Context, filter repository.TaskFilter) ([]models.Task, int64, error) {
	if _, err := q.registry.Get(filter.TaskType); err != nil {
		return nil, 0, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return q.repo.ListTasks(ctx, filter)
}

// Stats counts the tasks of taskType per status. Every status is present.
func (q *TaskQueue) Stats(ctx context.Context, taskType string) (map[models.TaskStatus]int64, error) {
	if _, err := q.registry.Get(taskType); err != nil {
		return nil, err
	}
	counts, err := q.repo.CountTasksByStatus(ctx, taskType)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	stats := map[models.TaskStatus]int64{
		models.TaskPending:    0,
		models.TaskCheckedOut: 0,
		models.TaskCompleted:  0,
	}
	for status, n := range counts {
		stats[status] = n
	}
	return stats, nil
}

func ownedTask(tx repository.Tx, taskID, workerID string) (*models.Task, error) {
	task, err := tx.GetTask(taskID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	if task.Status != models.TaskCheckedOut {
		return nil, ErrNotCheckedOut
	}
	if !task.HeldBy(workerID) {
		return nil, ErrNotOwned
	}
	return task, nil
}

// wrapTransition leaves domain errors untouched so handlers can match them.
func wrapTransition(err error, op string) error {
	if errors.Is(err, ErrTaskNotFound) || errors.Is(err, ErrNotOwned) || errors.Is(err, ErrUnknownTaskType) {
		return err
	}
	return fmt.Errorf("failed to %s task: %w", op, err)
}

func minutesSince(start *time.Time, now time.Time) int {
	if start == nil {
		return 0
	}
	m := int(math.Round(now.Sub(*start).Minutes()))
	if m < 0 {
		return 0
	}
	return m
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
