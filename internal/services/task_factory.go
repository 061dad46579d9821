package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/clock"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/queues"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/scoring"
)

// TaskFactory keeps exactly one task per report group in one queue.
type TaskFactory struct {
	tx       txRunner
	registry *queues.Registry
	taskType string
	clock    clock.Clock
}

func NewTaskFactory(repo repository.Repository, registry *queues.Registry, taskType string, clk clock.Clock, policy RetryPolicy) (*TaskFactory, error) {
	if err := registry.Require(taskType); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &TaskFactory{
		tx:       newTxRunner(repo, policy),
		registry: registry,
		taskType: taskType,
		clock:    clk,
	}, nil
}

func (f *TaskFactory) GroupChanged(ctx context.Context, group *models.ReportGroup) error {
	_, err := f.Materialize(ctx, group)
	return err
}

// Materialize creates or refreshes the task for group. The group is re-read
// inside the transaction so concurrent calls converge on the stored counts.
// A task that is checked out keeps its lease; a completed task is reopened.
func (f *TaskFactory) Materialize(ctx context.Context, group *models.ReportGroup) (*models.Task, error) {
	if group == nil || group.GroupKey == "" {
		return nil, nil
	}
	now := f.clock.Now()
	id := models.TaskDocumentID(f.taskType, group.GroupKey)
	sc := f.registry.Scoring()

	var result *models.Task
	err := f.tx.run(ctx, "materialize_task", func(tx repository.Tx) error {
		current := group
		stored, err := tx.GetReportGroup(group.GroupKey)
		switch {
		case err == nil:
			current = stored
		case !errors.Is(err, repository.ErrNotFound):
			return err
		}
		priority := scoring.ScoreFromReasonScore(sc, current.HighestReasonScore, current.ReportedItemType, current.TotalReports)

		task, err := tx.GetTask(id)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			task = &models.Task{
				ID:            id,
				TaskType:      f.taskType,
				TaskID:        current.GroupKey,
				OriginalPath:  current.Path(),
				Status:        models.TaskPending,
				Priority:      priority,
				Summary:       Summarize(current),
				CreatedAt:     now,
				LastUpdatedAt: now,
			}
			if err := tx.CreateTask(task); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			task.Priority = priority
			task.Summary = Summarize(current)
			task.OriginalPath = current.Path()
			task.LastUpdatedAt = now
			if task.Status == models.TaskCompleted {
				task.Status = models.TaskPending
				task.CompletedAt = nil
				task.CreatedAt = now
				task.ClearLease()
			}
			if err := tx.SaveTask(task); err != nil {
				return err
			}
		}
		result = task
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to materialize task: %w", err)
	}

	slog.Info("task materialized", "task_type", f.taskType, "task_id", result.ID, "priority", result.Priority, "status", result.Status)
	return result, nil
}

// Summarize renders the one-line queue label of a group.
func Summarize(group *models.ReportGroup) string {
	subject := group.ReportedItemType
	if group.ReportedUsername != nil && *group.ReportedUsername != "" {
		subject = *group.ReportedUsername
	}
	noun := "reports"
	if group.TotalReports == 1 {
		noun = "report"
	}
	return fmt.Sprintf("%d %s for %s", group.TotalReports, noun, subject)
}
