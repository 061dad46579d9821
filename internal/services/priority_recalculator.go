package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/clock"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/queues"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/scoring"
)

const DefaultRecalculationBatchSize = 500

type RecalculationResult struct {
	Updated int `json:"updated"`
	Errors  int `json:"errors"`
}

// PriorityRecalculator rescores pending tasks after the scoring config
// changes. Checked-out and completed tasks are left alone.
type PriorityRecalculator struct {
	repo      repository.Repository
	registry  *queues.Registry
	clock     clock.Clock
	batchSize int
}

func NewPriorityRecalculator(repo repository.Repository, registry *queues.Registry, clk clock.Clock, batchSize int) *PriorityRecalculator {
	if clk == nil {
		clk = clock.Real()
	}
	if batchSize <= 0 {
		batchSize = DefaultRecalculationBatchSize
	}
	return &PriorityRecalculator{repo: repo, registry: registry, clock: clk, batchSize: batchSize}
}

// Recalculate rescores the pending tasks of taskType, or of every queue when
// taskType is empty. Tasks whose group is missing and batches that fail to
// commit are counted in Errors and do not stop the run.
func (r *PriorityRecalculator) Recalculate(ctx context.Context, taskType string) (RecalculationResult, error) {
	var result RecalculationResult
	if taskType != "" {
		if _, err := r.registry.Get(taskType); err != nil {
			return result, err
		}
	}
	sc := r.registry.Scoring()
	now := r.clock.Now()

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		tasks, err := r.repo.PendingTasksAfter(ctx, taskType, after, r.batchSize)
		if err != nil {
			return result, fmt.Errorf("failed to list pending tasks: %w", err)
		}
		if len(tasks) == 0 {
			break
		}
		after = tasks[len(tasks)-1].ID

		keys := make([]string, 0, len(tasks))
		for i := range tasks {
			if key, ok := models.GroupKeyFromPath(tasks[i].OriginalPath); ok {
				keys = append(keys, key)
			}
		}
		groups, err := r.repo.GetReportGroups(ctx, keys)
		if err != nil {
			return result, fmt.Errorf("failed to load report groups: %w", err)
		}

		updates := make([]repository.PriorityUpdate, 0, len(tasks))
		for i := range tasks {
			task := &tasks[i]
			key, _ := models.GroupKeyFromPath(task.OriginalPath)
			group, ok := groups[key]
			if !ok {
				slog.Warn("report group missing for pending task", "task_type", task.TaskType, "task_id", task.ID)
				result.Errors++
				continue
			}
			updates = append(updates, repository.PriorityUpdate{
				TaskID:    task.ID,
				Priority:  scoring.ScoreFromReasonScore(sc, group.HighestReasonScore, group.ReportedItemType, group.TotalReports),
				UpdatedAt: now,
			})
		}

		if len(updates) > 0 {
			if err := r.repo.ApplyPriorities(ctx, updates); err != nil {
				slog.Error("priority batch failed", "task_type", taskType, "size", len(updates), "error", err)
				result.Errors += len(updates)
			} else {
				result.Updated += len(updates)
			}
		}
		if len(tasks) < r.batchSize {
			break
		}
	}

	metrics.RecalculatedTotal.WithLabelValues("updated").Add(float64(result.Updated))
	metrics.RecalculatedTotal.WithLabelValues("error").Add(float64(result.Errors))
	slog.Info("priorities recalculated", "task_type", taskType, "updated", result.Updated, "errors", result.Errors)
	return result, nil
}
