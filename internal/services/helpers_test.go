package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/clock"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/queues"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/scoring"
	"github.com/stretchr/testify/require"
)

const testTaskType = "user_reports"

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testScoring() scoring.Config {
	return scoring.Config{
		ReasonScores:              map[string]float64{"spam": 5, "harassment": 8, "violence": 20},
		ItemTypeMultipliers:       map[string]float64{"post": 1, "profile": 1.5},
		AdditionalReportBonus:     2,
		DefaultReasonScore:        1,
		DefaultItemTypeMultiplier: 1,
	}
}

func testRegistry(t *testing.T) *queues.Registry {
	t.Helper()
	reg := queues.NewRegistry(testScoring())
	require.NoError(t, reg.Register(&queues.TaskQueueConfig{
		TaskType:               testTaskType,
		DefaultCheckoutMinutes: 30,
		WorkLaterMinutes:       60,
		MaxWorkLaterMinutes:    240,
	}))
	return reg
}

func fastRetry() RetryPolicy {
	return RetryPolicy{Attempts: 5, Delay: time.Microsecond, MaxDelay: time.Millisecond, MaxJitter: time.Microsecond}
}

type fixture struct {
	repo       *repository.Memory
	registry   *queues.Registry
	clock      *clock.FakeClock
	aggregator *ReportAggregator
	factory    *TaskFactory
	intake     *ReportIntake
	queue      *TaskQueue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     repository.NewMemory(),
		registry: testRegistry(t),
		clock:    clock.Fake(t0),
	}
	f.aggregator = NewReportAggregator(f.repo, f.registry, ByReportedItem, f.clock, fastRetry())
	factory, err := NewTaskFactory(f.repo, f.registry, testTaskType, f.clock, fastRetry())
	require.NoError(t, err)
	f.factory = factory
	f.aggregator.Subscribe(factory)
	f.intake = NewReportIntake(f.aggregator)
	f.queue = NewTaskQueue(f.repo, f.registry, TaskQueueOptions{
		Authorizer: AnyOf{NewAllowList([]string{"admin-1", "admin-2"}), StaticToken("s3cret")},
		Profiles:   NewRepositoryProfiles(f.repo),
		Clock:      f.clock,
		Retry:      fastRetry(),
	})
	return f
}

func (f *fixture) report(t *testing.T, reason, itemType, itemID string) *models.ReportGroup {
	t.Helper()
	group, err := f.intake.Submit(context.Background(), &models.Report{
		ReporterID:       "reporter-1",
		Reason:           reason,
		ReportedItemType: itemType,
		ReportedItemID:   itemID,
	})
	require.NoError(t, err)
	return group
}

func (f *fixture) task(t *testing.T, id string) *models.Task {
	t.Helper()
	var task *models.Task
	require.NoError(t, f.repo.InTx(context.Background(), func(tx repository.Tx) error {
		var err error
		task, err = tx.GetTask(id)
		return err
	}))
	return task
}

func (f *fixture) activity(t *testing.T, taskID string) []models.ActivityLogEntry {
	t.Helper()
	entries, err := NewActivityLog(f.repo).List(context.Background(), repository.ActivityFilter{TaskID: taskID})
	require.NoError(t, err)
	return entries
}

func admin(id string) Worker {
	return Worker{UserID: id, DisplayName: "Reviewer " + id, PhotoURL: "https://example.com/" + id + ".png"}
}

// conflictingRepo fails the first n transactions with ErrConflict.
type conflictingRepo struct {
	repository.Repository
	failures atomic.Int32
	calls    atomic.Int32
}

func (c *conflictingRepo) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	c.calls.Add(1)
	if c.failures.Add(-1) >= 0 {
		return fmt.Errorf("could not serialize access: %w", repository.ErrConflict)
	}
	return c.Repository.InTx(ctx, fn)
}

// failingBatches rejects every ApplyPriorities call.
type failingBatches struct {
	repository.Repository
}

func (failingBatches) ApplyPriorities(context.Context, []repository.PriorityUpdate) error {
	return errors.New("connection reset")
}
