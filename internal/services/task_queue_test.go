package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/queues"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutNextLeasesHighestPriority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "spam", "post", "p1")
	f.report(t, "harassment", "profile", "u1")

	result, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	require.NoError(t, err)

	task := result.Task
	assert.Equal(t, "user_reports-profile_u1", task.ID)
	assert.Equal(t, models.TaskCheckedOut, task.Status)
	assert.Equal(t, 12.0, task.Priority)
	require.NotNil(t, task.Lease.UserID)
	assert.Equal(t, "admin-1", *task.Lease.UserID)
	assert.Equal(t, "Reviewer admin-1", *task.Lease.UserDisplayName)
	assert.Equal(t, "https://example.com/admin-1.png", *task.Lease.UserPhotoURL)
	assert.True(t, task.Lease.CheckedOutAt.Equal(t0))
	assert.True(t, task.Lease.ExpiresAt.Equal(t0.Add(30*time.Minute)))
	assert.Nil(t, task.Lease.WorkLaterUntil)

	require.NotNil(t, result.Group)
	assert.Equal(t, "profile_u1", result.Group.GroupKey)
	assert.Equal(t, 1, result.Group.TotalReports)

	stored := f.task(t, task.ID)
	assert.True(t, stored.HeldBy("admin-1"))

	entries := f.activity(t, task.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, models.ActionCheckoutNext, entries[0].Action)
	assert.Equal(t, "Admin", entries[0].AdminDisplayName)
	require.NotNil(t, entries[0].Priority)
	assert.Equal(t, 12.0, *entries[0].Priority)
}

func TestCheckoutNextOldestFirstOnTies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "spam", "post", "first")
	f.clock.Advance(time.Minute)
	f.report(t, "spam", "post", "second")

	r1, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	require.NoError(t, err)
	r2, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-2"))
	require.NoError(t, err)

	assert.Equal(t, "user_reports-post_first", r1.Task.ID)
	assert.Equal(t, "user_reports-post_second", r2.Task.ID)

	_, err = f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestCheckoutNextErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	assert.ErrorIs(t, err, ErrQueueEmpty)

	_, err = f.queue.CheckoutNext(ctx, "no_such_queue", admin("admin-1"))
	assert.ErrorIs(t, err, ErrUnknownTaskType)

	f.report(t, "spam", "post", "p1")
	_, err = f.queue.CheckoutNext(ctx, testTaskType, admin("stranger"))
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, models.TaskPending, f.task(t, "user_reports-post_p1").Status)

	token := admin("stranger")
	token.AuthToken = "s3cret"
	_, err = f.queue.CheckoutNext(ctx, testTaskType, token)
	assert.NoError(t, err)
}

func TestCheckoutNextMissingGroupIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.report(t, "spam", "post", "p1")
	f.repo.DeleteReportGroup("post_p1")

	result, err := f.queue.CheckoutNext(context.Background(), testTaskType, admin("admin-1"))
	require.NoError(t, err)
	assert.Nil(t, result.Group)
	assert.Equal(t, models.TaskCheckedOut, result.Task.Status)
}

func TestCheckoutNextUsesProfileForAudit(t *testing.T) {
	f := newFixture(t)
	f.repo.PutUser(models.User{ID: "admin-1", DisplayName: "Ayla", Role: models.RoleAdmin})
	f.report(t, "spam", "post", "p1")

	_, err := f.queue.CheckoutNext(context.Background(), testTaskType, Worker{UserID: "admin-1"})
	require.NoError(t, err)

	task := f.task(t, "user_reports-post_p1")
	assert.Equal(t, "Ayla", *task.Lease.UserDisplayName)
	assert.Nil(t, task.Lease.UserPhotoURL)
	assert.Equal(t, "Ayla", f.activity(t, task.ID)[0].AdminDisplayName)
}

func TestConcurrentCheckoutNeverDoubleLeases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const tasks = 10
	for i := 0; i < tasks; i++ {
		f.report(t, "spam", "post", string(rune('a'+i)))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		leased  = map[string]string{}
		empties int
	)
	for i := 0; i < 2*tasks; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := Worker{UserID: "worker-" + string(rune('A'+i)), AuthToken: "s3cret"}
			result, err := f.queue.CheckoutNext(ctx, testTaskType, w)
			mu.Lock()
			defer mu.Unlock()
			if errors.Is(err, ErrQueueEmpty) {
				empties++
				return
			}
			if assert.NoError(t, err) {
				_, dup := leased[result.Task.ID]
				assert.False(t, dup, "task %s leased twice", result.Task.ID)
				leased[result.Task.ID] = w.UserID
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, leased, tasks)
	assert.Equal(t, tasks, empties)
	for id, worker := range leased {
		assert.True(t, f.task(t, id).HeldBy(worker))
	}
}

func TestCheckInResolved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "spam", "post", "p1")
	result, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	require.NoError(t, err)

	f.clock.Advance(12 * time.Minute)
	task, err := f.queue.CheckIn(ctx, result.Task.ID, true, "removed post", "admin-1")
	require.NoError(t, err)

	assert.Equal(t, models.TaskCompleted, task.Status)
	assert.Equal(t, models.Lease{}, task.Lease)
	require.NotNil(t, task.CompletedAt)
	assert.True(t, task.CompletedAt.Equal(t0.Add(12*time.Minute)))

	entries := f.activity(t, task.ID)
	require.Len(t, entries, 2)
	latest := entries[0]
	assert.Equal(t, models.ActionCheckinResolved, latest.Action)
	require.NotNil(t, latest.TimeSpentMinutes)
	assert.Equal(t, 12, *latest.TimeSpentMinutes)
	require.NotNil(t, latest.Resolution)
	assert.Equal(t, "removed post", *latest.Resolution)

	_, err = f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestCheckInUnresolvedReturnsToQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "spam", "post", "p1")
	result, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	require.NoError(t, err)

	f.clock.Advance(20 * time.Second)
	task, err := f.queue.CheckIn(ctx, result.Task.ID, false, "", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, task.Status)
	assert.Nil(t, task.CompletedAt)
	assert.Nil(t, task.Lease.UserID)

	entry := f.activity(t, task.ID)[0]
	assert.Equal(t, models.ActionCheckinUnresolved, entry.Action)
	assert.Nil(t, entry.Resolution)
	assert.Equal(t, 0, *entry.TimeSpentMinutes)

	again, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-2"))
	require.NoError(t, err)
	assert.Equal(t, task.ID, again.Task.ID)
}

func TestOwnershipChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "spam", "post", "p1")
	f.report(t, "spam", "post", "p2")
	result, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	require.NoError(t, err)
	id := result.Task.ID

	_, err = f.queue.CheckIn(ctx, id, true, "", "admin-2")
	assert.ErrorIs(t, err, ErrNotOwned)
	_, err = f.queue.Release(ctx, id, "admin-2")
	assert.ErrorIs(t, err, ErrNotOwned)
	_, err = f.queue.WorkLater(ctx, id, "admin-2", 10)
	assert.ErrorIs(t, err, ErrNotOwned)
	assert.True(t, f.task(t, id).HeldBy("admin-1"))

	_, err = f.queue.CheckIn(ctx, "user_reports-post_p2", true, "", "admin-1")
	assert.ErrorIs(t, err, ErrNotCheckedOut)
	assert.ErrorIs(t, err, ErrNotOwned)

	_, err = f.queue.Release(ctx, "user_reports-missing", "admin-1")
	assert.ErrorIs(t, err, ErrTaskNotFound)

	_, err = f.queue.CheckIn(ctx, id, true, "", "admin-1")
	require.NoError(t, err)
	_, err = f.queue.CheckIn(ctx, id, true, "", "admin-1")
	assert.ErrorIs(t, err, ErrNotCheckedOut)
}

func TestRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "spam", "post", "p1")
	result, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	task, err := f.queue.Release(ctx, result.Task.ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, task.Status)
	assert.Nil(t, task.Lease.ExpiresAt)
	assert.Equal(t, models.ActionRelease, f.activity(t, task.ID)[0].Action)
}

func TestWorkLater(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "spam", "post", "p1")
	result, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	require.NoError(t, err)
	id := result.Task.ID

	task, err := f.queue.WorkLater(ctx, id, "admin-1", 0)
	require.NoError(t, err)
	assert.True(t, task.Lease.WorkLaterUntil.Equal(t0.Add(60*time.Minute)))
	assert.True(t, task.Lease.ExpiresAt.Equal(t0.Add(60*time.Minute)))
	assert.Equal(t, models.TaskCheckedOut, task.Status)

	f.clock.Advance(time.Minute)
	task, err = f.queue.WorkLater(ctx, id, "admin-1", 5)
	require.NoError(t, err)
	assert.True(t, task.Lease.WorkLaterUntil.Equal(t0.Add(6*time.Minute)))
	assert.True(t, task.Lease.ExpiresAt.Equal(t0.Add(60*time.Minute)), "never shortens the lease")

	f.clock.Advance(time.Minute)
	task, err = f.queue.WorkLater(ctx, id, "admin-1", 10000)
	require.NoError(t, err)
	assert.True(t, task.Lease.ExpiresAt.Equal(t0.Add(2*time.Minute+240*time.Minute)))

	entries := f.activity(t, id)
	assert.Len(t, entries, 4)
	assert.Equal(t, models.ActionWorkLater, entries[0].Action)
}

func TestReleaseExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "spam", "post", "p1")
	f.report(t, "spam", "post", "p2")
	r1, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	r2, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-2"))
	require.NoError(t, err)

	f.clock.Advance(11 * time.Minute)
	n, err := f.queue.ReleaseExpired(ctx, testTaskType)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, models.TaskPending, f.task(t, r1.Task.ID).Status)
	assert.True(t, f.task(t, r2.Task.ID).HeldBy("admin-2"))

	entry := f.activity(t, r1.Task.ID)[0]
	assert.Equal(t, models.ActionLeaseExpired, entry.Action)
	assert.Equal(t, "admin-1", entry.AdminUserID)
	assert.Equal(t, "System", entry.AdminDisplayName)

	_, err = f.queue.CheckIn(ctx, r1.Task.ID, true, "", "admin-1")
	assert.ErrorIs(t, err, ErrNotCheckedOut)

	n, err = f.queue.ReleaseExpired(ctx, testTaskType)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStatsAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.queue.Stats(ctx, testTaskType)
	require.NoError(t, err)
	assert.Equal(t, map[models.TaskStatus]int64{models.TaskPending: 0, models.TaskCheckedOut: 0, models.TaskCompleted: 0}, stats)

	f.report(t, "spam", "post", "p1")
	f.report(t, "violence", "post", "p2")
	f.report(t, "harassment", "post", "p3")
	_, err = f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	require.NoError(t, err)

	stats, err = f.queue.Stats(ctx, testTaskType)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats[models.TaskPending])
	assert.Equal(t, int64(1), stats[models.TaskCheckedOut])

	tasks, total, err := f.queue.List(ctx, repository.TaskFilter{TaskType: testTaskType, Status: models.TaskPending})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, tasks, 2)
	assert.Equal(t, "user_reports-post_p3", tasks[0].ID)

	_, _, err = f.queue.List(ctx, repository.TaskFilter{TaskType: "nope"})
	assert.ErrorIs(t, err, ErrUnknownTaskType)
}

func TestTransactionsRetryOnConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "spam", "post", "p1")

	repo := &conflictingRepo{Repository: f.repo}
	repo.failures.Store(2)
	queue := NewTaskQueue(repo, f.registry, TaskQueueOptions{Authorizer: NewAllowList([]string{"admin-1"}), Clock: f.clock, Retry: fastRetry()})

	result, err := queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), repo.calls.Load())
	assert.Len(t, f.activity(t, result.Task.ID), 1)

	repo.calls.Store(0)
	repo.failures.Store(100)
	_, err = queue.Release(ctx, result.Task.ID, "admin-1")
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, int32(5), repo.calls.Load())
	assert.True(t, f.task(t, result.Task.ID).HeldBy("admin-1"))
}

func TestTaskIsScopedToItsQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "spam", "post", "p1")
	require.NoError(t, f.registry.Register(&queues.TaskQueueConfig{TaskType: "appeals", DefaultCheckoutMinutes: 10}))
	id := models.TaskDocumentID(testTaskType, "post_p1")

	task, err := f.queue.Task(ctx, testTaskType, id)
	require.NoError(t, err)
	assert.Equal(t, id, task.ID)

	_, err = f.queue.Task(ctx, "appeals", id)
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = f.queue.Task(ctx, testTaskType, "user_reports-post_missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	_, err = f.queue.Task(ctx, "bogus", id)
	assert.ErrorIs(t, err, ErrUnknownTaskType)
}
