package services

import (
	"context"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepOnceReleasesAndRecordsDepth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.report(t, "spam", "post", "p1")
	f.report(t, "spam", "post", "p2")
	_, err := f.queue.CheckoutNext(ctx, testTaskType, admin("admin-1"))
	require.NoError(t, err)

	sweeper := NewLeaseSweeper(f.queue, []string{testTaskType}, time.Minute)

	released := sweeper.SweepOnce(ctx)
	assert.Equal(t, 0, released[testTaskType])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.QueueDepth.WithLabelValues(testTaskType, "checkedOut")))

	f.clock.Advance(31 * time.Minute)
	released = sweeper.SweepOnce(ctx)
	assert.Equal(t, 1, released[testTaskType])
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.QueueDepth.WithLabelValues(testTaskType, "pending")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.QueueDepth.WithLabelValues(testTaskType, "checkedOut")))
}

func TestLeaseSweeperStartStop(t *testing.T) {
	f := newFixture(t)
	sweeper := NewLeaseSweeper(f.queue, []string{testTaskType}, time.Millisecond)
	sweeper.Start()
	time.Sleep(5 * time.Millisecond)
	sweeper.Stop()
	sweeper.Stop()
}
