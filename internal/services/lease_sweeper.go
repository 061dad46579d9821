package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/metrics"
)

// LeaseSweeper periodically releases expired leases and refreshes the
// queue depth gauge.
type LeaseSweeper struct {
	queue     *TaskQueue
	taskTypes []string
	interval  time.Duration

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewLeaseSweeper(queue *TaskQueue, taskTypes []string, interval time.Duration) *LeaseSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LeaseSweeper{
		queue:     queue,
		taskTypes: taskTypes,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (s *LeaseSweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("lease sweeper started", "interval", s.interval.String(), "task_types", s.taskTypes)
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), s.interval)
				s.SweepOnce(ctx)
				cancel()
			case <-s.done:
				slog.Info("lease sweeper stopped")
				return
			}
		}
	}()
}

// Stop waits for an in-flight sweep to finish.
func (s *LeaseSweeper) Stop() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

// SweepOnce runs one pass over every queue and returns the number of leases
// released per task type.
func (s *LeaseSweeper) SweepOnce(ctx context.Context) map[string]int {
	released := make(map[string]int, len(s.taskTypes))
	for _, taskType := range s.taskTypes {
		n, err := s.queue.ReleaseExpired(ctx, taskType)
		if err != nil {
			slog.Error("lease sweep failed", "task_type", taskType, "error", err)
		}
		released[taskType] = n

		stats, err := s.queue.Stats(ctx, taskType)
		if err != nil {
			slog.Error("queue stats failed", "task_type", taskType, "error", err)
			continue
		}
		for status, count := range stats {
			metrics.QueueDepth.WithLabelValues(taskType, string(status)).Set(float64(count))
		}
	}
	return released
}
