package services

import (
	"errors"
	"fmt"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/queues"
)

var (
	ErrQueueEmpty   = errors.New("no pending tasks")
	ErrTaskNotFound = errors.New("task not found")
	ErrNotOwned     = errors.New("you do not have this task checked out")
	// ErrNotCheckedOut is the ErrNotOwned variant for tasks nobody holds.
	ErrNotCheckedOut   = fmt.Errorf("task is not checked out: %w", ErrNotOwned)
	ErrUnauthorized    = errors.New("admin access required")
	ErrUnknownTaskType = queues.ErrUnknownTaskType
	ErrInvalidReport   = errors.New("invalid report")
	// ErrListenerFailed is returned together with a committed report group
	// when a downstream listener failed. The aggregation itself must not be
	// retried.
	ErrListenerFailed = errors.New("report group listener failed")
)
