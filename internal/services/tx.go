package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
	"github.com/avast/retry-go"
)

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	Attempts  uint
	Delay     time.Duration
	MaxDelay  time.Duration
	MaxJitter time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:  5,
		Delay:     20 * time.Millisecond,
		MaxDelay:  500 * time.Millisecond,
		MaxJitter: 30 * time.Millisecond,
	}
}

type txRunner struct {
	repo   repository.Repository
	policy RetryPolicy
}

func newTxRunner(repo repository.Repository, policy RetryPolicy) txRunner {
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}
	// RandomDelay panics on a zero jitter.
	if policy.MaxJitter <= 0 {
		policy.MaxJitter = time.Millisecond
	}
	return txRunner{repo: repo, policy: policy}
}

// run executes fn in a transaction and re-runs the whole transaction on
// repository.ErrConflict. fn must not keep state across attempts.
func (r txRunner) run(ctx context.Context, operation string, fn func(tx repository.Tx) error) error {
	return retry.Do(
		func() error {
			return r.repo.InTx(ctx, fn)
		},
		retry.Context(ctx),
		retry.Attempts(r.policy.Attempts),
		retry.Delay(r.policy.Delay),
		retry.MaxDelay(r.policy.MaxDelay),
		retry.MaxJitter(r.policy.MaxJitter),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, repository.ErrConflict)
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			// retry-go calls this after the final attempt too.
			if n+1 >= r.policy.Attempts {
				return
			}
			metrics.TxRetriesTotal.WithLabelValues(operation).Inc()
			slog.Warn("transaction conflict", "operation", operation, "attempt", n+1, "error", err)
		}),
	)
}
