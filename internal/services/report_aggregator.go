package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/clock"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/queues"
	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/repository"
)

// GroupingStrategy maps a raw report to its group key. An empty key means
// the report cannot be grouped and is dropped.
type GroupingStrategy func(report *models.Report) string

// ByReportedItem groups reports against the same item: "{itemType}_{itemId}".
func ByReportedItem(report *models.Report) string {
	if report.ReportedItemType == "" || report.ReportedItemID == "" {
		return ""
	}
	return report.ReportedItemType + "_" + report.ReportedItemID
}

// ByReportedUser groups every report against the same user: "user_{userId}".
func ByReportedUser(report *models.Report) string {
	if report.ReportedUserID == nil || *report.ReportedUserID == "" {
		return ""
	}
	return "user_" + *report.ReportedUserID
}

func GroupingStrategyByName(name string) (GroupingStrategy, error) {
	switch name {
	case "", "item":
		return ByReportedItem, nil
	case "user":
		return ByReportedUser, nil
	default:
		return nil, fmt.Errorf("unknown grouping strategy %q", name)
	}
}

// GroupListener is notified after a report group write commits.
type GroupListener interface {
	GroupChanged(ctx context.Context, group *models.ReportGroup) error
}

type ReportAggregator struct {
	tx        txRunner
	registry  *queues.Registry
	strategy  GroupingStrategy
	clock     clock.Clock
	listeners []GroupListener
}

func NewReportAggregator(repo repository.Repository, registry *queues.Registry, strategy GroupingStrategy, clk clock.Clock, policy RetryPolicy) *ReportAggregator {
	if strategy == nil {
		strategy = ByReportedItem
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &ReportAggregator{
		tx:       newTxRunner(repo, policy),
		registry: registry,
		strategy: strategy,
		clock:    clk,
	}
}

// Subscribe registers l. Not safe to call concurrently with Aggregate.
func (a *ReportAggregator) Subscribe(l GroupListener) {
	a.listeners = append(a.listeners, l)
}

func (a *ReportAggregator) GroupKey(report *models.Report) string {
	return a.strategy(report)
}

// Aggregate folds report into its group. It returns (nil, nil) when the
// report has no group key. On ErrListenerFailed the returned group is
// committed and the call must not be repeated.
func (a *ReportAggregator) Aggregate(ctx context.Context, report *models.Report) (*models.ReportGroup, error) {
	return a.aggregate(ctx, report, false)
}

// Ingest stores report and folds it into its group in one transaction. A
// report whose id is already stored changes nothing: its group is returned
// as it stands and listeners are not notified.
func (a *ReportAggregator) Ingest(ctx context.Context, report *models.Report) (*models.ReportGroup, error) {
	return a.aggregate(ctx, report, true)
}

func (a *ReportAggregator) aggregate(ctx context.Context, report *models.Report, store bool) (*models.ReportGroup, error) {
	if report == nil {
		return nil, nil
	}
	key := a.strategy(report)
	if key == "" && !store {
		return a.drop(report)
	}

	var (
		group     *models.ReportGroup
		duplicate bool
	)
	err := a.tx.run(ctx, "aggregate_report", func(tx repository.Tx) error {
		group, duplicate = nil, false
		if store {
			inserted, err := tx.CreateReport(report)
			if err != nil {
				return err
			}
			if !inserted {
				duplicate = true
				group, err = existingGroup(tx, key)
				return err
			}
		}
		if key == "" {
			return nil
		}
		g, err := tx.MergeReportGroup(a.seed(report, key))
		if err != nil {
			return err
		}
		group = g
		return nil
	})
	if err != nil {
		metrics.ReportsIngestedTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to aggregate report: %w", err)
	}
	if duplicate {
		metrics.ReportsIngestedTotal.WithLabelValues("duplicate").Inc()
		slog.Info("duplicate report ignored", "report_id", report.ID, "group_key", key)
		return group, nil
	}
	if key == "" {
		return a.drop(report)
	}
	metrics.ReportsIngestedTotal.WithLabelValues("grouped").Inc()
	slog.Info("report aggregated", "group_key", key, "total_reports", group.TotalReports)

	var errs []error
	for _, l := range a.listeners {
		if err := l.GroupChanged(ctx, group); err != nil {
			slog.Error("report group listener failed", "group_key", key, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return group, fmt.Errorf("%w: %w", ErrListenerFailed, errors.Join(errs...))
	}
	return group, nil
}

func (a *ReportAggregator) seed(report *models.Report, key string) *models.ReportGroup {
	return &models.ReportGroup{
		GroupKey:           key,
		ReportedItemID:     report.ReportedItemID,
		ReportedItemType:   report.ReportedItemType,
		ReportedUserID:     nonEmpty(report.ReportedUserID),
		ReportedUsername:   nonEmpty(report.ReportedUsername),
		TotalReports:       1,
		HighestReasonScore: a.registry.Scoring().ReasonScore(report.Reason),
		LastReportAt:       a.clock.Now(),
		Status:             models.GroupStatusPending,
	}
}

func existingGroup(tx repository.Tx, key string) (*models.ReportGroup, error) {
	if key == "" {
		return nil, nil
	}
	g, err := tx.GetReportGroup(key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return g, err
}

func (a *ReportAggregator) drop(report *models.Report) (*models.ReportGroup, error) {
	slog.Debug("report dropped: no group key", "reason", report.Reason, "item_type", report.ReportedItemType)
	metrics.ReportsIngestedTotal.WithLabelValues("dropped").Inc()
	return nil, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	v := *s
	return &v
}
