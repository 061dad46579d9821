package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/moderation-queue/internal/models"
	"github.com/google/uuid"
)

// ReportIntake is the entry point for raw reports from HTTP and RabbitMQ.
type ReportIntake struct {
	aggregator *ReportAggregator
}

func NewReportIntake(aggregator *ReportAggregator) *ReportIntake {
	return &ReportIntake{aggregator: aggregator}
}

// Submit validates report, then stores and aggregates it in one transaction.
// A nil group with a nil error means the report was stored but could not be
// grouped. Resubmitting a stored id is a no-op that returns the group.
func (s *ReportIntake) Submit(ctx context.Context, report *models.Report) (*models.ReportGroup, error) {
	if err := s.validate(report); err != nil {
		return nil, err
	}
	report.ReportedUserID = nonEmpty(report.ReportedUserID)
	report.ReportedUsername = nonEmpty(report.ReportedUsername)
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	report.GroupKey = s.aggregator.GroupKey(report)
	return s.aggregator.Ingest(ctx, report)
}

func (s *ReportIntake) validate(report *models.Report) error {
	if report == nil {
		return fmt.Errorf("%w: empty report", ErrInvalidReport)
	}
	report.Reason = strings.TrimSpace(report.Reason)
	report.ReportedItemType = strings.TrimSpace(report.ReportedItemType)
	report.ReportedItemID = strings.TrimSpace(report.ReportedItemID)

	var problems []error
	if report.Reason == "" {
		problems = append(problems, errors.New("reason is required"))
	}
	if report.ReportedItemID == "" {
		problems = append(problems, errors.New("reported_item_id is required"))
	}
	if report.ReportedItemType == "" {
		problems = append(problems, errors.New("reported_item_type is required"))
	}
	if len(report.Details) > 1000 {
		problems = append(problems, errors.New("details must be at most 1000 characters"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidReport, errors.Join(problems...))
	}
	return nil
}
