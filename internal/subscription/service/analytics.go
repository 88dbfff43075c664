package service

import (
	"context"
	"time"

	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
)

// Analytics aggregates revenue and lifecycle metrics. MRR normalizes every
// billable subscription's base price to monthly; ARR is MRR annualized.
func (s *Service) Analytics(ctx context.Context, windowStart, windowEnd time.Time) (subscriptiondomain.AnalyticsSnapshot, error) {
	if windowEnd.IsZero() {
		windowEnd = s.clock.Now()
	}
	if windowStart.IsZero() {
		windowStart = windowEnd.AddDate(0, -1, 0)
	}

	mrr, err := s.repo.SumActiveMonthlyRevenue(ctx, s.db)
	if err != nil {
		return subscriptiondomain.AnalyticsSnapshot{}, err
	}
	byStatus, err := s.repo.CountByStatus(ctx, s.db)
	if err != nil {
		return subscriptiondomain.AnalyticsSnapshot{}, err
	}
	byTier, err := s.repo.CountByTier(ctx, s.db)
	if err != nil {
		return subscriptiondomain.AnalyticsSnapshot{}, err
	}
	churned, err := s.repo.CountCancellations(ctx, s.db, windowStart, windowEnd)
	if err != nil {
		return subscriptiondomain.AnalyticsSnapshot{}, err
	}

	return subscriptiondomain.AnalyticsSnapshot{
		MRR:            mrr,
		ARR:            mrr * 12,
		CountsByStatus: byStatus,
		CountsByTier:   byTier,
		Churned:        churned,
		WindowStart:    windowStart,
		WindowEnd:      windowEnd,
	}, nil
}
