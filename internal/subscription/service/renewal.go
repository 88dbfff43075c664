package service

import (
	"context"
	"fmt"

	eventdomain "github.com/croplytics/croplytics/internal/events/domain"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProcessRenewals rolls renewing subscriptions into their next billing
// period and raises the period invoice. Periods advance with calendar month
// arithmetic per time.AddDate, including its normalization of short months.
// Each subscription renews in its own transaction; a failure is recorded
// and the batch moves on.
func (s *Service) ProcessRenewals(ctx context.Context) (subscriptiondomain.SweepReport, error) {
	now := s.clock.Now()
	due, err := s.repo.ListDueForRenewal(ctx, s.db, now, 500)
	if err != nil {
		return subscriptiondomain.SweepReport{}, err
	}

	var report subscriptiondomain.SweepReport
	for i := range due {
		sub := due[i]
		if err := s.renewOne(ctx, &sub); err != nil {
			s.log.Warn("renewal failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err),
			)
			report.Errors = append(report.Errors, fmt.Errorf("subscription %s: %w", sub.ID.String(), err))
			continue
		}
		report.Processed++
	}

	if report.Processed > 0 || len(report.Errors) > 0 {
		s.log.Info("renewal sweep finished",
			zap.Int("processed", report.Processed),
			zap.Int("failed", len(report.Errors)),
		)
	}
	return report, nil
}

func (s *Service) renewOne(ctx context.Context, sub *subscriptiondomain.Subscription) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.repo.FindByIDForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		// Someone else may have renewed or canceled between the scan and
		// the lock.
		if !locked.Billable() || !locked.AutoRenew {
			return nil
		}

		now := s.clock.Now()
		if locked.CurrentPeriodEnd.After(now) {
			return nil
		}

		locked.CurrentPeriodStart = locked.CurrentPeriodEnd
		locked.CurrentPeriodEnd = locked.CurrentPeriodEnd.AddDate(0, locked.BillingCycleMonths, 0)
		if locked.Status == subscriptiondomain.StatusTrialing {
			locked.Status = subscriptiondomain.StatusActive
			locked.TrialEndsAt = nil
		}
		locked.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, locked); err != nil {
			return err
		}

		if locked.BasePrice > 0 {
			if _, err := s.invoices.CreateTx(ctx, tx, invoicedomain.CreateInvoiceRequest{
				TenantID:       locked.TenantID,
				SubscriptionID: &locked.ID,
				Description: fmt.Sprintf("Renewal %s (%s to %s)",
					locked.PlanCode,
					locked.CurrentPeriodStart.Format("2006-01-02"),
					locked.CurrentPeriodEnd.Format("2006-01-02"),
				),
				Amount: locked.BasePrice,
			}); err != nil {
				return err
			}
		}

		dedupe := fmt.Sprintf("subscription.renewed:%s:%s",
			locked.ID.String(), locked.CurrentPeriodStart.Format("2006-01-02"))
		if err := s.events.Emit(ctx, tx, locked.TenantID, eventdomain.EventSubscriptionRenewed, map[string]any{
			"subscription_id": locked.ID.String(),
			"period_start":    locked.CurrentPeriodStart,
			"period_end":      locked.CurrentPeriodEnd,
		}, dedupe); err != nil {
			return err
		}

		*sub = *locked
		return nil
	})
}

// ProcessExpirations moves non-renewing subscriptions past their period end
// to EXPIRED.
func (s *Service) ProcessExpirations(ctx context.Context) (subscriptiondomain.SweepReport, error) {
	now := s.clock.Now()
	due, err := s.repo.ListDueForExpiration(ctx, s.db, now, 500)
	if err != nil {
		return subscriptiondomain.SweepReport{}, err
	}

	var report subscriptiondomain.SweepReport
	for i := range due {
		sub := due[i]
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			locked, err := s.repo.FindByIDForUpdate(ctx, tx, sub.ID)
			if err != nil {
				return err
			}
			if locked == nil || locked.Status.Terminal() {
				return nil
			}

			locked.Status = subscriptiondomain.StatusExpired
			locked.UpdatedAt = s.clock.Now()
			return s.repo.Update(ctx, tx, locked)
		})
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("subscription %s: %w", sub.ID.String(), err))
			continue
		}
		report.Processed++
	}
	return report, nil
}
