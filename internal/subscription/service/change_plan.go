package service

import (
	"context"
	"strings"
	"time"

	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	discountdomain "github.com/croplytics/croplytics/internal/discount/domain"
	eventdomain "github.com/croplytics/croplytics/internal/events/domain"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ChangePlan moves a subscription to a new plan, prorating the price delta
// over the remainder of the current period. The subscription row is locked
// for the whole transaction; subscription update, tenant mirror, invoice and
// audit row land together or not at all.
func (s *Service) ChangePlan(ctx context.Context, req subscriptiondomain.ChangePlanRequest) (subscriptiondomain.ChangePlanResult, error) {
	subID, err := parseID(req.SubscriptionID)
	if err != nil {
		return subscriptiondomain.ChangePlanResult{}, err
	}
	newPlan, err := s.findPlan(ctx, req.NewPlanCode)
	if err != nil {
		return subscriptiondomain.ChangePlanResult{}, err
	}

	var result subscriptiondomain.ChangePlanResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if !sub.Billable() {
			return subscriptiondomain.ErrNotActive
		}

		cycle := sub.BillingCycle
		if req.BillingCycle != "" {
			if !plandomain.ValidCycle(req.BillingCycle) {
				return subscriptiondomain.ErrInvalidCycle
			}
			cycle = req.BillingCycle
		}
		if sub.PlanCode == newPlan.Code && cycle == sub.BillingCycle {
			return subscriptiondomain.ErrSamePlan
		}

		now := s.clock.Now()
		newPrice := newPlan.PriceForCycle(cycle)
		prorated := ProratedAmount(sub.BasePrice, newPrice, now, sub.CurrentPeriodStart, sub.CurrentPeriodEnd)

		invoiceAmount := prorated
		var discountApplied int64
		if code := strings.TrimSpace(req.DiscountCode); code != "" && invoiceAmount > 0 {
			applied, err := s.discounts.ApplyTx(ctx, tx, discountdomain.ApplyRequest{
				Code:           code,
				TenantID:       sub.TenantID,
				SubscriptionID: &sub.ID,
				PlanCode:       newPlan.Code,
				Amount:         invoiceAmount,
			})
			if err != nil {
				return err
			}
			discountApplied = applied.AmountApplied
			invoiceAmount = applied.FinalAmount
		}
		if invoiceAmount < 0 {
			invoiceAmount = 0
		}

		previousPlan := sub.PlanCode
		months := plandomain.CycleMonths(cycle)
		sub.PlanID = newPlan.ID
		sub.PlanCode = newPlan.Code
		sub.Tier = newPlan.Tier
		sub.BillingCycle = cycle
		sub.BillingCycleMonths = months
		sub.BasePrice = newPrice
		sub.PricingSnapshot = pricingSnapshot(newPlan, cycle, newPrice)
		sub.Limits = planLimits(newPlan)
		sub.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}
		if err := s.repo.MirrorTenantBilling(ctx, tx, sub.TenantID, sub.Tier, sub.Limits); err != nil {
			return err
		}

		var invoiceNumber string
		if invoiceAmount > 0 && req.EffectiveImmediately {
			created, err := s.invoices.CreateTx(ctx, tx, invoicedomain.CreateInvoiceRequest{
				TenantID:       sub.TenantID,
				SubscriptionID: &sub.ID,
				Description:    "Plan change " + previousPlan + " to " + sub.PlanCode + " (prorated)",
				Amount:         invoiceAmount,
			})
			if err != nil {
				return err
			}
			invoiceNumber = created.Number
		}

		if err := s.events.Emit(ctx, tx, sub.TenantID, eventdomain.EventSubscriptionPlanChanged, map[string]any{
			"subscription_id": sub.ID.String(),
			"previous_plan":   previousPlan,
			"new_plan":        sub.PlanCode,
			"prorated_amount": prorated,
		}, ""); err != nil {
			return err
		}

		targetID := sub.ID.String()
		metadata := map[string]any{
			"previous_plan":   previousPlan,
			"new_plan":        sub.PlanCode,
			"prorated_amount": prorated,
			"invoice_amount":  invoiceAmount,
		}
		if err := s.audit.AuditLog(ctx, &sub.TenantID, string(auditdomain.ActorTypeSystem), nil,
			"subscription.plan_changed", "subscription", &targetID, metadata); err != nil {
			return err
		}

		result = subscriptiondomain.ChangePlanResult{
			Subscription:    *sub,
			ProratedAmount:  prorated,
			DiscountApplied: discountApplied,
			InvoiceAmount:   invoiceAmount,
			InvoiceNumber:   invoiceNumber,
		}
		return nil
	})
	if err != nil {
		return subscriptiondomain.ChangePlanResult{}, err
	}

	s.log.Info("plan changed",
		zap.String("subscription_id", result.Subscription.ID.String()),
		zap.String("new_plan", result.Subscription.PlanCode),
		zap.Int64("prorated_amount", result.ProratedAmount),
	)
	return result, nil
}

// ProratedAmount charges (or credits) the price delta for the unused share
// of the current period: round((new − current) × daysRemaining / cycleDays).
// A period already over yields zero.
func ProratedAmount(currentPrice, newPrice int64, now, periodStart, periodEnd time.Time) int64 {
	cycleDays := int64(periodEnd.Sub(periodStart).Hours() / 24)
	if cycleDays <= 0 {
		return 0
	}
	daysRemaining := int64(periodEnd.Sub(now).Hours() / 24)
	if daysRemaining <= 0 {
		return 0
	}
	if daysRemaining > cycleDays {
		daysRemaining = cycleDays
	}

	return decimal.NewFromInt(newPrice - currentPrice).
		Mul(decimal.NewFromInt(daysRemaining)).
		Div(decimal.NewFromInt(cycleDays)).
		Round(0).
		IntPart()
}
