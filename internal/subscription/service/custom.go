package service

import (
	"context"

	eventdomain "github.com/croplytics/croplytics/internal/events/domain"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateCustom starts a subscription from a negotiated custom plan. The
// pricing snapshot comes from the proposal's accepted quote, not from a plan
// definition.
func (s *Service) CreateCustom(ctx context.Context, req subscriptiondomain.CreateCustomRequest) (subscriptiondomain.Subscription, error) {
	if req.TenantID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTenant
	}
	cycle, ok := plandomain.CycleForMonths(req.BillingCycleMonths)
	if !ok {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidCycle
	}

	now := s.clock.Now()
	sub := subscriptiondomain.Subscription{
		ID:                 s.genID.Generate(),
		TenantID:           req.TenantID,
		PlanID:             req.CustomPlanID,
		PlanCode:           "CUSTOM",
		Tier:               plandomain.TierCustom,
		Status:             subscriptiondomain.StatusActive,
		BillingCycle:       cycle,
		BillingCycleMonths: req.BillingCycleMonths,
		AutoRenew:          true,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, req.BillingCycleMonths, 0),
		BasePrice:          req.BasePrice,
		Limits:             datatypes.JSONMap{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if len(req.PricingSnapshot) > 0 {
		sub.PricingSnapshot = datatypes.JSONMap(req.PricingSnapshot)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByTenant(ctx, tx, req.TenantID)
		if err != nil {
			return err
		}
		if existing != nil && !existing.Status.Terminal() {
			return subscriptiondomain.ErrTenantHasActive
		}

		if err := s.repo.Insert(ctx, tx, &sub); err != nil {
			return err
		}
		if err := s.repo.MirrorTenantBilling(ctx, tx, sub.TenantID, sub.Tier, sub.Limits); err != nil {
			return err
		}

		if sub.BasePrice > 0 {
			if _, err := s.invoices.CreateTx(ctx, tx, invoicedomain.CreateInvoiceRequest{
				TenantID:       sub.TenantID,
				SubscriptionID: &sub.ID,
				Description:    "Custom plan subscription (" + string(sub.BillingCycle) + ")",
				Amount:         sub.BasePrice,
			}); err != nil {
				return err
			}
		}

		return s.events.Emit(ctx, tx, sub.TenantID, eventdomain.EventSubscriptionCreated, map[string]any{
			"subscription_id": sub.ID.String(),
			"custom_plan_id":  req.CustomPlanID.String(),
			"billing_cycle":   string(sub.BillingCycle),
		}, "subscription.created:"+sub.ID.String())
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.auditSubscription(ctx, sub, "subscription.created", map[string]any{
		"custom_plan_id": req.CustomPlanID.String(),
	})
	s.log.Info("custom subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("custom_plan_id", req.CustomPlanID.String()),
	)
	return sub, nil
}
