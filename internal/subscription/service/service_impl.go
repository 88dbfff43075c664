package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/clock"
	"github.com/croplytics/croplytics/internal/config"
	discountdomain "github.com/croplytics/croplytics/internal/discount/domain"
	"github.com/croplytics/croplytics/internal/events"
	eventdomain "github.com/croplytics/croplytics/internal/events/domain"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          subscriptiondomain.Repository
	Plans         plandomain.Repository
	Discounts     discountdomain.Service
	Invoices      invoicedomain.Service
	Events        events.Publisher
	Audit         auditdomain.Service
	BillingConfig *config.BillingConfigHolder
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          subscriptiondomain.Repository
	plans         plandomain.Repository
	discounts     discountdomain.Service
	invoices      invoicedomain.Service
	events        events.Publisher
	audit         auditdomain.Service
	billingConfig *config.BillingConfigHolder
}

func NewService(p Params) subscriptiondomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("subscription.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		plans:         p.Plans,
		discounts:     p.Discounts,
		invoices:      p.Invoices,
		events:        p.Events,
		audit:         p.Audit,
		billingConfig: p.BillingConfig,
	}
}

func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	if req.TenantID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTenant
	}
	if req.TrialDays < 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTrialDays
	}
	cycle := req.BillingCycle
	if cycle == "" {
		cycle = plandomain.CycleMonthly
	}
	if !plandomain.ValidCycle(cycle) {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidCycle
	}

	plan, err := s.findPlan(ctx, req.PlanCode)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	now := s.clock.Now()
	months := plandomain.CycleMonths(cycle)
	basePrice := plan.PriceForCycle(cycle)

	sub := subscriptiondomain.Subscription{
		ID:                 s.genID.Generate(),
		TenantID:           req.TenantID,
		PlanID:             plan.ID,
		PlanCode:           plan.Code,
		Tier:               plan.Tier,
		Status:             subscriptiondomain.StatusActive,
		BillingCycle:       cycle,
		BillingCycleMonths: months,
		AutoRenew:          true,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, months, 0),
		BasePrice:          basePrice,
		PricingSnapshot:    pricingSnapshot(plan, cycle, basePrice),
		Limits:             planLimits(plan),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if req.AutoRenew != nil {
		sub.AutoRenew = *req.AutoRenew
	}
	if req.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, req.TrialDays)
		sub.Status = subscriptiondomain.StatusTrialing
		sub.TrialEndsAt = &trialEnd
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
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

		// First invoice, reduced by the optional discount code. Trials
		// start without one.
		if sub.Status == subscriptiondomain.StatusActive && basePrice > 0 {
			amount := basePrice
			if code := strings.TrimSpace(req.DiscountCode); code != "" {
				applied, err := s.discounts.ApplyTx(ctx, tx, discountdomain.ApplyRequest{
					Code:           code,
					TenantID:       sub.TenantID,
					SubscriptionID: &sub.ID,
					PlanCode:       sub.PlanCode,
					Amount:         amount,
				})
				if err != nil {
					return err
				}
				amount = applied.FinalAmount
			}
			if amount > 0 {
				if _, err := s.invoices.CreateTx(ctx, tx, invoicedomain.CreateInvoiceRequest{
					TenantID:       sub.TenantID,
					SubscriptionID: &sub.ID,
					Description:    "Subscription " + sub.PlanCode + " (" + string(sub.BillingCycle) + ")",
					Amount:         amount,
				}); err != nil {
					return err
				}
			}
		}

		return s.events.Emit(ctx, tx, sub.TenantID, eventdomain.EventSubscriptionCreated, map[string]any{
			"subscription_id": sub.ID.String(),
			"plan_code":       sub.PlanCode,
			"billing_cycle":   string(sub.BillingCycle),
		}, "subscription.created:"+sub.ID.String())
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.auditSubscription(ctx, sub, "subscription.created", map[string]any{
		"plan_code": sub.PlanCode,
		"status":    string(sub.Status),
	})
	s.log.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("plan_code", sub.PlanCode),
		zap.String("status", string(sub.Status)),
	)
	return sub, nil
}

func (s *Service) Get(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	subID, err := parseID(id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	sub, err := s.repo.FindByID(ctx, s.db, subID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if sub == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *sub, nil
}

func (s *Service) GetByTenant(ctx context.Context, tenantID snowflake.ID) (subscriptiondomain.Subscription, error) {
	if tenantID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTenant
	}

	sub, err := s.repo.FindByTenant(ctx, s.db, tenantID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if sub == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *sub, nil
}

func (s *Service) List(ctx context.Context, req subscriptiondomain.ListSubscriptionsRequest) ([]subscriptiondomain.Subscription, error) {
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) (subscriptiondomain.Subscription, error) {
	subID, err := parseID(req.SubscriptionID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var result subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if sub.Status.Terminal() {
			return subscriptiondomain.ErrNotCancelable
		}

		now := s.clock.Now()
		if req.AtPeriodEnd {
			endDate := sub.CurrentPeriodEnd
			sub.EndDate = &endDate
			sub.AutoRenew = false
		} else {
			sub.Status = subscriptiondomain.StatusCanceled
			sub.CancelledAt = &now
			endDate := now
			sub.EndDate = &endDate
		}
		sub.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}

		if err := s.events.Emit(ctx, tx, sub.TenantID, eventdomain.EventSubscriptionCanceled, map[string]any{
			"subscription_id": sub.ID.String(),
			"at_period_end":   req.AtPeriodEnd,
			"reason":          req.Reason,
		}, ""); err != nil {
			return err
		}

		result = *sub
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.auditSubscription(ctx, result, "subscription.canceled", map[string]any{
		"at_period_end": req.AtPeriodEnd,
		"reason":        req.Reason,
	})
	return result, nil
}

func (s *Service) Reactivate(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	subID, err := parseID(id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var result subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub, err := s.repo.FindByIDForUpdate(ctx, tx, subID)
		if err != nil {
			return err
		}
		if sub == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if sub.Status != subscriptiondomain.StatusCanceled {
			return subscriptiondomain.ErrNotCanceled
		}

		now := s.clock.Now()
		sub.Status = subscriptiondomain.StatusActive
		sub.CancelledAt = nil
		sub.EndDate = nil
		sub.AutoRenew = true
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = now.AddDate(0, sub.BillingCycleMonths, 0)
		sub.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, sub); err != nil {
			return err
		}

		if err := s.events.Emit(ctx, tx, sub.TenantID, eventdomain.EventSubscriptionReactivated, map[string]any{
			"subscription_id": sub.ID.String(),
		}, ""); err != nil {
			return err
		}

		result = *sub
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.auditSubscription(ctx, result, "subscription.reactivated", nil)
	return result, nil
}

func (s *Service) findPlan(ctx context.Context, code string) (*plandomain.PlanDefinition, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, plandomain.ErrInvalidPlanCode
	}

	plan, err := s.plans.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}
	if plan.Deprecated {
		return nil, plandomain.ErrPlanDeprecated
	}
	return plan, nil
}

func (s *Service) auditSubscription(ctx context.Context, sub subscriptiondomain.Subscription, action string, metadata map[string]any) {
	targetID := sub.ID.String()
	if err := s.audit.AuditLog(ctx, &sub.TenantID, string(auditdomain.ActorTypeSystem), nil,
		action, "subscription", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func pricingSnapshot(plan *plandomain.PlanDefinition, cycle plandomain.BillingCycle, basePrice int64) datatypes.JSONMap {
	return datatypes.JSONMap{
		"plan_id":       plan.ID.String(),
		"plan_code":     plan.Code,
		"tier":          string(plan.Tier),
		"billing_cycle": string(cycle),
		"base_price":    basePrice,
		"monthly_price": plan.MonthlyPrice,
	}
}

func planLimits(plan *plandomain.PlanDefinition) datatypes.JSONMap {
	return datatypes.JSONMap{
		"max_users":   plan.MaxUsers,
		"max_sensors": plan.MaxSensors,
		"max_farms":   plan.MaxFarms,
		"storage_gb":  plan.StorageGB,
	}
}

func parseID(id string) (snowflake.ID, error) {
	raw, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || raw == 0 {
		return 0, subscriptiondomain.ErrInvalidID
	}
	return snowflake.ID(raw), nil
}
