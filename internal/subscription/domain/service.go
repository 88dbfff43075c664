package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
)

type CreateSubscriptionRequest struct {
	TenantID     snowflake.ID            `json:"tenant_id"`
	PlanCode     string                  `json:"plan_code"`
	BillingCycle plandomain.BillingCycle `json:"billing_cycle"`
	AutoRenew    *bool                   `json:"auto_renew,omitempty"`
	TrialDays    int                     `json:"trial_days,omitempty"`
	DiscountCode string                  `json:"discount_code,omitempty"`
}

type CancelRequest struct {
	SubscriptionID string `json:"subscription_id"`
	// AtPeriodEnd keeps the subscription billable until the period closes.
	AtPeriodEnd bool   `json:"at_period_end"`
	Reason      string `json:"reason,omitempty"`
}

type ChangePlanRequest struct {
	SubscriptionID       string                  `json:"subscription_id"`
	NewPlanCode          string                  `json:"new_plan_code"`
	BillingCycle         plandomain.BillingCycle `json:"billing_cycle,omitempty"`
	EffectiveImmediately bool                    `json:"effective_immediately"`
	DiscountCode         string                  `json:"discount_code,omitempty"`
}

// ChangePlanResult reports the proration outcome. ProratedAmount keeps its
// sign: negative means a downgrade credit, which is never refunded.
type ChangePlanResult struct {
	Subscription    Subscription `json:"subscription"`
	ProratedAmount  int64        `json:"prorated_amount"`
	DiscountApplied int64        `json:"discount_applied"`
	InvoiceAmount   int64        `json:"invoice_amount"`
	InvoiceNumber   string       `json:"invoice_number,omitempty"`
}

type ListSubscriptionsRequest struct {
	Status Status
	Tier   plandomain.PlanTier
	Limit  int
}

// SweepReport summarizes one renewal or expiration pass. Errors holds
// per-subscription failures; the batch keeps going past a bad row.
type SweepReport struct {
	Processed int     `json:"processed"`
	Errors    []error `json:"-"`
}

// AnalyticsSnapshot aggregates revenue metrics. Amounts are cents.
type AnalyticsSnapshot struct {
	MRR            int64                        `json:"mrr"`
	ARR            int64                        `json:"arr"`
	CountsByStatus map[Status]int64             `json:"counts_by_status"`
	CountsByTier   map[plandomain.PlanTier]int64 `json:"counts_by_tier"`
	Churned        int64                        `json:"churned"`
	WindowStart    time.Time                    `json:"window_start"`
	WindowEnd      time.Time                    `json:"window_end"`
}

// CreateCustomRequest starts a subscription from a negotiated custom plan
// instead of a published plan definition.
type CreateCustomRequest struct {
	TenantID           snowflake.ID   `json:"tenant_id"`
	CustomPlanID       snowflake.ID   `json:"custom_plan_id"`
	BillingCycleMonths int            `json:"billing_cycle_months"`
	BasePrice          int64          `json:"base_price"`
	PricingSnapshot    map[string]any `json:"pricing_snapshot,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (Subscription, error)
	CreateCustom(ctx context.Context, req CreateCustomRequest) (Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
	GetByTenant(ctx context.Context, tenantID snowflake.ID) (Subscription, error)
	List(ctx context.Context, req ListSubscriptionsRequest) ([]Subscription, error)
	Cancel(ctx context.Context, req CancelRequest) (Subscription, error)
	Reactivate(ctx context.Context, id string) (Subscription, error)
	ChangePlan(ctx context.Context, req ChangePlanRequest) (ChangePlanResult, error)
	// ProcessRenewals advances periods of renewing subscriptions that have
	// run past their period end.
	ProcessRenewals(ctx context.Context) (SweepReport, error)
	// ProcessExpirations flips non-renewing subscriptions past period end
	// to EXPIRED.
	ProcessExpirations(ctx context.Context) (SweepReport, error)
	Analytics(ctx context.Context, windowStart, windowEnd time.Time) (AnalyticsSnapshot, error)
}

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidID            = errors.New("invalid_subscription_id")
	ErrTenantHasActive      = errors.New("tenant_already_subscribed")
	ErrNotCancelable        = errors.New("subscription_not_cancelable")
	ErrNotCanceled          = errors.New("subscription_not_canceled")
	ErrNotActive            = errors.New("subscription_not_active")
	ErrSamePlan             = errors.New("plan_unchanged")
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidCycle         = errors.New("invalid_billing_cycle")
	ErrInvalidTrialDays     = errors.New("invalid_trial_days")
)
