package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateDiscountRequest struct {
	Code            string       `json:"code"`
	Description     *string      `json:"description,omitempty"`
	Type            DiscountType `json:"type"`
	PercentOff      *float64     `json:"percent_off,omitempty"`
	AmountOff       *int64       `json:"amount_off,omitempty"`
	ValidFrom       *time.Time   `json:"valid_from,omitempty"`
	ValidUntil      *time.Time   `json:"valid_until,omitempty"`
	MaxRedemptions  *int         `json:"max_redemptions,omitempty"`
	PerTenantLimit  *int         `json:"per_tenant_limit,omitempty"`
	ApplicablePlans []string     `json:"applicable_plans,omitempty"`
	MinAmount       int64        `json:"min_amount"`
}

// ValidateRequest carries everything needed to decide whether a code applies.
type ValidateRequest struct {
	Code     string
	TenantID snowflake.ID
	PlanCode string
	Amount   int64
}

// ApplyRequest atomically claims a redemption slot and records the redemption.
type ApplyRequest struct {
	Code           string
	TenantID       snowflake.ID
	SubscriptionID *snowflake.ID
	PlanCode       string
	Amount         int64
}

type ApplyResult struct {
	Code           DiscountCode `json:"code"`
	AmountApplied  int64        `json:"amount_applied"`
	FinalAmount    int64        `json:"final_amount"`
}

type Service interface {
	Create(ctx context.Context, req CreateDiscountRequest) (DiscountCode, error)
	GetByCode(ctx context.Context, code string) (DiscountCode, error)
	List(ctx context.Context, activeOnly bool) ([]DiscountCode, error)
	Deactivate(ctx context.Context, code string) (DiscountCode, error)
	Validate(ctx context.Context, req ValidateRequest) (DiscountCode, error)
	Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, req ApplyRequest) (ApplyResult, error)
}

var (
	ErrCodeNotFound         = errors.New("discount_code_not_found")
	ErrCodeInactive         = errors.New("discount_code_inactive")
	ErrCodeNotStarted       = errors.New("discount_code_not_started")
	ErrCodeExpired          = errors.New("discount_code_expired")
	ErrRedemptionCapReached = errors.New("redemption_cap_reached")
	ErrTenantCapReached     = errors.New("tenant_redemption_cap_reached")
	ErrPlanNotEligible      = errors.New("plan_not_eligible")
	ErrAmountBelowMinimum   = errors.New("amount_below_minimum")
	ErrInvalidCode          = errors.New("invalid_discount_code")
	ErrInvalidDiscountValue = errors.New("invalid_discount_value")
	ErrDuplicateCode        = errors.New("duplicate_discount_code")
)
