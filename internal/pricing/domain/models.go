// Package domain contains the quote types produced by the pricing calculator.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	modulepricingdomain "github.com/croplytics/croplytics/internal/modulepricing/domain"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
)

// ModuleSelection is one module the caller wants priced, with the quantities
// consumed per metric.
type ModuleSelection struct {
	ModuleCode string                                         `json:"module_code"`
	Quantities map[modulepricingdomain.PricingMetric]int64 `json:"quantities"`
}

type QuoteRequest struct {
	TenantID     snowflake.ID           `json:"tenant_id,omitempty"`
	Tier         plandomain.PlanTier    `json:"tier"`
	BillingCycle plandomain.BillingCycle `json:"billing_cycle"`
	Selections   []ModuleSelection      `json:"selections"`
	DiscountCode string                 `json:"discount_code,omitempty"`
}

// QuoteLine is one metric of one module, with every intermediate retained so
// a reviewer can re-derive the total by hand.
type QuoteLine struct {
	Metric    modulepricingdomain.PricingMetric `json:"metric"`
	Quantity  int64                             `json:"quantity"`
	Included  int64                             `json:"included"`
	Billable  int64                             `json:"billable"`
	UnitPrice int64                             `json:"unit_price"`
	LineTotal int64                             `json:"line_total"`
}

type ModuleQuote struct {
	ModuleCode string      `json:"module_code"`
	ModuleName string      `json:"module_name"`
	Lines      []QuoteLine `json:"lines"`
	Subtotal   int64       `json:"subtotal"`
}

// Quote is a full price breakdown. Amounts are cents. SkippedModules lists
// modules dropped because no active pricing version covered them.
type Quote struct {
	Tier                plandomain.PlanTier     `json:"tier"`
	BillingCycle        plandomain.BillingCycle `json:"billing_cycle"`
	CycleMonths         int                     `json:"cycle_months"`
	TierMultiplier      float64                 `json:"tier_multiplier"`
	Modules             []ModuleQuote           `json:"modules"`
	MonthlySubtotal     int64                   `json:"monthly_subtotal"`
	CycleSubtotal       int64                   `json:"cycle_subtotal"`
	CycleDiscountRate   float64                 `json:"cycle_discount_rate"`
	CycleDiscountAmount int64                   `json:"cycle_discount_amount"`
	DiscountCode        string                  `json:"discount_code,omitempty"`
	CodeDiscountAmount  int64                   `json:"code_discount_amount"`
	FinalAmount         int64                   `json:"final_amount"`
	SkippedModules      []string                `json:"skipped_modules,omitempty"`
}

type Service interface {
	Calculate(ctx context.Context, req QuoteRequest) (Quote, error)
}

var (
	ErrInvalidTier     = errors.New("invalid_plan_tier")
	ErrInvalidCycle    = errors.New("invalid_billing_cycle")
	ErrInvalidQuantity = errors.New("invalid_selection_quantity")
	ErrNoSelections    = errors.New("empty_module_selection")
)
