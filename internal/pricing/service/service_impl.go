package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/croplytics/croplytics/internal/clock"
	"github.com/croplytics/croplytics/internal/config"
	discountdomain "github.com/croplytics/croplytics/internal/discount/domain"
	modulepricingdomain "github.com/croplytics/croplytics/internal/modulepricing/domain"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	pricingdomain "github.com/croplytics/croplytics/internal/pricing/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	BillingConfig *config.BillingConfigHolder
	ModulePricing modulepricingdomain.Service
	Discounts     discountdomain.Service
}

type Service struct {
	log           *zap.Logger
	clock         clock.Clock
	billingConfig *config.BillingConfigHolder
	modulePricing modulepricingdomain.Service
	discounts     discountdomain.Service
}

func NewService(p Params) pricingdomain.Service {
	return &Service{
		log:           p.Log.Named("pricing.service"),
		clock:         p.Clock,
		billingConfig: p.BillingConfig,
		modulePricing: p.ModulePricing,
		discounts:     p.Discounts,
	}
}

// Calculate prices a module selection for a tier and billing cycle. Modules
// without an active pricing version are skipped and reported, not fatal.
func (s *Service) Calculate(ctx context.Context, req pricingdomain.QuoteRequest) (pricingdomain.Quote, error) {
	if !plandomain.ValidTier(req.Tier) {
		return pricingdomain.Quote{}, pricingdomain.ErrInvalidTier
	}
	if !plandomain.ValidCycle(req.BillingCycle) {
		return pricingdomain.Quote{}, pricingdomain.ErrInvalidCycle
	}
	if len(req.Selections) == 0 {
		return pricingdomain.Quote{}, pricingdomain.ErrNoSelections
	}
	for _, sel := range req.Selections {
		for _, qty := range sel.Quantities {
			if qty < 0 {
				return pricingdomain.Quote{}, pricingdomain.ErrInvalidQuantity
			}
		}
	}

	billing := s.billingConfig.Get()
	multiplier := billing.TierMultiplier(string(req.Tier))
	cycleMonths := plandomain.CycleMonths(req.BillingCycle)
	cycleDiscountRate := billing.CycleDiscount(string(req.BillingCycle))
	now := s.clock.Now()

	quote := pricingdomain.Quote{
		Tier:              req.Tier,
		BillingCycle:      req.BillingCycle,
		CycleMonths:       cycleMonths,
		TierMultiplier:    multiplier,
		CycleDiscountRate: cycleDiscountRate,
	}

	multiplierDec := decimal.NewFromFloat(multiplier)
	var monthlySubtotal int64

	for _, sel := range req.Selections {
		moduleCode := strings.ToUpper(strings.TrimSpace(sel.ModuleCode))
		if moduleCode == "" {
			continue
		}

		version, err := s.modulePricing.GetActive(ctx, moduleCode, now)
		if err != nil {
			if errors.Is(err, modulepricingdomain.ErrPricingNotFound) {
				s.log.Warn("no active pricing for module, skipping",
					zap.String("module_code", moduleCode),
				)
				quote.SkippedModules = append(quote.SkippedModules, moduleCode)
				continue
			}
			return pricingdomain.Quote{}, err
		}

		prices, err := version.MetricPrices()
		if err != nil {
			return pricingdomain.Quote{}, err
		}

		moduleQuote := pricingdomain.ModuleQuote{
			ModuleCode: moduleCode,
			ModuleName: version.ModuleName,
		}
		for _, price := range prices {
			quantity := sel.Quantities[price.Metric]
			billable := quantity - price.IncludedQuantity
			if billable < 0 {
				billable = 0
			}
			if price.Metric == modulepricingdomain.MetricBasePrice {
				billable = 1
			}

			lineTotal := decimal.NewFromInt(billable).
				Mul(decimal.NewFromInt(price.UnitPrice)).
				Mul(multiplierDec).
				Round(0).
				IntPart()

			moduleQuote.Lines = append(moduleQuote.Lines, pricingdomain.QuoteLine{
				Metric:    price.Metric,
				Quantity:  quantity,
				Included:  price.IncludedQuantity,
				Billable:  billable,
				UnitPrice: price.UnitPrice,
				LineTotal: lineTotal,
			})
			moduleQuote.Subtotal += lineTotal
		}
		sort.Slice(moduleQuote.Lines, func(i, j int) bool {
			return moduleQuote.Lines[i].Metric < moduleQuote.Lines[j].Metric
		})

		quote.Modules = append(quote.Modules, moduleQuote)
		monthlySubtotal += moduleQuote.Subtotal
	}

	quote.MonthlySubtotal = monthlySubtotal
	quote.CycleSubtotal = monthlySubtotal * int64(cycleMonths)
	quote.CycleDiscountAmount = decimal.NewFromInt(quote.CycleSubtotal).
		Mul(decimal.NewFromFloat(cycleDiscountRate)).
		Round(0).
		IntPart()

	total := quote.CycleSubtotal - quote.CycleDiscountAmount

	if code := strings.TrimSpace(req.DiscountCode); code != "" {
		planCode := string(req.Tier)
		discount, err := s.discounts.Validate(ctx, discountdomain.ValidateRequest{
			Code:     code,
			TenantID: req.TenantID,
			PlanCode: planCode,
			Amount:   total,
		})
		if err != nil {
			return pricingdomain.Quote{}, err
		}
		quote.DiscountCode = discount.Code
		quote.CodeDiscountAmount = discount.CalculateDiscount(total)
		total -= quote.CodeDiscountAmount
	}

	if total < 0 {
		total = 0
	}
	quote.FinalAmount = total

	return quote, nil
}
