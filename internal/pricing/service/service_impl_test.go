package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/croplytics/croplytics/internal/clock"
	"github.com/croplytics/croplytics/internal/config"
	discountdomain "github.com/croplytics/croplytics/internal/discount/domain"
	modulepricingdomain "github.com/croplytics/croplytics/internal/modulepricing/domain"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	pricingdomain "github.com/croplytics/croplytics/internal/pricing/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type mockModulePricingSvc struct {
	mock.Mock
}

func (m *mockModulePricingSvc) Create(ctx context.Context, req modulepricingdomain.CreatePricingRequest) (modulepricingdomain.ModulePricing, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(modulepricingdomain.ModulePricing), args.Error(1)
}

func (m *mockModulePricingSvc) GetActive(ctx context.Context, moduleCode string, at time.Time) (modulepricingdomain.ModulePricing, error) {
	args := m.Called(ctx, moduleCode, at)
	return args.Get(0).(modulepricingdomain.ModulePricing), args.Error(1)
}

func (m *mockModulePricingSvc) ListActive(ctx context.Context) ([]modulepricingdomain.ModulePricing, error) {
	args := m.Called(ctx)
	return args.Get(0).([]modulepricingdomain.ModulePricing), args.Error(1)
}

func (m *mockModulePricingSvc) History(ctx context.Context, moduleCode string) ([]modulepricingdomain.ModulePricing, error) {
	args := m.Called(ctx, moduleCode)
	return args.Get(0).([]modulepricingdomain.ModulePricing), args.Error(1)
}

func (m *mockModulePricingSvc) Deactivate(ctx context.Context, moduleCode string) error {
	args := m.Called(ctx, moduleCode)
	return args.Error(0)
}

type mockDiscountSvc struct {
	mock.Mock
}

func (m *mockDiscountSvc) Create(ctx context.Context, req discountdomain.CreateDiscountRequest) (discountdomain.DiscountCode, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(discountdomain.DiscountCode), args.Error(1)
}

func (m *mockDiscountSvc) GetByCode(ctx context.Context, code string) (discountdomain.DiscountCode, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(discountdomain.DiscountCode), args.Error(1)
}

func (m *mockDiscountSvc) List(ctx context.Context, activeOnly bool) ([]discountdomain.DiscountCode, error) {
	args := m.Called(ctx, activeOnly)
	return args.Get(0).([]discountdomain.DiscountCode), args.Error(1)
}

func (m *mockDiscountSvc) Deactivate(ctx context.Context, code string) (discountdomain.DiscountCode, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(discountdomain.DiscountCode), args.Error(1)
}

func (m *mockDiscountSvc) Validate(ctx context.Context, req discountdomain.ValidateRequest) (discountdomain.DiscountCode, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(discountdomain.DiscountCode), args.Error(1)
}

func (m *mockDiscountSvc) Apply(ctx context.Context, req discountdomain.ApplyRequest) (discountdomain.ApplyResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(discountdomain.ApplyResult), args.Error(1)
}

func (m *mockDiscountSvc) ApplyTx(ctx context.Context, tx *gorm.DB, req discountdomain.ApplyRequest) (discountdomain.ApplyResult, error) {
	args := m.Called(ctx, tx, req)
	return args.Get(0).(discountdomain.ApplyResult), args.Error(1)
}

func pricingVersion(t *testing.T, moduleCode, moduleName string, prices []modulepricingdomain.MetricPrice) modulepricingdomain.ModulePricing {
	t.Helper()
	encoded, err := json.Marshal(prices)
	require.NoError(t, err)
	return modulepricingdomain.ModulePricing{
		ID:         1,
		ModuleCode: moduleCode,
		ModuleName: moduleName,
		Prices:     datatypes.JSON(encoded),
		IsActive:   true,
	}
}

func newPricingService(modulePricing modulepricingdomain.Service, discounts discountdomain.Service) pricingdomain.Service {
	return NewService(Params{
		Log:           zap.NewNop(),
		Clock:         clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		BillingConfig: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		ModulePricing: modulePricing,
		Discounts:     discounts,
	})
}

func TestCalculate_StarterMonthly(t *testing.T) {
	modulePricing := new(mockModulePricingSvc)
	modulePricing.On("GetActive", mock.Anything, "FARM_MANAGEMENT", mock.Anything).Return(
		pricingVersion(t, "FARM_MANAGEMENT", "Farm Management", []modulepricingdomain.MetricPrice{
			{Metric: modulepricingdomain.MetricBasePrice, UnitPrice: 2000},
			{Metric: modulepricingdomain.MetricPerUser, UnitPrice: 1000, IncludedQuantity: 2},
		}), nil)

	svc := newPricingService(modulePricing, new(mockDiscountSvc))
	quote, err := svc.Calculate(context.Background(), pricingdomain.QuoteRequest{
		Tier:         plandomain.TierStarter,
		BillingCycle: plandomain.CycleMonthly,
		Selections: []pricingdomain.ModuleSelection{
			{
				ModuleCode: "FARM_MANAGEMENT",
				Quantities: map[modulepricingdomain.PricingMetric]int64{
					modulepricingdomain.MetricPerUser: 5,
				},
			},
		},
	})
	require.NoError(t, err)

	// base 2000 plus 3 billable users at 1000 each, multiplier 1.0
	assert.Equal(t, int64(5000), quote.MonthlySubtotal)
	assert.Equal(t, int64(5000), quote.CycleSubtotal)
	assert.Equal(t, int64(0), quote.CycleDiscountAmount)
	assert.Equal(t, int64(5000), quote.FinalAmount)

	require.Len(t, quote.Modules, 1)
	require.Len(t, quote.Modules[0].Lines, 2)
	perUser := quote.Modules[0].Lines[1]
	assert.Equal(t, modulepricingdomain.MetricPerUser, perUser.Metric)
	assert.Equal(t, int64(3), perUser.Billable)
	assert.Equal(t, int64(3000), perUser.LineTotal)
}

func TestCalculate_ProfessionalAnnual(t *testing.T) {
	modulePricing := new(mockModulePricingSvc)
	modulePricing.On("GetActive", mock.Anything, "SENSOR_MONITORING", mock.Anything).Return(
		pricingVersion(t, "SENSOR_MONITORING", "Sensor Monitoring", []modulepricingdomain.MetricPrice{
			{Metric: modulepricingdomain.MetricBasePrice, UnitPrice: 4000},
		}), nil)

	svc := newPricingService(modulePricing, new(mockDiscountSvc))
	quote, err := svc.Calculate(context.Background(), pricingdomain.QuoteRequest{
		Tier:         plandomain.TierProfessional,
		BillingCycle: plandomain.CycleAnnual,
		Selections: []pricingdomain.ModuleSelection{
			{ModuleCode: "SENSOR_MONITORING"},
		},
	})
	require.NoError(t, err)

	// base 4000 at multiplier 1.5 is 6000 monthly, 72000 per year,
	// minus the 15 percent annual discount
	assert.Equal(t, int64(6000), quote.MonthlySubtotal)
	assert.Equal(t, 12, quote.CycleMonths)
	assert.Equal(t, int64(72000), quote.CycleSubtotal)
	assert.Equal(t, int64(10800), quote.CycleDiscountAmount)
	assert.Equal(t, int64(61200), quote.FinalAmount)
}

func TestCalculate_UnpricedModuleIsSkipped(t *testing.T) {
	modulePricing := new(mockModulePricingSvc)
	modulePricing.On("GetActive", mock.Anything, "FARM_MANAGEMENT", mock.Anything).Return(
		pricingVersion(t, "FARM_MANAGEMENT", "Farm Management", []modulepricingdomain.MetricPrice{
			{Metric: modulepricingdomain.MetricBasePrice, UnitPrice: 2000},
		}), nil)
	modulePricing.On("GetActive", mock.Anything, "DRONE_IMAGERY", mock.Anything).Return(
		modulepricingdomain.ModulePricing{}, modulepricingdomain.ErrPricingNotFound)

	svc := newPricingService(modulePricing, new(mockDiscountSvc))
	quote, err := svc.Calculate(context.Background(), pricingdomain.QuoteRequest{
		Tier:         plandomain.TierStarter,
		BillingCycle: plandomain.CycleMonthly,
		Selections: []pricingdomain.ModuleSelection{
			{ModuleCode: "FARM_MANAGEMENT"},
			{ModuleCode: "DRONE_IMAGERY"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"DRONE_IMAGERY"}, quote.SkippedModules)
	assert.Len(t, quote.Modules, 1)
	assert.Equal(t, int64(2000), quote.FinalAmount)
}

func TestCalculate_RejectsBadInput(t *testing.T) {
	svc := newPricingService(new(mockModulePricingSvc), new(mockDiscountSvc))

	_, err := svc.Calculate(context.Background(), pricingdomain.QuoteRequest{
		Tier:         "PLATINUM",
		BillingCycle: plandomain.CycleMonthly,
		Selections:   []pricingdomain.ModuleSelection{{ModuleCode: "X"}},
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidTier)

	_, err = svc.Calculate(context.Background(), pricingdomain.QuoteRequest{
		Tier:         plandomain.TierStarter,
		BillingCycle: "WEEKLY",
		Selections:   []pricingdomain.ModuleSelection{{ModuleCode: "X"}},
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidCycle)

	_, err = svc.Calculate(context.Background(), pricingdomain.QuoteRequest{
		Tier:         plandomain.TierStarter,
		BillingCycle: plandomain.CycleMonthly,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrNoSelections)

	_, err = svc.Calculate(context.Background(), pricingdomain.QuoteRequest{
		Tier:         plandomain.TierStarter,
		BillingCycle: plandomain.CycleMonthly,
		Selections: []pricingdomain.ModuleSelection{
			{
				ModuleCode: "X",
				Quantities: map[modulepricingdomain.PricingMetric]int64{
					modulepricingdomain.MetricPerUser: -1,
				},
			},
		},
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidQuantity)
}

func TestCalculate_AppliesDiscountCode(t *testing.T) {
	modulePricing := new(mockModulePricingSvc)
	modulePricing.On("GetActive", mock.Anything, "FARM_MANAGEMENT", mock.Anything).Return(
		pricingVersion(t, "FARM_MANAGEMENT", "Farm Management", []modulepricingdomain.MetricPrice{
			{Metric: modulepricingdomain.MetricBasePrice, UnitPrice: 10000},
		}), nil)

	percentOff := 10.0
	discounts := new(mockDiscountSvc)
	discounts.On("Validate", mock.Anything, mock.MatchedBy(func(req discountdomain.ValidateRequest) bool {
		return req.Code == "HARVEST10" && req.Amount == 10000
	})).Return(discountdomain.DiscountCode{
		Code:       "HARVEST10",
		Type:       discountdomain.TypePercentage,
		PercentOff: &percentOff,
		Active:     true,
	}, nil)

	svc := newPricingService(modulePricing, discounts)
	quote, err := svc.Calculate(context.Background(), pricingdomain.QuoteRequest{
		TenantID:     42,
		Tier:         plandomain.TierStarter,
		BillingCycle: plandomain.CycleMonthly,
		Selections:   []pricingdomain.ModuleSelection{{ModuleCode: "FARM_MANAGEMENT"}},
		DiscountCode: "HARVEST10",
	})
	require.NoError(t, err)
	assert.Equal(t, "HARVEST10", quote.DiscountCode)
	assert.Equal(t, int64(1000), quote.CodeDiscountAmount)
	assert.Equal(t, int64(9000), quote.FinalAmount)
}

func TestCalculate_IneligibleDiscountFailsQuote(t *testing.T) {
	modulePricing := new(mockModulePricingSvc)
	modulePricing.On("GetActive", mock.Anything, "FARM_MANAGEMENT", mock.Anything).Return(
		pricingVersion(t, "FARM_MANAGEMENT", "Farm Management", []modulepricingdomain.MetricPrice{
			{Metric: modulepricingdomain.MetricBasePrice, UnitPrice: 10000},
		}), nil)

	discounts := new(mockDiscountSvc)
	discounts.On("Validate", mock.Anything, mock.Anything).Return(
		discountdomain.DiscountCode{}, discountdomain.ErrCodeExpired)

	svc := newPricingService(modulePricing, discounts)
	_, err := svc.Calculate(context.Background(), pricingdomain.QuoteRequest{
		Tier:         plandomain.TierStarter,
		BillingCycle: plandomain.CycleMonthly,
		Selections:   []pricingdomain.ModuleSelection{{ModuleCode: "FARM_MANAGEMENT"}},
		DiscountCode: "EXPIRED",
	})
	assert.ErrorIs(t, err, discountdomain.ErrCodeExpired)
}
