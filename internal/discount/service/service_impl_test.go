package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/croplytics/croplytics/internal/clock"
	discountdomain "github.com/croplytics/croplytics/internal/discount/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type mockDiscountRepo struct {
	mock.Mock
}

func (m *mockDiscountRepo) Insert(ctx context.Context, db *gorm.DB, code *discountdomain.DiscountCode) error {
	args := m.Called(ctx, db, code)
	return args.Error(0)
}

func (m *mockDiscountRepo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*discountdomain.DiscountCode, error) {
	args := m.Called(ctx, db, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*discountdomain.DiscountCode), args.Error(1)
}

func (m *mockDiscountRepo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]discountdomain.DiscountCode, error) {
	args := m.Called(ctx, db, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]discountdomain.DiscountCode), args.Error(1)
}

func (m *mockDiscountRepo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	args := m.Called(ctx, db, id)
	return args.Error(0)
}

func (m *mockDiscountRepo) ClaimRedemption(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	args := m.Called(ctx, db, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockDiscountRepo) CountTenantRedemptions(ctx context.Context, db *gorm.DB, codeID, tenantID snowflake.ID) (int64, error) {
	args := m.Called(ctx, db, codeID, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockDiscountRepo) InsertRedemption(ctx context.Context, db *gorm.DB, redemption *discountdomain.Redemption) error {
	args := m.Called(ctx, db, redemption)
	return args.Error(0)
}

func newDiscountService(t *testing.T, repo discountdomain.Repository, clk clock.Clock) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  repo,
	})
	return svc.(*Service)
}

func ptrInt(v int) *int          { return &v }
func ptrInt64(v int64) *int64    { return &v }
func ptrFloat(v float64) *float64 { return &v }
func ptrTime(t time.Time) *time.Time { return &t }

func TestValidate_ChecksRunInOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)

	cases := []struct {
		name     string
		discount discountdomain.DiscountCode
		tenantRedemptions int64
		wantErr  error
	}{
		{
			name: "inactive wins over expired",
			discount: discountdomain.DiscountCode{
				ID:         1,
				Code:       "SPRING",
				Type:       discountdomain.TypePercentage,
				PercentOff: ptrFloat(10),
				Active:     false,
				ValidUntil: ptrTime(now.Add(-time.Hour)),
			},
			wantErr: discountdomain.ErrCodeInactive,
		},
		{
			name: "not started",
			discount: discountdomain.DiscountCode{
				ID:         1,
				Code:       "SPRING",
				Type:       discountdomain.TypePercentage,
				PercentOff: ptrFloat(10),
				Active:     true,
				ValidFrom:  ptrTime(now.Add(time.Hour)),
			},
			wantErr: discountdomain.ErrCodeNotStarted,
		},
		{
			name: "expired",
			discount: discountdomain.DiscountCode{
				ID:         1,
				Code:       "SPRING",
				Type:       discountdomain.TypePercentage,
				PercentOff: ptrFloat(10),
				Active:     true,
				ValidUntil: ptrTime(now.Add(-time.Minute)),
			},
			wantErr: discountdomain.ErrCodeExpired,
		},
		{
			name: "global cap reached",
			discount: discountdomain.DiscountCode{
				ID:                 1,
				Code:               "SPRING",
				Type:               discountdomain.TypePercentage,
				PercentOff:         ptrFloat(10),
				Active:             true,
				MaxRedemptions:     ptrInt(5),
				CurrentRedemptions: 5,
			},
			wantErr: discountdomain.ErrRedemptionCapReached,
		},
		{
			name: "tenant cap reached",
			discount: discountdomain.DiscountCode{
				ID:             1,
				Code:           "SPRING",
				Type:           discountdomain.TypePercentage,
				PercentOff:     ptrFloat(10),
				Active:         true,
				PerTenantLimit: ptrInt(1),
			},
			tenantRedemptions: 1,
			wantErr:           discountdomain.ErrTenantCapReached,
		},
		{
			name: "plan not eligible",
			discount: discountdomain.DiscountCode{
				ID:              1,
				Code:            "SPRING",
				Type:            discountdomain.TypePercentage,
				PercentOff:      ptrFloat(10),
				Active:          true,
				ApplicablePlans: datatypes.JSON(`["ENTERPRISE"]`),
			},
			wantErr: discountdomain.ErrPlanNotEligible,
		},
		{
			name: "amount below minimum",
			discount: discountdomain.DiscountCode{
				ID:        1,
				Code:      "SPRING",
				Type:      discountdomain.TypePercentage,
				PercentOff: ptrFloat(10),
				Active:    true,
				MinAmount: 10000,
			},
			wantErr: discountdomain.ErrAmountBelowMinimum,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := new(mockDiscountRepo)
			discount := tc.discount
			repo.On("FindByCode", mock.Anything, mock.Anything, "SPRING").Return(&discount, nil)
			repo.On("CountTenantRedemptions", mock.Anything, mock.Anything, discount.ID, snowflake.ID(42)).
				Return(tc.tenantRedemptions, nil).Maybe()

			svc := newDiscountService(t, repo, clk)
			_, err := svc.Validate(context.Background(), discountdomain.ValidateRequest{
				Code:     "spring",
				TenantID: 42,
				PlanCode: "STARTER",
				Amount:   4900,
			})
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestValidate_EligibleCode(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)

	discount := discountdomain.DiscountCode{
		ID:              7,
		Code:            "HARVEST20",
		Type:            discountdomain.TypePercentage,
		PercentOff:      ptrFloat(20),
		Active:          true,
		ValidFrom:       ptrTime(now.Add(-24 * time.Hour)),
		ValidUntil:      ptrTime(now.Add(24 * time.Hour)),
		MaxRedemptions:  ptrInt(100),
		ApplicablePlans: datatypes.JSON(`["STARTER","PROFESSIONAL"]`),
	}

	repo := new(mockDiscountRepo)
	repo.On("FindByCode", mock.Anything, mock.Anything, "HARVEST20").Return(&discount, nil)

	svc := newDiscountService(t, repo, clk)
	got, err := svc.Validate(context.Background(), discountdomain.ValidateRequest{
		Code:     " harvest20 ",
		TenantID: 42,
		PlanCode: "starter",
		Amount:   4900,
	})
	require.NoError(t, err)
	assert.Equal(t, "HARVEST20", got.Code)
	assert.Equal(t, int64(980), got.CalculateDiscount(4900))
}

func TestValidate_UnknownCode(t *testing.T) {
	repo := new(mockDiscountRepo)
	repo.On("FindByCode", mock.Anything, mock.Anything, "NOPE").Return(nil, nil)

	svc := newDiscountService(t, repo, clock.NewFakeClock(time.Now()))
	_, err := svc.Validate(context.Background(), discountdomain.ValidateRequest{Code: "NOPE"})
	assert.ErrorIs(t, err, discountdomain.ErrCodeNotFound)
}

func TestApply_ClaimsSlotAndRecordsRedemption(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	discount := discountdomain.DiscountCode{
		ID:             9,
		Code:           "FLAT500",
		Type:           discountdomain.TypeFixedAmount,
		AmountOff:      ptrInt64(500),
		Active:         true,
		MaxRedemptions: ptrInt(10),
	}

	repo := new(mockDiscountRepo)
	repo.On("FindByCode", mock.Anything, mock.Anything, "FLAT500").Return(&discount, nil)
	repo.On("ClaimRedemption", mock.Anything, mock.Anything, discount.ID).Return(true, nil)
	repo.On("InsertRedemption", mock.Anything, mock.Anything, mock.MatchedBy(func(r *discountdomain.Redemption) bool {
		return r.CodeID == discount.ID && r.TenantID == 42 && r.AmountApplied == 500
	})).Return(nil)

	svc := newDiscountService(t, repo, clock.NewFakeClock(now))
	result, err := svc.Apply(context.Background(), discountdomain.ApplyRequest{
		Code:     "FLAT500",
		TenantID: 42,
		PlanCode: "STARTER",
		Amount:   4900,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.AmountApplied)
	assert.Equal(t, int64(4400), result.FinalAmount)
	repo.AssertExpectations(t)
}

func TestApply_CapExhaustedAtClaim(t *testing.T) {
	discount := discountdomain.DiscountCode{
		ID:             9,
		Code:           "FLAT500",
		Type:           discountdomain.TypeFixedAmount,
		AmountOff:      ptrInt64(500),
		Active:         true,
		MaxRedemptions: ptrInt(10),
	}

	repo := new(mockDiscountRepo)
	repo.On("FindByCode", mock.Anything, mock.Anything, "FLAT500").Return(&discount, nil)
	repo.On("ClaimRedemption", mock.Anything, mock.Anything, discount.ID).Return(false, nil)

	svc := newDiscountService(t, repo, clock.NewFakeClock(time.Now()))
	_, err := svc.Apply(context.Background(), discountdomain.ApplyRequest{
		Code:     "FLAT500",
		TenantID: 42,
		Amount:   4900,
	})
	assert.ErrorIs(t, err, discountdomain.ErrRedemptionCapReached)
	repo.AssertNotCalled(t, "InsertRedemption", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_RejectsBadValues(t *testing.T) {
	svc := newDiscountService(t, new(mockDiscountRepo), clock.NewFakeClock(time.Now()))

	_, err := svc.Create(context.Background(), discountdomain.CreateDiscountRequest{
		Code: "BAD",
		Type: discountdomain.TypePercentage,
		PercentOff: ptrFloat(150),
	})
	assert.ErrorIs(t, err, discountdomain.ErrInvalidDiscountValue)

	_, err = svc.Create(context.Background(), discountdomain.CreateDiscountRequest{
		Code:      "BAD",
		Type:      discountdomain.TypeFixedAmount,
		AmountOff: ptrInt64(-1),
	})
	assert.ErrorIs(t, err, discountdomain.ErrInvalidDiscountValue)

	_, err = svc.Create(context.Background(), discountdomain.CreateDiscountRequest{
		Code: "",
		Type: discountdomain.TypePercentage,
		PercentOff: ptrFloat(10),
	})
	assert.ErrorIs(t, err, discountdomain.ErrInvalidCode)
}

func TestCreate_DuplicateCode(t *testing.T) {
	existing := discountdomain.DiscountCode{ID: 1, Code: "TAKEN", Active: true}
	repo := new(mockDiscountRepo)
	repo.On("FindByCode", mock.Anything, mock.Anything, "TAKEN").Return(&existing, nil)

	svc := newDiscountService(t, repo, clock.NewFakeClock(time.Now()))
	_, err := svc.Create(context.Background(), discountdomain.CreateDiscountRequest{
		Code:       "taken",
		Type:       discountdomain.TypePercentage,
		PercentOff: ptrFloat(10),
	})
	assert.ErrorIs(t, err, discountdomain.ErrDuplicateCode)
}

func TestCalculateDiscount_Clamping(t *testing.T) {
	flat := discountdomain.DiscountCode{Type: discountdomain.TypeFixedAmount, AmountOff: ptrInt64(5000)}
	assert.Equal(t, int64(4900), flat.CalculateDiscount(4900))
	assert.Equal(t, int64(0), flat.CalculateDiscount(0))

	pct := discountdomain.DiscountCode{Type: discountdomain.TypePercentage, PercentOff: ptrFloat(10)}
	assert.Equal(t, int64(11), pct.CalculateDiscount(105))
}
