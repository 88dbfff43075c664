package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/croplytics/croplytics/internal/clock"
	discountdomain "github.com/croplytics/croplytics/internal/discount/domain"
	"github.com/croplytics/croplytics/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  discountdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  discountdomain.Repository
}

func NewService(p Params) discountdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("discount.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req discountdomain.CreateDiscountRequest) (discountdomain.DiscountCode, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return discountdomain.DiscountCode{}, discountdomain.ErrInvalidCode
	}

	switch req.Type {
	case discountdomain.TypePercentage:
		if req.PercentOff == nil || *req.PercentOff <= 0 || *req.PercentOff > 100 {
			return discountdomain.DiscountCode{}, discountdomain.ErrInvalidDiscountValue
		}
	case discountdomain.TypeFixedAmount:
		if req.AmountOff == nil || *req.AmountOff <= 0 {
			return discountdomain.DiscountCode{}, discountdomain.ErrInvalidDiscountValue
		}
	default:
		return discountdomain.DiscountCode{}, discountdomain.ErrInvalidDiscountValue
	}

	if req.ValidFrom != nil && req.ValidUntil != nil && req.ValidFrom.After(*req.ValidUntil) {
		return discountdomain.DiscountCode{}, discountdomain.ErrInvalidDiscountValue
	}
	if req.MaxRedemptions != nil && *req.MaxRedemptions <= 0 {
		return discountdomain.DiscountCode{}, discountdomain.ErrInvalidDiscountValue
	}
	if req.PerTenantLimit != nil && *req.PerTenantLimit <= 0 {
		return discountdomain.DiscountCode{}, discountdomain.ErrInvalidDiscountValue
	}
	if req.MinAmount < 0 {
		return discountdomain.DiscountCode{}, discountdomain.ErrInvalidDiscountValue
	}

	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return discountdomain.DiscountCode{}, err
	}
	if existing != nil {
		return discountdomain.DiscountCode{}, discountdomain.ErrDuplicateCode
	}

	now := s.clock.Now()
	discount := discountdomain.DiscountCode{
		ID:             s.genID.Generate(),
		Code:           code,
		Description:    req.Description,
		Type:           req.Type,
		PercentOff:     req.PercentOff,
		AmountOff:      req.AmountOff,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
		MaxRedemptions: req.MaxRedemptions,
		PerTenantLimit: req.PerTenantLimit,
		MinAmount:      req.MinAmount,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(req.ApplicablePlans) > 0 {
		plans := make([]string, 0, len(req.ApplicablePlans))
		for _, plan := range req.ApplicablePlans {
			plan = strings.ToUpper(strings.TrimSpace(plan))
			if plan != "" {
				plans = append(plans, plan)
			}
		}
		encoded, err := json.Marshal(plans)
		if err != nil {
			return discountdomain.DiscountCode{}, err
		}
		discount.ApplicablePlans = datatypes.JSON(encoded)
	}

	if err := s.repo.Insert(ctx, s.db, &discount); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return discountdomain.DiscountCode{}, discountdomain.ErrDuplicateCode
		}
		return discountdomain.DiscountCode{}, err
	}

	s.log.Info("discount code created",
		zap.String("code", discount.Code),
		zap.String("type", string(discount.Type)),
	)
	return discount, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (discountdomain.DiscountCode, error) {
	discount, err := s.findByCode(ctx, code)
	if err != nil {
		return discountdomain.DiscountCode{}, err
	}
	return *discount, nil
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]discountdomain.DiscountCode, error) {
	return s.repo.List(ctx, s.db, activeOnly)
}

func (s *Service) Deactivate(ctx context.Context, code string) (discountdomain.DiscountCode, error) {
	discount, err := s.findByCode(ctx, code)
	if err != nil {
		return discountdomain.DiscountCode{}, err
	}
	if !discount.Active {
		return *discount, nil
	}

	if err := s.repo.Deactivate(ctx, s.db, discount.ID); err != nil {
		return discountdomain.DiscountCode{}, err
	}
	discount.Active = false
	return *discount, nil
}

// Validate runs the full eligibility check without consuming a redemption
// slot. The check order is fixed so callers get the most specific error.
func (s *Service) Validate(ctx context.Context, req discountdomain.ValidateRequest) (discountdomain.DiscountCode, error) {
	discount, err := s.findByCode(ctx, req.Code)
	if err != nil {
		return discountdomain.DiscountCode{}, err
	}

	if err := s.checkEligibility(ctx, s.db, discount, req.TenantID, req.PlanCode, req.Amount, true); err != nil {
		return discountdomain.DiscountCode{}, err
	}
	return *discount, nil
}

func (s *Service) Apply(ctx context.Context, req discountdomain.ApplyRequest) (discountdomain.ApplyResult, error) {
	var result discountdomain.ApplyResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.ApplyTx(ctx, tx, req)
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	return result, err
}

// ApplyTx claims a redemption slot inside the caller's transaction. The
// global cap is not pre-checked against a read value: the conditional UPDATE
// is the only arbiter, so the cap holds under concurrency.
func (s *Service) ApplyTx(ctx context.Context, tx *gorm.DB, req discountdomain.ApplyRequest) (discountdomain.ApplyResult, error) {
	discount, err := s.findByCodeTx(ctx, tx, req.Code)
	if err != nil {
		return discountdomain.ApplyResult{}, err
	}

	if err := s.checkEligibility(ctx, tx, discount, req.TenantID, req.PlanCode, req.Amount, false); err != nil {
		return discountdomain.ApplyResult{}, err
	}

	claimed, err := s.repo.ClaimRedemption(ctx, tx, discount.ID)
	if err != nil {
		return discountdomain.ApplyResult{}, err
	}
	if !claimed {
		return discountdomain.ApplyResult{}, discountdomain.ErrRedemptionCapReached
	}

	amountApplied := discount.CalculateDiscount(req.Amount)
	redemption := discountdomain.Redemption{
		ID:             s.genID.Generate(),
		CodeID:         discount.ID,
		TenantID:       req.TenantID,
		SubscriptionID: req.SubscriptionID,
		AmountApplied:  amountApplied,
		CreatedAt:      s.clock.Now(),
	}
	if err := s.repo.InsertRedemption(ctx, tx, &redemption); err != nil {
		return discountdomain.ApplyResult{}, err
	}

	discount.CurrentRedemptions++
	return discountdomain.ApplyResult{
		Code:          *discount,
		AmountApplied: amountApplied,
		FinalAmount:   req.Amount - amountApplied,
	}, nil
}

func (s *Service) checkEligibility(
	ctx context.Context,
	db *gorm.DB,
	discount *discountdomain.DiscountCode,
	tenantID snowflake.ID,
	planCode string,
	amount int64,
	checkGlobalCap bool,
) error {
	if !discount.Active {
		return discountdomain.ErrCodeInactive
	}

	now := s.clock.Now()
	if discount.ValidFrom != nil && now.Before(*discount.ValidFrom) {
		return discountdomain.ErrCodeNotStarted
	}
	if discount.ValidUntil != nil && now.After(*discount.ValidUntil) {
		return discountdomain.ErrCodeExpired
	}

	// Validate checks the cap against the read value; Apply defers the
	// global cap to the conditional claim.
	if checkGlobalCap && discount.MaxRedemptions != nil && discount.CurrentRedemptions >= *discount.MaxRedemptions {
		return discountdomain.ErrRedemptionCapReached
	}

	if discount.PerTenantLimit != nil && tenantID != 0 {
		count, err := s.repo.CountTenantRedemptions(ctx, db, discount.ID, tenantID)
		if err != nil {
			return err
		}
		if count >= int64(*discount.PerTenantLimit) {
			return discountdomain.ErrTenantCapReached
		}
	}

	if len(discount.ApplicablePlans) > 0 {
		var plans []string
		if err := json.Unmarshal(discount.ApplicablePlans, &plans); err != nil {
			return err
		}
		if len(plans) > 0 {
			planCode = strings.ToUpper(strings.TrimSpace(planCode))
			eligible := false
			for _, plan := range plans {
				if plan == planCode {
					eligible = true
					break
				}
			}
			if !eligible {
				return discountdomain.ErrPlanNotEligible
			}
		}
	}

	if discount.MinAmount > 0 && amount < discount.MinAmount {
		return discountdomain.ErrAmountBelowMinimum
	}

	return nil
}

func (s *Service) findByCode(ctx context.Context, code string) (*discountdomain.DiscountCode, error) {
	return s.findByCodeTx(ctx, s.db, code)
}

func (s *Service) findByCodeTx(ctx context.Context, tx *gorm.DB, code string) (*discountdomain.DiscountCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, discountdomain.ErrInvalidCode
	}

	discount, err := s.repo.FindByCode(ctx, tx, code)
	if err != nil {
		return nil, err
	}
	if discount == nil {
		return nil, discountdomain.ErrCodeNotFound
	}
	return discount, nil
}
