package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/croplytics/croplytics/internal/clock"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
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
	Repo  plandomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  plandomain.Repository
}

func NewService(p Params) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req plandomain.CreatePlanRequest) (plandomain.PlanDefinition, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return plandomain.PlanDefinition{}, plandomain.ErrInvalidPlanCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return plandomain.PlanDefinition{}, plandomain.ErrInvalidPlanName
	}
	if !plandomain.ValidTier(req.Tier) {
		return plandomain.PlanDefinition{}, plandomain.ErrInvalidTier
	}
	if req.MonthlyPrice < 0 || req.QuarterlyPrice < 0 || req.SemiAnnualPrice < 0 || req.AnnualPrice < 0 {
		return plandomain.PlanDefinition{}, plandomain.ErrInvalidPlanPrice
	}

	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return plandomain.PlanDefinition{}, err
	}
	if existing != nil {
		return plandomain.PlanDefinition{}, plandomain.ErrDuplicatePlanCode
	}

	now := s.clock.Now()
	plan := plandomain.PlanDefinition{
		ID:              s.genID.Generate(),
		Code:            code,
		Name:            name,
		Description:     req.Description,
		Tier:            req.Tier,
		MonthlyPrice:    req.MonthlyPrice,
		QuarterlyPrice:  req.QuarterlyPrice,
		SemiAnnualPrice: req.SemiAnnualPrice,
		AnnualPrice:     req.AnnualPrice,
		MaxUsers:        req.MaxUsers,
		MaxSensors:      req.MaxSensors,
		MaxFarms:        req.MaxFarms,
		StorageGB:       req.StorageGB,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.Features != nil {
		plan.Features = datatypes.JSONMap(req.Features)
	}

	if err := s.repo.Insert(ctx, s.db, &plan); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return plandomain.PlanDefinition{}, plandomain.ErrDuplicatePlanCode
		}
		return plandomain.PlanDefinition{}, err
	}

	s.log.Info("plan created",
		zap.String("plan_code", plan.Code),
		zap.String("tier", string(plan.Tier)),
	)
	return plan, nil
}

func (s *Service) Update(ctx context.Context, id string, req plandomain.UpdatePlanRequest) (plandomain.PlanDefinition, error) {
	planID, err := s.parseID(id)
	if err != nil {
		return plandomain.PlanDefinition{}, err
	}

	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return plandomain.PlanDefinition{}, err
	}
	if plan == nil {
		return plandomain.PlanDefinition{}, plandomain.ErrPlanNotFound
	}
	if plan.Deprecated {
		return plandomain.PlanDefinition{}, plandomain.ErrPlanDeprecated
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return plandomain.PlanDefinition{}, plandomain.ErrInvalidPlanName
		}
		plan.Name = name
	}
	if req.Description != nil {
		plan.Description = req.Description
	}
	if err := applyPrice(&plan.MonthlyPrice, req.MonthlyPrice); err != nil {
		return plandomain.PlanDefinition{}, err
	}
	if err := applyPrice(&plan.QuarterlyPrice, req.QuarterlyPrice); err != nil {
		return plandomain.PlanDefinition{}, err
	}
	if err := applyPrice(&plan.SemiAnnualPrice, req.SemiAnnualPrice); err != nil {
		return plandomain.PlanDefinition{}, err
	}
	if err := applyPrice(&plan.AnnualPrice, req.AnnualPrice); err != nil {
		return plandomain.PlanDefinition{}, err
	}
	if req.MaxUsers != nil {
		plan.MaxUsers = *req.MaxUsers
	}
	if req.MaxSensors != nil {
		plan.MaxSensors = *req.MaxSensors
	}
	if req.MaxFarms != nil {
		plan.MaxFarms = *req.MaxFarms
	}
	if req.StorageGB != nil {
		plan.StorageGB = *req.StorageGB
	}
	if req.Features != nil {
		plan.Features = datatypes.JSONMap(req.Features)
	}
	plan.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, plan); err != nil {
		return plandomain.PlanDefinition{}, err
	}
	return *plan, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (plandomain.PlanDefinition, error) {
	planID, err := s.parseID(id)
	if err != nil {
		return plandomain.PlanDefinition{}, err
	}

	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return plandomain.PlanDefinition{}, err
	}
	if plan == nil {
		return plandomain.PlanDefinition{}, plandomain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (plandomain.PlanDefinition, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return plandomain.PlanDefinition{}, plandomain.ErrInvalidPlanCode
	}

	plan, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return plandomain.PlanDefinition{}, err
	}
	if plan == nil {
		return plandomain.PlanDefinition{}, plandomain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *Service) List(ctx context.Context, req plandomain.ListPlanRequest) ([]plandomain.PlanDefinition, error) {
	plans, err := s.repo.List(ctx, s.db, req.IncludeDeprecated)
	if err != nil {
		return nil, err
	}

	tier := strings.ToUpper(strings.TrimSpace(req.Tier))
	if tier == "" {
		return plans, nil
	}

	filtered := make([]plandomain.PlanDefinition, 0, len(plans))
	for _, plan := range plans {
		if string(plan.Tier) == tier {
			filtered = append(filtered, plan)
		}
	}
	return filtered, nil
}

func (s *Service) Deprecate(ctx context.Context, id string) (plandomain.PlanDefinition, error) {
	planID, err := s.parseID(id)
	if err != nil {
		return plandomain.PlanDefinition{}, err
	}

	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return plandomain.PlanDefinition{}, err
	}
	if plan == nil {
		return plandomain.PlanDefinition{}, plandomain.ErrPlanNotFound
	}
	if plan.Deprecated {
		return *plan, nil
	}

	active, err := s.repo.CountActiveSubscriptions(ctx, s.db, plan.Code)
	if err != nil {
		return plandomain.PlanDefinition{}, err
	}

	now := s.clock.Now()
	plan.Deprecated = true
	plan.DeprecatedAt = &now
	plan.UpdatedAt = now

	if err := s.repo.Update(ctx, s.db, plan); err != nil {
		return plandomain.PlanDefinition{}, err
	}

	s.log.Info("plan deprecated",
		zap.String("plan_code", plan.Code),
		zap.Int64("active_subscriptions", active),
	)
	return *plan, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, plandomain.ErrInvalidPlanID
	}
	return id, nil
}

func applyPrice(dst *int64, src *int64) error {
	if src == nil {
		return nil
	}
	if *src < 0 {
		return plandomain.ErrInvalidPlanPrice
	}
	*dst = *src
	return nil
}
