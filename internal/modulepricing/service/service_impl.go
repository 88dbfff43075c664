package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/croplytics/croplytics/internal/clock"
	modulepricingdomain "github.com/croplytics/croplytics/internal/modulepricing/domain"
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
	Repo  modulepricingdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  modulepricingdomain.Repository
}

func NewService(p Params) modulepricingdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("modulepricing.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req modulepricingdomain.CreatePricingRequest) (modulepricingdomain.ModulePricing, error) {
	moduleCode := strings.ToUpper(strings.TrimSpace(req.ModuleCode))
	if moduleCode == "" {
		return modulepricingdomain.ModulePricing{}, modulepricingdomain.ErrInvalidModule
	}
	if len(req.Prices) == 0 {
		return modulepricingdomain.ModulePricing{}, modulepricingdomain.ErrEmptyPriceList
	}

	seen := make(map[modulepricingdomain.PricingMetric]bool, len(req.Prices))
	for _, price := range req.Prices {
		if !modulepricingdomain.ValidMetric(price.Metric) {
			return modulepricingdomain.ModulePricing{}, modulepricingdomain.ErrInvalidMetric
		}
		if seen[price.Metric] {
			return modulepricingdomain.ModulePricing{}, modulepricingdomain.ErrDuplicateMetric
		}
		seen[price.Metric] = true
		if price.UnitPrice < 0 {
			return modulepricingdomain.ModulePricing{}, modulepricingdomain.ErrInvalidUnitPrice
		}
		if price.IncludedQuantity < 0 {
			return modulepricingdomain.ModulePricing{}, modulepricingdomain.ErrInvalidQuantity
		}
	}

	encoded, err := json.Marshal(req.Prices)
	if err != nil {
		return modulepricingdomain.ModulePricing{}, err
	}

	now := s.clock.Now()
	effectiveFrom := now
	if req.EffectiveFrom != nil {
		effectiveFrom = *req.EffectiveFrom
	}

	pricing := modulepricingdomain.ModulePricing{
		ID:            s.genID.Generate(),
		ModuleCode:    moduleCode,
		ModuleName:    strings.TrimSpace(req.ModuleName),
		Prices:        datatypes.JSON(encoded),
		EffectiveFrom: effectiveFrom,
		IsActive:      true,
		CreatedBy:     strings.TrimSpace(req.CreatedBy),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if pricing.ModuleName == "" {
		pricing.ModuleName = moduleCode
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.CloseActive(ctx, tx, moduleCode, effectiveFrom); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, &pricing)
	})
	if err != nil {
		return modulepricingdomain.ModulePricing{}, err
	}

	s.log.Info("module pricing version created",
		zap.String("module_code", moduleCode),
		zap.Int("metrics", len(req.Prices)),
		zap.Time("effective_from", effectiveFrom),
	)
	return pricing, nil
}

func (s *Service) GetActive(ctx context.Context, moduleCode string, at time.Time) (modulepricingdomain.ModulePricing, error) {
	moduleCode = strings.ToUpper(strings.TrimSpace(moduleCode))
	if moduleCode == "" {
		return modulepricingdomain.ModulePricing{}, modulepricingdomain.ErrInvalidModule
	}
	if at.IsZero() {
		at = s.clock.Now()
	}

	pricing, err := s.repo.FindActive(ctx, s.db, moduleCode, at)
	if err != nil {
		return modulepricingdomain.ModulePricing{}, err
	}
	if pricing == nil {
		return modulepricingdomain.ModulePricing{}, modulepricingdomain.ErrPricingNotFound
	}
	return *pricing, nil
}

func (s *Service) ListActive(ctx context.Context) ([]modulepricingdomain.ModulePricing, error) {
	return s.repo.ListActive(ctx, s.db)
}

func (s *Service) History(ctx context.Context, moduleCode string) ([]modulepricingdomain.ModulePricing, error) {
	moduleCode = strings.ToUpper(strings.TrimSpace(moduleCode))
	if moduleCode == "" {
		return nil, modulepricingdomain.ErrInvalidModule
	}
	return s.repo.History(ctx, s.db, moduleCode)
}

func (s *Service) Deactivate(ctx context.Context, moduleCode string) error {
	moduleCode = strings.ToUpper(strings.TrimSpace(moduleCode))
	if moduleCode == "" {
		return modulepricingdomain.ErrInvalidModule
	}

	if err := s.repo.CloseActive(ctx, s.db, moduleCode, s.clock.Now()); err != nil {
		return err
	}
	s.log.Info("module pricing deactivated", zap.String("module_code", moduleCode))
	return nil
}
