package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type CreatePricingRequest struct {
	ModuleCode    string        `json:"module_code"`
	ModuleName    string        `json:"module_name"`
	Prices        []MetricPrice `json:"prices"`
	EffectiveFrom *time.Time    `json:"effective_from,omitempty"`
	CreatedBy     string        `json:"created_by,omitempty"`
}

type Service interface {
	// Create installs a new pricing version for a module. Any active version
	// gets its effective window closed at the new version's start, in the
	// same transaction.
	Create(ctx context.Context, req CreatePricingRequest) (ModulePricing, error)
	GetActive(ctx context.Context, moduleCode string, at time.Time) (ModulePricing, error)
	ListActive(ctx context.Context) ([]ModulePricing, error)
	History(ctx context.Context, moduleCode string) ([]ModulePricing, error)
	Deactivate(ctx context.Context, moduleCode string) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pricing *ModulePricing) error
	FindActive(ctx context.Context, db *gorm.DB, moduleCode string, at time.Time) (*ModulePricing, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]ModulePricing, error)
	History(ctx context.Context, db *gorm.DB, moduleCode string) ([]ModulePricing, error)
	// CloseActive retires every active version for the module, stamping the
	// closed window's end.
	CloseActive(ctx context.Context, db *gorm.DB, moduleCode string, effectiveTo time.Time) error
}

var (
	ErrPricingNotFound  = errors.New("module_pricing_not_found")
	ErrInvalidModule    = errors.New("invalid_module_code")
	ErrInvalidMetric    = errors.New("invalid_pricing_metric")
	ErrInvalidUnitPrice = errors.New("invalid_unit_price")
	ErrInvalidQuantity  = errors.New("invalid_included_quantity")
	ErrEmptyPriceList   = errors.New("empty_price_list")
	ErrDuplicateMetric  = errors.New("duplicate_pricing_metric")
)
