package repository

import (
	"context"
	"strings"
	"time"

	modulepricingdomain "github.com/croplytics/croplytics/internal/modulepricing/domain"
	"gorm.io/gorm"
)

const pricingColumns = `id, module_code, module_name, prices, effective_from,
	 effective_to, is_active, created_by, created_at, updated_at`

type repo struct{}

func Provide() modulepricingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pricing *modulepricingdomain.ModulePricing) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO module_pricing (
			id, module_code, module_name, prices, effective_from, effective_to,
			is_active, created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pricing.ID,
		pricing.ModuleCode,
		pricing.ModuleName,
		pricing.Prices,
		pricing.EffectiveFrom,
		pricing.EffectiveTo,
		pricing.IsActive,
		pricing.CreatedBy,
		pricing.CreatedAt,
		pricing.UpdatedAt,
	).Error
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, moduleCode string, at time.Time) (*modulepricingdomain.ModulePricing, error) {
	var pricing modulepricingdomain.ModulePricing
	err := db.WithContext(ctx).Raw(
		`SELECT `+pricingColumns+` FROM module_pricing
		 WHERE module_code = ? AND is_active = true
		   AND effective_from <= ?
		   AND (effective_to IS NULL OR effective_to > ?)
		 ORDER BY effective_from DESC LIMIT 1`,
		strings.TrimSpace(moduleCode),
		at,
		at,
	).Scan(&pricing).Error
	if err != nil {
		return nil, err
	}
	if pricing.ID == 0 {
		return nil, nil
	}
	return &pricing, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]modulepricingdomain.ModulePricing, error) {
	var rows []modulepricingdomain.ModulePricing
	err := db.WithContext(ctx).Raw(
		`SELECT ` + pricingColumns + ` FROM module_pricing
		 WHERE is_active = true
		 ORDER BY module_code ASC, effective_from DESC`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) History(ctx context.Context, db *gorm.DB, moduleCode string) ([]modulepricingdomain.ModulePricing, error) {
	var rows []modulepricingdomain.ModulePricing
	err := db.WithContext(ctx).Raw(
		`SELECT `+pricingColumns+` FROM module_pricing
		 WHERE module_code = ?
		 ORDER BY effective_from DESC`,
		strings.TrimSpace(moduleCode),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) CloseActive(ctx context.Context, db *gorm.DB, moduleCode string, effectiveTo time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE module_pricing
		 SET is_active = false, effective_to = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE module_code = ? AND is_active = true`,
		effectiveTo,
		strings.TrimSpace(moduleCode),
	).Error
}
