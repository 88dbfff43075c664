package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	"gorm.io/gorm"
)

const planColumns = `id, code, name, description, tier, monthly_price, quarterly_price,
	 semi_annual_price, annual_price, max_users, max_sensors, max_farms, storage_gb,
	 features, deprecated, deprecated_at, created_at, updated_at`

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, plan *plandomain.PlanDefinition) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plan_definitions (
			id, code, name, description, tier, monthly_price, quarterly_price,
			semi_annual_price, annual_price, max_users, max_sensors, max_farms,
			storage_gb, features, deprecated, deprecated_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.Code,
		plan.Name,
		plan.Description,
		plan.Tier,
		plan.MonthlyPrice,
		plan.QuarterlyPrice,
		plan.SemiAnnualPrice,
		plan.AnnualPrice,
		plan.MaxUsers,
		plan.MaxSensors,
		plan.MaxFarms,
		plan.StorageGB,
		plan.Features,
		plan.Deprecated,
		plan.DeprecatedAt,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*plandomain.PlanDefinition, error) {
	var plan plandomain.PlanDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM plan_definitions WHERE id = ?`,
		id,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*plandomain.PlanDefinition, error) {
	var plan plandomain.PlanDefinition
	err := db.WithContext(ctx).Raw(
		`SELECT `+planColumns+` FROM plan_definitions WHERE code = ?`,
		strings.TrimSpace(code),
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, includeDeprecated bool) ([]plandomain.PlanDefinition, error) {
	var plans []plandomain.PlanDefinition
	query := `SELECT ` + planColumns + ` FROM plan_definitions`
	if !includeDeprecated {
		query += ` WHERE deprecated = false`
	}
	query += ` ORDER BY monthly_price ASC, created_at ASC`

	if err := db.WithContext(ctx).Raw(query).Scan(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, plan *plandomain.PlanDefinition) error {
	return db.WithContext(ctx).Exec(
		`UPDATE plan_definitions SET
			name = ?, description = ?, monthly_price = ?, quarterly_price = ?,
			semi_annual_price = ?, annual_price = ?, max_users = ?, max_sensors = ?,
			max_farms = ?, storage_gb = ?, features = ?, deprecated = ?,
			deprecated_at = ?, updated_at = ?
		 WHERE id = ?`,
		plan.Name,
		plan.Description,
		plan.MonthlyPrice,
		plan.QuarterlyPrice,
		plan.SemiAnnualPrice,
		plan.AnnualPrice,
		plan.MaxUsers,
		plan.MaxSensors,
		plan.MaxFarms,
		plan.StorageGB,
		plan.Features,
		plan.Deprecated,
		plan.DeprecatedAt,
		plan.UpdatedAt,
		plan.ID,
	).Error
}

func (r *repo) CountActiveSubscriptions(ctx context.Context, db *gorm.DB, code string) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM subscriptions WHERE plan_code = ? AND status = 'ACTIVE'`,
		strings.TrimSpace(code),
	).Scan(&count).Error
	return count, err
}
