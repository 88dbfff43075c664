package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	customplandomain "github.com/croplytics/croplytics/internal/customplan/domain"
	"gorm.io/gorm"
)

const customPlanColumns = `id, tenant_id, name, status, modules, billing_cycle_months,
	 quote, quoted_amount, approved_by, rejected_reason, submitted_at, activated_at,
	 created_at, updated_at`

type repo struct{}

func Provide() customplandomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, plan *customplandomain.CustomPlan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO custom_plans (
			id, tenant_id, name, status, modules, billing_cycle_months, quote,
			quoted_amount, approved_by, rejected_reason, submitted_at, activated_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.TenantID,
		plan.Name,
		plan.Status,
		plan.Modules,
		plan.BillingCycleMonths,
		plan.Quote,
		plan.QuotedAmount,
		plan.ApprovedBy,
		plan.RejectedReason,
		plan.SubmittedAt,
		plan.ActivatedAt,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*customplandomain.CustomPlan, error) {
	return r.findOne(ctx, db, `SELECT `+customPlanColumns+` FROM custom_plans WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*customplandomain.CustomPlan, error) {
	return r.findOne(ctx, db, `SELECT `+customPlanColumns+` FROM custom_plans WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*customplandomain.CustomPlan, error) {
	var plan customplandomain.CustomPlan
	err := db.WithContext(ctx).Raw(query, args...).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req customplandomain.ListCustomPlansRequest) ([]customplandomain.CustomPlan, error) {
	query := `SELECT ` + customPlanColumns + ` FROM custom_plans WHERE 1=1`
	args := []any{}
	if req.TenantID != 0 {
		query += ` AND tenant_id = ?`
		args = append(args, req.TenantID)
	}
	if req.Status != "" {
		query += ` AND status = ?`
		args = append(args, req.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if req.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, req.Limit)
	}

	var plans []customplandomain.CustomPlan
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, plan *customplandomain.CustomPlan) error {
	return db.WithContext(ctx).Exec(
		`UPDATE custom_plans SET
			name = ?, status = ?, modules = ?, billing_cycle_months = ?, quote = ?,
			quoted_amount = ?, approved_by = ?, rejected_reason = ?, submitted_at = ?,
			activated_at = ?, updated_at = ?
		 WHERE id = ?`,
		plan.Name,
		plan.Status,
		plan.Modules,
		plan.BillingCycleMonths,
		plan.Quote,
		plan.QuotedAmount,
		plan.ApprovedBy,
		plan.RejectedReason,
		plan.SubmittedAt,
		plan.ActivatedAt,
		plan.UpdatedAt,
		plan.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM custom_plans WHERE id = ?`, id).Error
}
