package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	discountdomain "github.com/croplytics/croplytics/internal/discount/domain"
	"gorm.io/gorm"
)

const discountColumns = `id, code, description, type, percent_off, amount_off, valid_from,
	 valid_until, max_redemptions, current_redemptions, per_tenant_limit,
	 applicable_plans, min_amount, active, created_at, updated_at`

type repo struct{}

func Provide() discountdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, code *discountdomain.DiscountCode) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO discount_codes (
			id, code, description, type, percent_off, amount_off, valid_from,
			valid_until, max_redemptions, current_redemptions, per_tenant_limit,
			applicable_plans, min_amount, active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID,
		code.Code,
		code.Description,
		code.Type,
		code.PercentOff,
		code.AmountOff,
		code.ValidFrom,
		code.ValidUntil,
		code.MaxRedemptions,
		code.CurrentRedemptions,
		code.PerTenantLimit,
		code.ApplicablePlans,
		code.MinAmount,
		code.Active,
		code.CreatedAt,
		code.UpdatedAt,
	).Error
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*discountdomain.DiscountCode, error) {
	var discount discountdomain.DiscountCode
	err := db.WithContext(ctx).Raw(
		`SELECT `+discountColumns+` FROM discount_codes WHERE code = ?`,
		strings.TrimSpace(code),
	).Scan(&discount).Error
	if err != nil {
		return nil, err
	}
	if discount.ID == 0 {
		return nil, nil
	}
	return &discount, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]discountdomain.DiscountCode, error) {
	var codes []discountdomain.DiscountCode
	query := `SELECT ` + discountColumns + ` FROM discount_codes`
	if activeOnly {
		query += ` WHERE active = true`
	}
	query += ` ORDER BY created_at DESC`

	if err := db.WithContext(ctx).Raw(query).Scan(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE discount_codes SET active = false, updated_at = ? WHERE id = ?`,
		time.Now().UTC(),
		id,
	).Error
}

// ClaimRedemption is the single write path for current_redemptions. The
// guard inside the UPDATE makes the increment and the cap check one atomic
// statement, so two concurrent claims on the last slot cannot both succeed.
func (r *repo) ClaimRedemption(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE discount_codes
		 SET current_redemptions = current_redemptions + 1, updated_at = ?
		 WHERE id = ?
		   AND active = true
		   AND (max_redemptions IS NULL OR current_redemptions < max_redemptions)`,
		time.Now().UTC(),
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) CountTenantRedemptions(ctx context.Context, db *gorm.DB, codeID, tenantID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM discount_redemptions WHERE code_id = ? AND tenant_id = ?`,
		codeID,
		tenantID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) InsertRedemption(ctx context.Context, db *gorm.DB, redemption *discountdomain.Redemption) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO discount_redemptions (
			id, code_id, tenant_id, subscription_id, amount_applied, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		redemption.ID,
		redemption.CodeID,
		redemption.TenantID,
		redemption.SubscriptionID,
		redemption.AmountApplied,
		redemption.CreatedAt,
	).Error
}
