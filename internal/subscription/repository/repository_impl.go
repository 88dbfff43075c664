package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const subscriptionColumns = `id, tenant_id, plan_id, plan_code, tier, status, billing_cycle,
	 billing_cycle_months, auto_renew, current_period_start, current_period_end,
	 trial_ends_at, cancelled_at, end_date, base_price, pricing_snapshot, limits,
	 created_at, updated_at`

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, tenant_id, plan_id, plan_code, tier, status, billing_cycle,
			billing_cycle_months, auto_renew, current_period_start, current_period_end,
			trial_ends_at, cancelled_at, end_date, base_price, pricing_snapshot,
			limits, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.TenantID,
		sub.PlanID,
		sub.PlanCode,
		sub.Tier,
		sub.Status,
		sub.BillingCycle,
		sub.BillingCycleMonths,
		sub.AutoRenew,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.TrialEndsAt,
		sub.CancelledAt,
		sub.EndDate,
		sub.BasePrice,
		sub.PricingSnapshot,
		sub.Limits,
		sub.CreatedAt,
		sub.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.findOne(ctx, db, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE tenant_id = ?`, tenantID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*subscriptiondomain.Subscription, error) {
	var sub subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(query, args...).Scan(&sub).Error
	if err != nil {
		return nil, err
	}
	if sub.ID == 0 {
		return nil, nil
	}
	return &sub, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions SET
			plan_id = ?, plan_code = ?, tier = ?, status = ?, billing_cycle = ?,
			billing_cycle_months = ?, auto_renew = ?, current_period_start = ?,
			current_period_end = ?, trial_ends_at = ?, cancelled_at = ?, end_date = ?,
			base_price = ?, pricing_snapshot = ?, limits = ?, updated_at = ?
		 WHERE id = ?`,
		sub.PlanID,
		sub.PlanCode,
		sub.Tier,
		sub.Status,
		sub.BillingCycle,
		sub.BillingCycleMonths,
		sub.AutoRenew,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.TrialEndsAt,
		sub.CancelledAt,
		sub.EndDate,
		sub.BasePrice,
		sub.PricingSnapshot,
		sub.Limits,
		sub.UpdatedAt,
		sub.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req subscriptiondomain.ListSubscriptionsRequest) ([]subscriptiondomain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE 1=1`
	args := []any{}
	if req.Status != "" {
		query += ` AND status = ?`
		args = append(args, req.Status)
	}
	if req.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, req.Tier)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if req.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, req.Limit)
	}

	var subs []subscriptiondomain.Subscription
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) ListDueForRenewal(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE status IN ('ACTIVE', 'TRIALING') AND auto_renew = true
		   AND current_period_end <= ?
		   AND (end_date IS NULL OR end_date > ?)
		 ORDER BY current_period_end ASC
		 LIMIT ?`,
		now,
		now,
		limit,
	).Scan(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) ListDueForExpiration(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var subs []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE status IN ('ACTIVE', 'TRIALING', 'PAST_DUE')
		   AND current_period_end <= ?
		   AND (auto_renew = false OR (end_date IS NOT NULL AND end_date <= ?))
		 ORDER BY current_period_end ASC
		 LIMIT ?`,
		now,
		now,
		limit,
	).Scan(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repo) MirrorTenantBilling(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, tier plandomain.PlanTier, limits datatypes.JSONMap) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants SET tier = ?, limits = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		tier,
		limits,
		tenantID,
	).Error
}

func (r *repo) CountByStatus(ctx context.Context, db *gorm.DB) (map[subscriptiondomain.Status]int64, error) {
	rows := []struct {
		Status subscriptiondomain.Status
		Total  int64
	}{}
	err := db.WithContext(ctx).Raw(
		`SELECT status, COUNT(1) AS total FROM subscriptions GROUP BY status`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[subscriptiondomain.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

func (r *repo) CountByTier(ctx context.Context, db *gorm.DB) (map[plandomain.PlanTier]int64, error) {
	rows := []struct {
		Tier  plandomain.PlanTier
		Total int64
	}{}
	err := db.WithContext(ctx).Raw(
		`SELECT tier, COUNT(1) AS total FROM subscriptions
		 WHERE status IN ('ACTIVE', 'TRIALING') GROUP BY tier`,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[plandomain.PlanTier]int64, len(rows))
	for _, row := range rows {
		counts[row.Tier] = row.Total
	}
	return counts, nil
}

func (r *repo) SumActiveMonthlyRevenue(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(base_price / billing_cycle_months), 0)
		 FROM subscriptions
		 WHERE status IN ('ACTIVE', 'TRIALING') AND billing_cycle_months > 0`,
	).Scan(&total).Error
	return total, err
}

func (r *repo) CountCancellations(ctx context.Context, db *gorm.DB, windowStart, windowEnd time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM subscriptions
		 WHERE cancelled_at IS NOT NULL AND cancelled_at >= ? AND cancelled_at < ?`,
		windowStart,
		windowEnd,
	).Scan(&count).Error
	return count, err
}
