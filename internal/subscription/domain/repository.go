package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, sub *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Subscription, error)
	Update(ctx context.Context, db *gorm.DB, sub *Subscription) error
	List(ctx context.Context, db *gorm.DB, req ListSubscriptionsRequest) ([]Subscription, error)
	// ListDueForRenewal returns renewing, billable subscriptions whose
	// current period closed at or before now.
	ListDueForRenewal(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
	// ListDueForExpiration returns non-renewing subscriptions past their
	// period end that have not been expired yet.
	ListDueForExpiration(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Subscription, error)
	// MirrorTenantBilling copies tier and limits onto the tenant row so
	// reads against tenants never need a join.
	MirrorTenantBilling(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, tier plandomain.PlanTier, limits datatypes.JSONMap) error
	CountByStatus(ctx context.Context, db *gorm.DB) (map[Status]int64, error)
	CountByTier(ctx context.Context, db *gorm.DB) (map[plandomain.PlanTier]int64, error)
	// SumActiveMonthlyRevenue returns Σ base_price / cycle_months over
	// billable subscriptions, in cents.
	SumActiveMonthlyRevenue(ctx context.Context, db *gorm.DB) (int64, error)
	CountCancellations(ctx context.Context, db *gorm.DB, windowStart, windowEnd time.Time) (int64, error)
}
