package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, code *DiscountCode) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*DiscountCode, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]DiscountCode, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	// ClaimRedemption increments current_redemptions iff the global cap has
	// not been reached yet. Returns false when the slot could not be claimed.
	ClaimRedemption(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	CountTenantRedemptions(ctx context.Context, db *gorm.DB, codeID, tenantID snowflake.ID) (int64, error)
	InsertRedemption(ctx context.Context, db *gorm.DB, redemption *Redemption) error
}
