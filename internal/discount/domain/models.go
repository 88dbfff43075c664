// Package domain contains persistence models for discount codes.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// DiscountType identifies how a code reduces an amount.
type DiscountType string

const (
	TypePercentage  DiscountType = "PERCENTAGE"
	TypeFixedAmount DiscountType = "FIXED_AMOUNT"
)

// DiscountCode is a redeemable code with redemption caps and plan scoping.
// CurrentRedemptions is only ever advanced through the conditional claim in
// the repository so concurrent redeems cannot exceed MaxRedemptions.
type DiscountCode struct {
	ID                 snowflake.ID   `gorm:"primaryKey"`
	Code               string         `gorm:"type:text;not null;uniqueIndex"`
	Description        *string        `gorm:"type:text"`
	Type               DiscountType   `gorm:"type:text;not null"`
	PercentOff         *float64       `gorm:""`
	AmountOff          *int64         `gorm:""`
	ValidFrom          *time.Time     `gorm:""`
	ValidUntil         *time.Time     `gorm:""`
	MaxRedemptions     *int           `gorm:""`
	CurrentRedemptions int            `gorm:"not null;default:0"`
	PerTenantLimit     *int           `gorm:""`
	ApplicablePlans    datatypes.JSON `gorm:"type:jsonb"`
	MinAmount          int64          `gorm:"not null;default:0"`
	Active             bool           `gorm:"not null;default:true"`
	CreatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (DiscountCode) TableName() string { return "discount_codes" }

// Redemption records a single successful application of a code.
type Redemption struct {
	ID             snowflake.ID  `gorm:"primaryKey"`
	CodeID         snowflake.ID  `gorm:"not null;index"`
	TenantID       snowflake.ID  `gorm:"not null;index"`
	SubscriptionID *snowflake.ID `gorm:""`
	AmountApplied  int64         `gorm:"not null"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Redemption) TableName() string { return "discount_redemptions" }

// CalculateDiscount returns the reduction in cents for an amount. The result
// never exceeds the amount itself.
func (c DiscountCode) CalculateDiscount(amount int64) int64 {
	if amount <= 0 {
		return 0
	}

	var discount int64
	switch c.Type {
	case TypePercentage:
		if c.PercentOff == nil {
			return 0
		}
		discount = decimal.NewFromInt(amount).
			Mul(decimal.NewFromFloat(*c.PercentOff)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	case TypeFixedAmount:
		if c.AmountOff == nil {
			return 0
		}
		discount = *c.AmountOff
	default:
		return 0
	}

	if discount > amount {
		discount = amount
	}
	if discount < 0 {
		discount = 0
	}
	return discount
}

// ApplyDiscount returns the amount after reduction, floored at zero.
func (c DiscountCode) ApplyDiscount(amount int64) int64 {
	remaining := amount - c.CalculateDiscount(amount)
	if remaining < 0 {
		return 0
	}
	return remaining
}
