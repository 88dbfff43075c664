// Package domain contains persistence models for plan definitions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PlanTier identifies the pricing tier of a plan.
type PlanTier string

const (
	TierFree         PlanTier = "FREE"
	TierStarter      PlanTier = "STARTER"
	TierProfessional PlanTier = "PROFESSIONAL"
	TierEnterprise   PlanTier = "ENTERPRISE"
	TierCustom       PlanTier = "CUSTOM"
)

// BillingCycle identifies the renewal cadence of a subscription.
type BillingCycle string

const (
	CycleMonthly    BillingCycle = "MONTHLY"
	CycleQuarterly  BillingCycle = "QUARTERLY"
	CycleSemiAnnual BillingCycle = "SEMI_ANNUAL"
	CycleAnnual     BillingCycle = "ANNUAL"
)

// CycleMonths returns the calendar length of a billing cycle in months.
func CycleMonths(cycle BillingCycle) int {
	switch cycle {
	case CycleQuarterly:
		return 3
	case CycleSemiAnnual:
		return 6
	case CycleAnnual:
		return 12
	default:
		return 1
	}
}

// CycleForMonths maps a cycle length back to its cycle constant.
func CycleForMonths(months int) (BillingCycle, bool) {
	switch months {
	case 1:
		return CycleMonthly, true
	case 3:
		return CycleQuarterly, true
	case 6:
		return CycleSemiAnnual, true
	case 12:
		return CycleAnnual, true
	}
	return "", false
}

// ValidTier reports whether the tier is one of the known tiers.
func ValidTier(tier PlanTier) bool {
	switch tier {
	case TierFree, TierStarter, TierProfessional, TierEnterprise, TierCustom:
		return true
	}
	return false
}

// ValidCycle reports whether the billing cycle is supported.
func ValidCycle(cycle BillingCycle) bool {
	switch cycle {
	case CycleMonthly, CycleQuarterly, CycleSemiAnnual, CycleAnnual:
		return true
	}
	return false
}

// PlanDefinition captures a sellable plan: tier, per-cycle pricing and
// resource limits. Plans referenced by active subscriptions are soft
// deprecated rather than deleted.
type PlanDefinition struct {
	ID              snowflake.ID      `gorm:"primaryKey"`
	Code            string            `gorm:"type:text;not null;uniqueIndex"`
	Name            string            `gorm:"type:text;not null"`
	Description     *string           `gorm:"type:text"`
	Tier            PlanTier          `gorm:"type:text;not null"`
	MonthlyPrice    int64             `gorm:"not null"`
	QuarterlyPrice  int64             `gorm:"not null"`
	SemiAnnualPrice int64             `gorm:"not null"`
	AnnualPrice     int64             `gorm:"not null"`
	MaxUsers        int               `gorm:"not null"`
	MaxSensors      int               `gorm:"not null"`
	MaxFarms        int               `gorm:"not null"`
	StorageGB       int               `gorm:"not null"`
	Features        datatypes.JSONMap `gorm:"type:jsonb"`
	Deprecated      bool              `gorm:"not null;default:false"`
	DeprecatedAt    *time.Time        `gorm:""`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PlanDefinition) TableName() string { return "plan_definitions" }

// PriceForCycle returns the plan price in cents for a billing cycle.
func (p PlanDefinition) PriceForCycle(cycle BillingCycle) int64 {
	switch cycle {
	case CycleQuarterly:
		return p.QuarterlyPrice
	case CycleSemiAnnual:
		return p.SemiAnnualPrice
	case CycleAnnual:
		return p.AnnualPrice
	default:
		return p.MonthlyPrice
	}
}
