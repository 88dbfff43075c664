// Package domain contains persistence models for tenant subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	"gorm.io/datatypes"
)

// Status is the subscription lifecycle state.
type Status string

const (
	StatusTrialing  Status = "TRIALING"
	StatusActive    Status = "ACTIVE"
	StatusPastDue   Status = "PAST_DUE"
	StatusCanceled  Status = "CANCELED"
	StatusSuspended Status = "SUSPENDED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether the subscription can never bill again without an
// explicit reactivation.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusExpired
}

// Subscription is the single billing agreement of a tenant. TenantID is
// unique: a tenant holds at most one non-terminal subscription.
type Subscription struct {
	ID                 snowflake.ID            `gorm:"primaryKey"`
	TenantID           snowflake.ID            `gorm:"not null;uniqueIndex"`
	PlanID             snowflake.ID            `gorm:"not null"`
	PlanCode           string                  `gorm:"type:text;not null;index"`
	Tier               plandomain.PlanTier     `gorm:"type:text;not null"`
	Status             Status                  `gorm:"type:text;not null;default:'ACTIVE'"`
	BillingCycle       plandomain.BillingCycle `gorm:"type:text;not null"`
	BillingCycleMonths int                     `gorm:"not null"`
	AutoRenew          bool                    `gorm:"not null;default:true"`
	CurrentPeriodStart time.Time               `gorm:"not null"`
	CurrentPeriodEnd   time.Time               `gorm:"not null"`
	TrialEndsAt        *time.Time              `gorm:""`
	CancelledAt        *time.Time              `gorm:""`
	EndDate            *time.Time              `gorm:""`
	BasePrice          int64                   `gorm:"not null"`
	PricingSnapshot    datatypes.JSONMap       `gorm:"type:jsonb"`
	Limits             datatypes.JSONMap       `gorm:"type:jsonb"`
	CreatedAt          time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Billable reports whether the subscription participates in renewal sweeps.
func (s Subscription) Billable() bool {
	return s.Status == StatusActive || s.Status == StatusTrialing
}
