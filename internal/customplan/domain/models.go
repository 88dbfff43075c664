// Package domain contains persistence models for the custom plan workflow.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the workflow state of a custom plan proposal.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusActive          Status = "ACTIVE"
	StatusRejected        Status = "REJECTED"
)

// CustomPlan is a negotiated plan proposal. Modules holds the selected
// module quantities; Quote snapshots the calculator output at submit time.
type CustomPlan struct {
	ID                 snowflake.ID      `gorm:"primaryKey"`
	TenantID           snowflake.ID      `gorm:"not null;index"`
	Name               string            `gorm:"type:text;not null"`
	Status             Status            `gorm:"type:text;not null;default:'DRAFT'"`
	Modules            datatypes.JSON    `gorm:"type:jsonb"`
	BillingCycleMonths int               `gorm:"not null;default:1"`
	Quote              datatypes.JSONMap `gorm:"type:jsonb"`
	QuotedAmount       int64             `gorm:"not null;default:0"`
	ApprovedBy         *string           `gorm:"type:text"`
	RejectedReason     *string           `gorm:"type:text"`
	SubmittedAt        *time.Time        `gorm:""`
	ActivatedAt        *time.Time        `gorm:""`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (CustomPlan) TableName() string { return "custom_plans" }

// Editable reports whether the proposal can still be modified.
func (p CustomPlan) Editable() bool {
	return p.Status == StatusDraft || p.Status == StatusPendingApproval
}
