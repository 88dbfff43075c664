// Package domain contains persistence models for tenants.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	"gorm.io/datatypes"
)

// Status is the tenant lifecycle state exposed to callers.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusActive      Status = "ACTIVE"
	StatusSuspended   Status = "SUSPENDED"
	StatusDeactivated Status = "DEACTIVATED"
	StatusArchived    Status = "ARCHIVED"
)

// Stored status values. DEACTIVATED and ARCHIVED share the CANCELLED row
// value; archived_at tells them apart. Kept for compatibility with the
// original schema.
const (
	storedPending   = "PENDING"
	storedActive    = "ACTIVE"
	storedSuspended = "SUSPENDED"
	storedCancelled = "CANCELLED"
)

// Tenant is one customer organization. Tier and Limits mirror the current
// subscription so tenant reads never join the billing tables.
type Tenant struct {
	ID               snowflake.ID        `gorm:"primaryKey"`
	Name             string              `gorm:"type:text;not null"`
	Slug             string              `gorm:"type:text;not null;uniqueIndex"`
	Domain           *string             `gorm:"type:text;uniqueIndex"`
	StoredStatus     string              `gorm:"column:status;type:text;not null;default:'PENDING'"`
	Tier             plandomain.PlanTier `gorm:"type:text;not null;default:'FREE'"`
	Limits           datatypes.JSONMap   `gorm:"type:jsonb"`
	SuspendedAt      *time.Time          `gorm:""`
	SuspensionReason *string             `gorm:"type:text"`
	ArchivedAt       *time.Time          `gorm:""`
	Metadata         datatypes.JSONMap   `gorm:"type:jsonb"`
	CreatedAt        time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// Status derives the exposed lifecycle state from the stored columns.
func (t Tenant) Status() Status {
	switch t.StoredStatus {
	case storedPending:
		return StatusPending
	case storedActive:
		return StatusActive
	case storedSuspended:
		return StatusSuspended
	case storedCancelled:
		if t.ArchivedAt != nil {
			return StatusArchived
		}
		return StatusDeactivated
	default:
		return Status(t.StoredStatus)
	}
}

// StoredStatusFor maps an exposed state back to its row value.
func StoredStatusFor(status Status) string {
	switch status {
	case StatusPending:
		return storedPending
	case StatusActive:
		return storedActive
	case StatusSuspended:
		return storedSuspended
	case StatusDeactivated, StatusArchived:
		return storedCancelled
	default:
		return string(status)
	}
}

// TenantNote is an operator-facing note attached to a tenant.
type TenantNote struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"not null;index"`
	AuthorID  string       `gorm:"type:text;not null"`
	Body      string       `gorm:"type:text;not null"`
	Pinned    bool         `gorm:"not null;default:false"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (TenantNote) TableName() string { return "tenant_notes" }

// Usage carries computed counters for one tenant. Never persisted.
type Usage struct {
	TenantID     snowflake.ID `json:"tenant_id"`
	UserCount    int64        `json:"user_count"`
	ModuleCount  int64        `json:"module_count"`
	OpenInvoices int64        `json:"open_invoices"`
}
