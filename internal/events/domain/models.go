package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// BillingEvent captures outbox events for billing and tenant workflows.
type BillingEvent struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	TenantID    snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_billing_event_dedupe,priority:1"`
	EventType   string            `gorm:"type:text;not null"`
	Payload     datatypes.JSONMap `gorm:"type:jsonb;not null"`
	DedupeKey   *string           `gorm:"type:text;uniqueIndex:ux_billing_event_dedupe,priority:2"`
	Published   bool              `gorm:"not null;default:false"`
	PublishedAt *time.Time        `gorm:""`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }

const (
	EventSubscriptionCreated     = "subscription.created"
	EventSubscriptionCanceled    = "subscription.canceled"
	EventSubscriptionReactivated = "subscription.reactivated"
	EventSubscriptionPlanChanged = "subscription.plan_changed"
	EventSubscriptionRenewed     = "subscription.renewed"
	EventInvoiceCreated          = "invoice.created"
	EventInvoicePaid             = "invoice.paid"
	EventInvoiceOverdue          = "invoice.overdue"
	EventTenantCreated           = "tenant.created"
	EventTenantSuspended         = "tenant.suspended"
	EventTenantActivated         = "tenant.activated"
	EventTenantDeactivated       = "tenant.deactivated"
	EventTenantArchived          = "tenant.archived"
	EventTenantProvisioned       = "tenant.provisioned"
	EventCustomPlanActivated     = "custom_plan.activated"
)
