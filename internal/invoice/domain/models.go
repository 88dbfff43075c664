// Package domain contains persistence models for invoices.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the invoice lifecycle state. VOID is terminal.
type Status string

const (
	StatusPending       Status = "PENDING"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusOverdue       Status = "OVERDUE"
	StatusVoid          Status = "VOID"
)

// Invoice is one bookkeeping entry. AmountDue is always amount − amountPaid;
// every write path recomputes it.
type Invoice struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	Number         string            `gorm:"type:text;not null;uniqueIndex"`
	TenantID       snowflake.ID      `gorm:"not null;index"`
	SubscriptionID *snowflake.ID     `gorm:"index"`
	Status         Status            `gorm:"type:text;not null;default:'PENDING'"`
	Description    string            `gorm:"type:text"`
	Amount         int64             `gorm:"not null"`
	AmountPaid     int64             `gorm:"not null;default:0"`
	AmountDue      int64             `gorm:"not null"`
	Currency       string            `gorm:"type:text;not null;default:'USD'"`
	DueAt          time.Time         `gorm:"not null"`
	PaidAt         *time.Time        `gorm:""`
	VoidedAt       *time.Time        `gorm:""`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Terminal reports whether no further payments or transitions apply.
func (i Invoice) Terminal() bool {
	return i.Status == StatusVoid
}
