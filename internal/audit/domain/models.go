package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeUser   ActorType = "user"
)

type AuditLog struct {
	ID         snowflake.ID      `gorm:"column:id;primaryKey" json:"id"`
	TenantID   *snowflake.ID     `gorm:"column:tenant_id" json:"tenant_id,omitempty"`
	ActorType  string            `gorm:"column:actor_type" json:"actor_type"`
	ActorID    *string           `gorm:"column:actor_id" json:"actor_id,omitempty"`
	Action     string            `gorm:"column:action" json:"action"`
	TargetType string            `gorm:"column:target_type" json:"target_type"`
	TargetID   *string           `gorm:"column:target_id" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	IPAddress  *string           `gorm:"column:ip_address" json:"ip_address,omitempty"`
	UserAgent  *string           `gorm:"column:user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	TenantID   snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
