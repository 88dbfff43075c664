package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *PlanDefinition) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PlanDefinition, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*PlanDefinition, error)
	List(ctx context.Context, db *gorm.DB, includeDeprecated bool) ([]PlanDefinition, error)
	Update(ctx context.Context, db *gorm.DB, plan *PlanDefinition) error
	CountActiveSubscriptions(ctx context.Context, db *gorm.DB, code string) (int64, error)
}
