package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	StoredStatus string
	Archived     *bool
	Tier         string
	// Cursor keyset: rows strictly older than (CreatedBefore, BeforeID).
	CreatedBefore *time.Time
	BeforeID      snowflake.ID
	Limit         int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Tenant, error)
	FindByDomain(ctx context.Context, db *gorm.DB, domain string) (*Tenant, error)
	Update(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Tenant, error)
	CountOpenInvoices(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error)

	InsertNote(ctx context.Context, db *gorm.DB, note *TenantNote) error
	ListNotes(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]TenantNote, error)
	DeleteNote(ctx context.Context, db *gorm.DB, tenantID, noteID snowflake.ID) (bool, error)
}
