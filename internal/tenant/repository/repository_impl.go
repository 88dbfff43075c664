package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/croplytics/croplytics/internal/tenant/domain"
	"gorm.io/gorm"
)

const tenantColumns = `id, name, slug, domain, status, tier, limits, suspended_at,
	 suspension_reason, archived_at, metadata, created_at, updated_at`

const noteColumns = `id, tenant_id, author_id, body, pinned, created_at, updated_at`

type repo struct{}

func Provide() tenantdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tenant *tenantdomain.Tenant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenants (
			id, name, slug, domain, status, tier, limits, suspended_at,
			suspension_reason, archived_at, metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.Domain,
		tenant.StoredStatus,
		tenant.Tier,
		tenant.Limits,
		tenant.SuspendedAt,
		tenant.SuspensionReason,
		tenant.ArchivedAt,
		tenant.Metadata,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tenantdomain.Tenant, error) {
	return r.findOne(ctx, db, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tenantdomain.Tenant, error) {
	return r.findOne(ctx, db, `SELECT `+tenantColumns+` FROM tenants WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*tenantdomain.Tenant, error) {
	return r.findOne(ctx, db,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = ?`,
		strings.TrimSpace(slug),
	)
}

func (r *repo) FindByDomain(ctx context.Context, db *gorm.DB, domain string) (*tenantdomain.Tenant, error) {
	return r.findOne(ctx, db,
		`SELECT `+tenantColumns+` FROM tenants WHERE domain = ?`,
		strings.TrimSpace(domain),
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*tenantdomain.Tenant, error) {
	var tenant tenantdomain.Tenant
	err := db.WithContext(ctx).Raw(query, args...).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, tenant *tenantdomain.Tenant) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tenants SET
			name = ?, domain = ?, status = ?, tier = ?, limits = ?, suspended_at = ?,
			suspension_reason = ?, archived_at = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		tenant.Name,
		tenant.Domain,
		tenant.StoredStatus,
		tenant.Tier,
		tenant.Limits,
		tenant.SuspendedAt,
		tenant.SuspensionReason,
		tenant.ArchivedAt,
		tenant.Metadata,
		tenant.UpdatedAt,
		tenant.ID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter tenantdomain.ListFilter) ([]tenantdomain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE 1=1`
	args := []any{}
	if filter.StoredStatus != "" {
		query += ` AND status = ?`
		args = append(args, filter.StoredStatus)
	}
	if filter.Archived != nil {
		if *filter.Archived {
			query += ` AND archived_at IS NOT NULL`
		} else {
			query += ` AND archived_at IS NULL`
		}
	}
	if filter.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, filter.Tier)
	}
	if filter.CreatedBefore != nil {
		query += ` AND ((created_at < ?) OR (created_at = ? AND id < ?))`
		args = append(args, *filter.CreatedBefore, *filter.CreatedBefore, filter.BeforeID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	var tenants []tenantdomain.Tenant
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *repo) CountOpenInvoices(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM invoices
		 WHERE tenant_id = ? AND status IN ('PENDING', 'PARTIALLY_PAID', 'OVERDUE')`,
		tenantID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) InsertNote(ctx context.Context, db *gorm.DB, note *tenantdomain.TenantNote) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenant_notes (
			id, tenant_id, author_id, body, pinned, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		note.ID,
		note.TenantID,
		note.AuthorID,
		note.Body,
		note.Pinned,
		note.CreatedAt,
		note.UpdatedAt,
	).Error
}

func (r *repo) ListNotes(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]tenantdomain.TenantNote, error) {
	var notes []tenantdomain.TenantNote
	err := db.WithContext(ctx).Raw(
		`SELECT `+noteColumns+` FROM tenant_notes
		 WHERE tenant_id = ?
		 ORDER BY pinned DESC, created_at DESC`,
		tenantID,
	).Scan(&notes).Error
	if err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *repo) DeleteNote(ctx context.Context, db *gorm.DB, tenantID, noteID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM tenant_notes WHERE id = ? AND tenant_id = ?`,
		noteID,
		tenantID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
