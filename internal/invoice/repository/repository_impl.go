package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	"gorm.io/gorm"
)

const invoiceColumns = `id, number, tenant_id, subscription_id, status, description,
	 amount, amount_paid, amount_due, currency, due_at, paid_at, voided_at,
	 metadata, created_at, updated_at`

type repo struct{}

func Provide() invoicedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO invoices (
			id, number, tenant_id, subscription_id, status, description, amount,
			amount_paid, amount_due, currency, due_at, paid_at, voided_at,
			metadata, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.Number,
		invoice.TenantID,
		invoice.SubscriptionID,
		invoice.Status,
		invoice.Description,
		invoice.Amount,
		invoice.AmountPaid,
		invoice.AmountDue,
		invoice.Currency,
		invoice.DueAt,
		invoice.PaidAt,
		invoice.VoidedAt,
		invoice.Metadata,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.findOne(ctx, db, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.findOne(ctx, db, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ? FOR UPDATE`, id)
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*invoicedomain.Invoice, error) {
	return r.findOne(ctx, db,
		`SELECT `+invoiceColumns+` FROM invoices WHERE number = ?`,
		strings.TrimSpace(number),
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(query, args...).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, req invoicedomain.ListInvoicesRequest) ([]invoicedomain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
	args := []any{}
	if req.TenantID != 0 {
		query += ` AND tenant_id = ?`
		args = append(args, req.TenantID)
	}
	if req.Status != "" {
		query += ` AND status = ?`
		args = append(args, req.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if req.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, req.Limit)
	}

	var invoices []invoicedomain.Invoice
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	return db.WithContext(ctx).Exec(
		`UPDATE invoices SET
			status = ?, amount = ?, amount_paid = ?, amount_due = ?,
			paid_at = ?, voided_at = ?, metadata = ?, updated_at = ?
		 WHERE id = ?`,
		invoice.Status,
		invoice.Amount,
		invoice.AmountPaid,
		invoice.AmountDue,
		invoice.PaidAt,
		invoice.VoidedAt,
		invoice.Metadata,
		invoice.UpdatedAt,
		invoice.ID,
	).Error
}

func (r *repo) FindOverdueCandidates(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]invoicedomain.Invoice, error) {
	if limit <= 0 {
		limit = 100
	}
	var invoices []invoicedomain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE status IN ('PENDING', 'PARTIALLY_PAID') AND due_at < ?
		 ORDER BY due_at ASC
		 LIMIT ?`,
		cutoff,
		limit,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}
