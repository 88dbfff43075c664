package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateInvoiceRequest struct {
	TenantID       snowflake.ID   `json:"tenant_id"`
	SubscriptionID *snowflake.ID  `json:"subscription_id,omitempty"`
	Description    string         `json:"description"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency,omitempty"`
	DueAt          *time.Time     `json:"due_at,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type ListInvoicesRequest struct {
	TenantID snowflake.ID
	Status   Status
	Limit    int
}

// OverdueReport summarizes one sweep pass. Errors holds per-invoice failures;
// the sweep never stops at the first bad row.
type OverdueReport struct {
	Marked int     `json:"marked"`
	Errors []error `json:"-"`
}

type Service interface {
	Create(ctx context.Context, req CreateInvoiceRequest) (Invoice, error)
	// CreateTx creates an invoice inside the caller's transaction, for
	// callers that pair invoice rows with other writes.
	CreateTx(ctx context.Context, tx *gorm.DB, req CreateInvoiceRequest) (Invoice, error)
	Get(ctx context.Context, id string) (Invoice, error)
	GetByNumber(ctx context.Context, number string) (Invoice, error)
	List(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error)
	// RecordPayment applies a partial or full payment. Paying the full
	// balance transitions to PAID and stamps paid_at.
	RecordPayment(ctx context.Context, id string, amount int64) (Invoice, error)
	Void(ctx context.Context, id string) (Invoice, error)
	// ProcessOverdue flips unpaid invoices past their due date plus the
	// configured grace window to OVERDUE.
	ProcessOverdue(ctx context.Context) (OverdueReport, error)
	RenderPDF(ctx context.Context, id string) ([]byte, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Invoice, error)
	List(ctx context.Context, db *gorm.DB, req ListInvoicesRequest) ([]Invoice, error)
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	// FindOverdueCandidates returns unpaid invoices whose due date is before
	// the cutoff.
	FindOverdueCandidates(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Invoice, error)
}

var (
	ErrInvoiceNotFound  = errors.New("invoice_not_found")
	ErrInvalidInvoiceID = errors.New("invalid_invoice_id")
	ErrInvalidAmount    = errors.New("invalid_invoice_amount")
	ErrOverpayment      = errors.New("payment_exceeds_amount_due")
	ErrInvoiceTerminal  = errors.New("invoice_terminal")
	ErrInvoicePaid      = errors.New("invoice_already_paid")
)
