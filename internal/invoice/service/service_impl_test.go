package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/clock"
	"github.com/croplytics/croplytics/internal/config"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	"github.com/croplytics/croplytics/internal/providers/pdf"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeInvoiceRepo struct {
	invoices  map[snowflake.ID]*invoicedomain.Invoice
	updateErr map[snowflake.ID]error
}

func newFakeInvoiceRepo(invoices ...*invoicedomain.Invoice) *fakeInvoiceRepo {
	repo := &fakeInvoiceRepo{
		invoices:  make(map[snowflake.ID]*invoicedomain.Invoice),
		updateErr: make(map[snowflake.ID]error),
	}
	for _, invoice := range invoices {
		copied := *invoice
		repo.invoices[invoice.ID] = &copied
	}
	return repo
}

func (r *fakeInvoiceRepo) Insert(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	copied := *invoice
	r.invoices[invoice.ID] = &copied
	return nil
}

func (r *fakeInvoiceRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return r.FindByIDForUpdate(ctx, db, id)
}

func (r *fakeInvoiceRepo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, ok := r.invoices[id]
	if !ok {
		return nil, nil
	}
	copied := *invoice
	return &copied, nil
}

func (r *fakeInvoiceRepo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*invoicedomain.Invoice, error) {
	for _, invoice := range r.invoices {
		if invoice.Number == number {
			copied := *invoice
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeInvoiceRepo) List(ctx context.Context, db *gorm.DB, req invoicedomain.ListInvoicesRequest) ([]invoicedomain.Invoice, error) {
	var out []invoicedomain.Invoice
	for _, invoice := range r.invoices {
		out = append(out, *invoice)
	}
	return out, nil
}

func (r *fakeInvoiceRepo) Update(ctx context.Context, db *gorm.DB, invoice *invoicedomain.Invoice) error {
	if err := r.updateErr[invoice.ID]; err != nil {
		return err
	}
	copied := *invoice
	r.invoices[invoice.ID] = &copied
	return nil
}

func (r *fakeInvoiceRepo) FindOverdueCandidates(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]invoicedomain.Invoice, error) {
	var out []invoicedomain.Invoice
	for _, invoice := range r.invoices {
		unpaid := invoice.Status == invoicedomain.StatusPending || invoice.Status == invoicedomain.StatusPartiallyPaid
		if unpaid && invoice.DueAt.Before(cutoff) {
			out = append(out, *invoice)
		}
	}
	return out, nil
}

type fakeEventPublisher struct {
	emitted []string
}

func (f *fakeEventPublisher) Emit(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, eventType string, payload map[string]any, dedupeKey string) error {
	f.emitted = append(f.emitted, eventType)
	return nil
}

type noopAuditSvc struct{}

func (noopAuditSvc) AuditLog(ctx context.Context, tenantID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (noopAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type invoiceFixture struct {
	svc    *Service
	repo   *fakeInvoiceRepo
	events *fakeEventPublisher
	clock  *clock.FakeClock
}

func newInvoiceFixture(t *testing.T, now time.Time, invoices ...*invoicedomain.Invoice) *invoiceFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &invoiceFixture{
		repo:   newFakeInvoiceRepo(invoices...),
		events: &fakeEventPublisher{},
		clock:  clock.NewFakeClock(now),
	}
	f.svc = NewService(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         f.clock,
		Repo:          f.repo,
		BillingConfig: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
		Events:        f.events,
		Audit:         noopAuditSvc{},
		PDF:           &pdf.NoOpProvider{},
		AppConfig:     config.Config{AppName: "test"},
	}).(*Service)
	return f
}

func pendingInvoice(id snowflake.ID, amount int64, dueAt time.Time) *invoicedomain.Invoice {
	return &invoicedomain.Invoice{
		ID:        id,
		Number:    "INV-" + id.String(),
		TenantID:  42,
		Status:    invoicedomain.StatusPending,
		Amount:    amount,
		AmountDue: amount,
		Currency:  "USD",
		DueAt:     dueAt,
	}
}

func TestCreateTx_DefaultsAndValidation(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newInvoiceFixture(t, now)

	invoice, err := f.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		TenantID:    42,
		Description: "March renewal",
		Amount:      4900,
	})
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPending, invoice.Status)
	assert.Equal(t, int64(4900), invoice.AmountDue)
	assert.Equal(t, "USD", invoice.Currency)
	assert.Equal(t, now.AddDate(0, 0, 14), invoice.DueAt)
	assert.Contains(t, f.events.emitted, "invoice.created")

	_, err = f.svc.Create(context.Background(), invoicedomain.CreateInvoiceRequest{
		TenantID: 42,
		Amount:   0,
	})
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)
}

func TestRecordPayment_FullPayment(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := pendingInvoice(100, 4900, now.AddDate(0, 0, 14))

	f := newInvoiceFixture(t, now, invoice)
	paid, err := f.svc.RecordPayment(context.Background(), invoice.ID.String(), 4900)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, paid.Status)
	assert.Equal(t, int64(0), paid.AmountDue)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, now, *paid.PaidAt)
	assert.Contains(t, f.events.emitted, "invoice.paid")
}

func TestRecordPayment_PartialThenRemainder(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := pendingInvoice(101, 4900, now.AddDate(0, 0, 14))

	f := newInvoiceFixture(t, now, invoice)
	partial, err := f.svc.RecordPayment(context.Background(), invoice.ID.String(), 2000)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPartiallyPaid, partial.Status)
	assert.Equal(t, int64(2900), partial.AmountDue)
	assert.Nil(t, partial.PaidAt)
	assert.NotContains(t, f.events.emitted, "invoice.paid")

	settled, err := f.svc.RecordPayment(context.Background(), invoice.ID.String(), 2900)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPaid, settled.Status)
	assert.Equal(t, int64(4900), settled.AmountPaid)
}

func TestRecordPayment_Rejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	pending := pendingInvoice(102, 4900, now)
	voided := pendingInvoice(103, 4900, now)
	voided.Status = invoicedomain.StatusVoid
	paid := pendingInvoice(104, 4900, now)
	paid.Status = invoicedomain.StatusPaid
	paid.AmountPaid = 4900
	paid.AmountDue = 0

	f := newInvoiceFixture(t, now, pending, voided, paid)

	_, err := f.svc.RecordPayment(context.Background(), pending.ID.String(), 5000)
	assert.ErrorIs(t, err, invoicedomain.ErrOverpayment)

	_, err = f.svc.RecordPayment(context.Background(), pending.ID.String(), 0)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidAmount)

	_, err = f.svc.RecordPayment(context.Background(), voided.ID.String(), 100)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceTerminal)

	_, err = f.svc.RecordPayment(context.Background(), paid.ID.String(), 100)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoicePaid)

	_, err = f.svc.RecordPayment(context.Background(), "999", 100)
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceNotFound)
}

func TestVoid(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	invoice := pendingInvoice(105, 4900, now)
	paid := pendingInvoice(106, 4900, now)
	paid.Status = invoicedomain.StatusPaid

	f := newInvoiceFixture(t, now, invoice, paid)

	voided, err := f.svc.Void(context.Background(), invoice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusVoid, voided.Status)
	require.NotNil(t, voided.VoidedAt)

	_, err = f.svc.Void(context.Background(), invoice.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoiceTerminal)

	_, err = f.svc.Void(context.Background(), paid.ID.String())
	assert.ErrorIs(t, err, invoicedomain.ErrInvoicePaid)
}

func TestProcessOverdue_GraceWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	// Default grace is 3 days: due March 6 is inside grace, March 1 is out.
	insideGrace := pendingInvoice(107, 4900, time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC))
	pastGrace := pendingInvoice(108, 4900, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	f := newInvoiceFixture(t, now, insideGrace, pastGrace)
	report, err := f.svc.ProcessOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Marked)
	assert.Empty(t, report.Errors)

	assert.Equal(t, invoicedomain.StatusOverdue, f.repo.invoices[pastGrace.ID].Status)
	assert.Equal(t, invoicedomain.StatusPending, f.repo.invoices[insideGrace.ID].Status)
	assert.Contains(t, f.events.emitted, "invoice.overdue")
}

func TestProcessOverdue_RowFailureDoesNotStopSweep(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	first := pendingInvoice(109, 4900, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	second := pendingInvoice(110, 4900, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))

	f := newInvoiceFixture(t, now, first, second)
	f.repo.updateErr[first.ID] = errors.New("disk full")

	report, err := f.svc.ProcessOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Marked)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Error(), "disk full")
}
