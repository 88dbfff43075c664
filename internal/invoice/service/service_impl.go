package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/clock"
	"github.com/croplytics/croplytics/internal/config"
	"github.com/croplytics/croplytics/internal/events"
	eventdomain "github.com/croplytics/croplytics/internal/events/domain"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	"github.com/croplytics/croplytics/internal/providers/pdf"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          invoicedomain.Repository
	BillingConfig *config.BillingConfigHolder
	Events        events.Publisher
	Audit         auditdomain.Service
	PDF           pdf.Provider
	AppConfig     config.Config
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          invoicedomain.Repository
	billingConfig *config.BillingConfigHolder
	events        events.Publisher
	audit         auditdomain.Service
	pdf           pdf.Provider
	appConfig     config.Config
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("invoice.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		billingConfig: p.BillingConfig,
		events:        p.Events,
		audit:         p.Audit,
		pdf:           p.PDF,
		appConfig:     p.AppConfig,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := s.CreateTx(ctx, tx, req)
		if err != nil {
			return err
		}
		invoice = created
		return nil
	})
	return invoice, err
}

func (s *Service) CreateTx(ctx context.Context, tx *gorm.DB, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	if req.TenantID == 0 {
		return invoicedomain.Invoice{}, auditdomain.ErrInvalidTenant
	}
	if req.Amount <= 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	now := s.clock.Now()
	dueAt := now.AddDate(0, 0, 14)
	if req.DueAt != nil {
		dueAt = *req.DueAt
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	invoice := invoicedomain.Invoice{
		ID:             s.genID.Generate(),
		Number:         "INV-" + ulid.Make().String(),
		TenantID:       req.TenantID,
		SubscriptionID: req.SubscriptionID,
		Status:         invoicedomain.StatusPending,
		Description:    strings.TrimSpace(req.Description),
		Amount:         req.Amount,
		AmountPaid:     0,
		AmountDue:      req.Amount,
		Currency:       currency,
		DueAt:          dueAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if len(req.Metadata) > 0 {
		invoice.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
		return invoicedomain.Invoice{}, err
	}

	if err := s.events.Emit(ctx, tx, invoice.TenantID, eventdomain.EventInvoiceCreated, map[string]any{
		"invoice_id": invoice.ID.String(),
		"number":     invoice.Number,
		"amount":     invoice.Amount,
		"currency":   invoice.Currency,
	}, "invoice.created:"+invoice.Number); err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("invoice created",
		zap.String("number", invoice.Number),
		zap.Int64("amount", invoice.Amount),
	)
	return invoice, nil
}

func (s *Service) Get(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

func (s *Service) GetByNumber(ctx context.Context, number string) (invoicedomain.Invoice, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}

	invoice, err := s.repo.FindByNumber(ctx, s.db, number)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}
	return *invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoicesRequest) ([]invoicedomain.Invoice, error) {
	return s.repo.List(ctx, s.db, req)
}

func (s *Service) RecordPayment(ctx context.Context, id string, amount int64) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if amount <= 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	var result invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Terminal() {
			return invoicedomain.ErrInvoiceTerminal
		}
		if invoice.Status == invoicedomain.StatusPaid {
			return invoicedomain.ErrInvoicePaid
		}
		if amount > invoice.AmountDue {
			return invoicedomain.ErrOverpayment
		}

		now := s.clock.Now()
		invoice.AmountPaid += amount
		invoice.AmountDue = invoice.Amount - invoice.AmountPaid
		invoice.UpdatedAt = now
		if invoice.AmountDue == 0 {
			invoice.Status = invoicedomain.StatusPaid
			invoice.PaidAt = &now
		} else {
			invoice.Status = invoicedomain.StatusPartiallyPaid
		}

		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}

		if invoice.Status == invoicedomain.StatusPaid {
			if err := s.events.Emit(ctx, tx, invoice.TenantID, eventdomain.EventInvoicePaid, map[string]any{
				"invoice_id": invoice.ID.String(),
				"number":     invoice.Number,
				"amount":     invoice.Amount,
			}, "invoice.paid:"+invoice.Number); err != nil {
				return err
			}
		}

		result = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	targetID := result.ID.String()
	_ = s.audit.AuditLog(ctx, &result.TenantID, string(auditdomain.ActorTypeSystem), nil,
		"invoice.payment_recorded", "invoice", &targetID, map[string]any{
			"amount": amount,
			"status": string(result.Status),
		})

	s.log.Info("payment recorded",
		zap.String("number", result.Number),
		zap.Int64("amount", amount),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

func (s *Service) Void(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	invoiceID, err := parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	var result invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByIDForUpdate(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if invoice.Terminal() {
			return invoicedomain.ErrInvoiceTerminal
		}
		if invoice.Status == invoicedomain.StatusPaid {
			return invoicedomain.ErrInvoicePaid
		}

		now := s.clock.Now()
		invoice.Status = invoicedomain.StatusVoid
		invoice.VoidedAt = &now
		invoice.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, invoice); err != nil {
			return err
		}
		result = *invoice
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	targetID := result.ID.String()
	_ = s.audit.AuditLog(ctx, &result.TenantID, string(auditdomain.ActorTypeSystem), nil,
		"invoice.voided", "invoice", &targetID, nil)

	return result, nil
}

// ProcessOverdue marks unpaid invoices past due date plus grace. One failed
// row does not stop the sweep.
func (s *Service) ProcessOverdue(ctx context.Context) (invoicedomain.OverdueReport, error) {
	grace := s.billingConfig.Get().OverdueGrace
	cutoff := s.clock.Now().AddDate(0, 0, -grace)

	candidates, err := s.repo.FindOverdueCandidates(ctx, s.db, cutoff, 500)
	if err != nil {
		return invoicedomain.OverdueReport{}, err
	}

	var report invoicedomain.OverdueReport
	for i := range candidates {
		invoice := candidates[i]
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			invoice.Status = invoicedomain.StatusOverdue
			invoice.UpdatedAt = s.clock.Now()
			if err := s.repo.Update(ctx, tx, &invoice); err != nil {
				return err
			}
			return s.events.Emit(ctx, tx, invoice.TenantID, eventdomain.EventInvoiceOverdue, map[string]any{
				"invoice_id": invoice.ID.String(),
				"number":     invoice.Number,
				"amount_due": invoice.AmountDue,
			}, "invoice.overdue:"+invoice.Number)
		})
		if err != nil {
			s.log.Warn("failed to mark invoice overdue",
				zap.String("number", invoice.Number),
				zap.Error(err),
			)
			report.Errors = append(report.Errors, fmt.Errorf("invoice %s: %w", invoice.Number, err))
			continue
		}
		report.Marked++
	}
	return report, nil
}

func (s *Service) RenderPDF(ctx context.Context, id string) ([]byte, error) {
	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	data := pdf.InvoiceData{
		CompanyName:   s.appConfig.AppName,
		CompanyEmail:  s.appConfig.SMTPFrom,
		InvoiceNumber: invoice.Number,
		IssueDate:     invoice.CreatedAt.Format("Jan 2, 2006"),
		DueDate:       invoice.DueAt.Format("Jan 2, 2006"),
		Status:        string(invoice.Status),
		BillToName:    invoice.TenantID.String(),
		Items: []pdf.InvoiceItem{
			{
				Description: invoice.Description,
				Qty:         1,
				UnitPrice:   formatCents(invoice.Amount, invoice.Currency),
				Amount:      formatCents(invoice.Amount, invoice.Currency),
			},
		},
		Subtotal:  formatCents(invoice.Amount, invoice.Currency),
		Total:     formatCents(invoice.Amount, invoice.Currency),
		AmountDue: formatCents(invoice.AmountDue, invoice.Currency),
	}
	return s.pdf.GenerateInvoice(ctx, data)
}

func formatCents(amount int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, amount/100, amount%100)
}

func parseID(id string) (snowflake.ID, error) {
	raw, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || raw == 0 {
		return 0, invoicedomain.ErrInvalidInvoiceID
	}
	return snowflake.ID(raw), nil
}
