package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/croplytics/croplytics/internal/clock"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sweepSubscriptionSvc struct {
	renewalReport    subscriptiondomain.SweepReport
	expirationReport subscriptiondomain.SweepReport
	renewalErr       error
	renewalCalls     int
	expirationCalls  int
}

func (s *sweepSubscriptionSvc) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}

func (s *sweepSubscriptionSvc) CreateCustom(ctx context.Context, req subscriptiondomain.CreateCustomRequest) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}

func (s *sweepSubscriptionSvc) Get(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}

func (s *sweepSubscriptionSvc) GetByTenant(ctx context.Context, tenantID snowflake.ID) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}

func (s *sweepSubscriptionSvc) List(ctx context.Context, req subscriptiondomain.ListSubscriptionsRequest) ([]subscriptiondomain.Subscription, error) {
	return nil, nil
}

func (s *sweepSubscriptionSvc) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}

func (s *sweepSubscriptionSvc) Reactivate(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}

func (s *sweepSubscriptionSvc) ChangePlan(ctx context.Context, req subscriptiondomain.ChangePlanRequest) (subscriptiondomain.ChangePlanResult, error) {
	return subscriptiondomain.ChangePlanResult{}, nil
}

func (s *sweepSubscriptionSvc) ProcessRenewals(ctx context.Context) (subscriptiondomain.SweepReport, error) {
	s.renewalCalls++
	return s.renewalReport, s.renewalErr
}

func (s *sweepSubscriptionSvc) ProcessExpirations(ctx context.Context) (subscriptiondomain.SweepReport, error) {
	s.expirationCalls++
	return s.expirationReport, nil
}

func (s *sweepSubscriptionSvc) Analytics(ctx context.Context, windowStart, windowEnd time.Time) (subscriptiondomain.AnalyticsSnapshot, error) {
	return subscriptiondomain.AnalyticsSnapshot{}, nil
}

type sweepInvoiceSvc struct {
	overdueReport invoicedomain.OverdueReport
	overdueCalls  int
}

func (s *sweepInvoiceSvc) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}

func (s *sweepInvoiceSvc) CreateTx(ctx context.Context, tx *gorm.DB, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}

func (s *sweepInvoiceSvc) Get(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}

func (s *sweepInvoiceSvc) GetByNumber(ctx context.Context, number string) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}

func (s *sweepInvoiceSvc) List(ctx context.Context, req invoicedomain.ListInvoicesRequest) ([]invoicedomain.Invoice, error) {
	return nil, nil
}

func (s *sweepInvoiceSvc) RecordPayment(ctx context.Context, id string, amount int64) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}

func (s *sweepInvoiceSvc) Void(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, nil
}

func (s *sweepInvoiceSvc) ProcessOverdue(ctx context.Context) (invoicedomain.OverdueReport, error) {
	s.overdueCalls++
	return s.overdueReport, nil
}

func (s *sweepInvoiceSvc) RenderPDF(ctx context.Context, id string) ([]byte, error) {
	return nil, nil
}

type allowAllAuthz struct {
	denied map[string]error
	calls  []string
}

func (a *allowAllAuthz) Authorize(ctx context.Context, actor, tenantID, object, action string) error {
	a.calls = append(a.calls, object+":"+action)
	if a.denied != nil {
		if err, ok := a.denied[object]; ok {
			return err
		}
	}
	return nil
}

func newScheduler(t *testing.T, subs *sweepSubscriptionSvc, invoices *sweepInvoiceSvc, authz *allowAllAuthz, cfg Config) *Scheduler {
	t.Helper()

	s, err := New(Params{
		Log:             zap.NewNop(),
		Clock:           clock.NewFakeClock(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)),
		SubscriptionSvc: subs,
		InvoiceSvc:      invoices,
		AuthzSvc:        authz,
		Config:          cfg,
	})
	require.NoError(t, err)
	return s
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunOnce_RunsAllJobs(t *testing.T) {
	subs := &sweepSubscriptionSvc{
		renewalReport:    subscriptiondomain.SweepReport{Processed: 3},
		expirationReport: subscriptiondomain.SweepReport{Processed: 1},
	}
	invoices := &sweepInvoiceSvc{overdueReport: invoicedomain.OverdueReport{Marked: 2}}
	authz := &allowAllAuthz{}

	s := newScheduler(t, subs, invoices, authz, Config{})
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 1, subs.renewalCalls)
	assert.Equal(t, 1, subs.expirationCalls)
	assert.Equal(t, 1, invoices.overdueCalls)
	assert.Len(t, authz.calls, 3)
}

func TestRunOnce_EnabledJobsFilter(t *testing.T) {
	subs := &sweepSubscriptionSvc{}
	invoices := &sweepInvoiceSvc{}

	s := newScheduler(t, subs, invoices, &allowAllAuthz{}, Config{
		EnabledJobs: []string{"overdue_invoices"},
	})
	require.NoError(t, s.RunOnce(context.Background()))

	assert.Zero(t, subs.renewalCalls)
	assert.Zero(t, subs.expirationCalls)
	assert.Equal(t, 1, invoices.overdueCalls)
}

func TestRunOnce_ItemErrorsSurface(t *testing.T) {
	itemErr := errors.New("row lock timeout")
	subs := &sweepSubscriptionSvc{
		renewalReport: subscriptiondomain.SweepReport{Processed: 1, Errors: []error{itemErr}},
	}

	s := newScheduler(t, subs, &sweepInvoiceSvc{}, &allowAllAuthz{}, Config{})
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, itemErr)

	// Later jobs still ran.
	assert.Equal(t, 1, subs.expirationCalls)
}

func TestRunOnce_UnauthorizedJobFails(t *testing.T) {
	denied := errors.New("permission_denied")
	subs := &sweepSubscriptionSvc{}
	invoices := &sweepInvoiceSvc{}
	authz := &allowAllAuthz{denied: map[string]error{"subscription": denied}}

	s := newScheduler(t, subs, invoices, authz, Config{})
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, denied)

	assert.Zero(t, subs.renewalCalls)
	assert.Equal(t, 1, invoices.overdueCalls)
}
