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
	discountdomain "github.com/croplytics/croplytics/internal/discount/domain"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// fakeSubscriptionRepo backs the service with an in-memory map so renewal
// tests exercise the period math without a real database.
type fakeSubscriptionRepo struct {
	subs       map[snowflake.ID]*subscriptiondomain.Subscription
	findErr    map[snowflake.ID]error
	updated    []snowflake.ID
	mirrored   []snowflake.ID
}

func newFakeSubscriptionRepo(subs ...*subscriptiondomain.Subscription) *fakeSubscriptionRepo {
	repo := &fakeSubscriptionRepo{
		subs:    make(map[snowflake.ID]*subscriptiondomain.Subscription),
		findErr: make(map[snowflake.ID]error),
	}
	for _, sub := range subs {
		copied := *sub
		repo.subs[sub.ID] = &copied
	}
	return repo
}

func (r *fakeSubscriptionRepo) Insert(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	copied := *sub
	r.subs[sub.ID] = &copied
	return nil
}

func (r *fakeSubscriptionRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.FindByIDForUpdate(ctx, db, id)
}

func (r *fakeSubscriptionRepo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if err := r.findErr[id]; err != nil {
		return nil, err
	}
	sub, ok := r.subs[id]
	if !ok {
		return nil, nil
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeSubscriptionRepo) FindByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	for _, sub := range r.subs {
		if sub.TenantID == tenantID {
			copied := *sub
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeSubscriptionRepo) Update(ctx context.Context, db *gorm.DB, sub *subscriptiondomain.Subscription) error {
	copied := *sub
	r.subs[sub.ID] = &copied
	r.updated = append(r.updated, sub.ID)
	return nil
}

func (r *fakeSubscriptionRepo) List(ctx context.Context, db *gorm.DB, req subscriptiondomain.ListSubscriptionsRequest) ([]subscriptiondomain.Subscription, error) {
	var out []subscriptiondomain.Subscription
	for _, sub := range r.subs {
		out = append(out, *sub)
	}
	return out, nil
}

func (r *fakeSubscriptionRepo) ListDueForRenewal(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var due []subscriptiondomain.Subscription
	for _, sub := range r.subs {
		if sub.Billable() && sub.AutoRenew && !sub.CurrentPeriodEnd.After(now) {
			due = append(due, *sub)
		}
	}
	return due, nil
}

func (r *fakeSubscriptionRepo) ListDueForExpiration(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]subscriptiondomain.Subscription, error) {
	var due []subscriptiondomain.Subscription
	for _, sub := range r.subs {
		if !sub.AutoRenew && !sub.Status.Terminal() && !sub.CurrentPeriodEnd.After(now) {
			due = append(due, *sub)
		}
	}
	return due, nil
}

func (r *fakeSubscriptionRepo) MirrorTenantBilling(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, tier plandomain.PlanTier, limits datatypes.JSONMap) error {
	r.mirrored = append(r.mirrored, tenantID)
	return nil
}

func (r *fakeSubscriptionRepo) CountByStatus(ctx context.Context, db *gorm.DB) (map[subscriptiondomain.Status]int64, error) {
	return map[subscriptiondomain.Status]int64{}, nil
}

func (r *fakeSubscriptionRepo) CountByTier(ctx context.Context, db *gorm.DB) (map[plandomain.PlanTier]int64, error) {
	return map[plandomain.PlanTier]int64{}, nil
}

func (r *fakeSubscriptionRepo) SumActiveMonthlyRevenue(ctx context.Context, db *gorm.DB) (int64, error) {
	return 0, nil
}

func (r *fakeSubscriptionRepo) CountCancellations(ctx context.Context, db *gorm.DB, windowStart, windowEnd time.Time) (int64, error) {
	return 0, nil
}

type fakePlanRepo struct {
	plans map[string]*plandomain.PlanDefinition
}

func (r *fakePlanRepo) Insert(ctx context.Context, db *gorm.DB, plan *plandomain.PlanDefinition) error {
	return nil
}

func (r *fakePlanRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*plandomain.PlanDefinition, error) {
	for _, plan := range r.plans {
		if plan.ID == id {
			return plan, nil
		}
	}
	return nil, nil
}

func (r *fakePlanRepo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*plandomain.PlanDefinition, error) {
	return r.plans[code], nil
}

func (r *fakePlanRepo) List(ctx context.Context, db *gorm.DB, includeDeprecated bool) ([]plandomain.PlanDefinition, error) {
	return nil, nil
}

func (r *fakePlanRepo) Update(ctx context.Context, db *gorm.DB, plan *plandomain.PlanDefinition) error {
	return nil
}

func (r *fakePlanRepo) CountActiveSubscriptions(ctx context.Context, db *gorm.DB, code string) (int64, error) {
	return 0, nil
}

type fakeInvoiceSvc struct {
	created []invoicedomain.CreateInvoiceRequest
	fail    error
}

func (f *fakeInvoiceSvc) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	return f.CreateTx(ctx, nil, req)
}

func (f *fakeInvoiceSvc) CreateTx(ctx context.Context, tx *gorm.DB, req invoicedomain.CreateInvoiceRequest) (invoicedomain.Invoice, error) {
	if f.fail != nil {
		return invoicedomain.Invoice{}, f.fail
	}
	f.created = append(f.created, req)
	return invoicedomain.Invoice{Number: "INV-TEST", Amount: req.Amount}, nil
}

func (f *fakeInvoiceSvc) Get(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
}

func (f *fakeInvoiceSvc) GetByNumber(ctx context.Context, number string) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
}

func (f *fakeInvoiceSvc) List(ctx context.Context, req invoicedomain.ListInvoicesRequest) ([]invoicedomain.Invoice, error) {
	return nil, nil
}

func (f *fakeInvoiceSvc) RecordPayment(ctx context.Context, id string, amount int64) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
}

func (f *fakeInvoiceSvc) Void(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
}

func (f *fakeInvoiceSvc) ProcessOverdue(ctx context.Context) (invoicedomain.OverdueReport, error) {
	return invoicedomain.OverdueReport{}, nil
}

func (f *fakeInvoiceSvc) RenderPDF(ctx context.Context, id string) ([]byte, error) {
	return nil, invoicedomain.ErrInvoiceNotFound
}

type fakePublisher struct {
	emitted []string
}

func (f *fakePublisher) Emit(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, eventType string, payload map[string]any, dedupeKey string) error {
	f.emitted = append(f.emitted, eventType)
	return nil
}

type fakeAuditSvc struct {
	actions []string
}

func (f *fakeAuditSvc) AuditLog(ctx context.Context, tenantID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type fakeDiscountSvc struct {
	result discountdomain.ApplyResult
	err    error
}

func (f *fakeDiscountSvc) Create(ctx context.Context, req discountdomain.CreateDiscountRequest) (discountdomain.DiscountCode, error) {
	return discountdomain.DiscountCode{}, nil
}

func (f *fakeDiscountSvc) GetByCode(ctx context.Context, code string) (discountdomain.DiscountCode, error) {
	return discountdomain.DiscountCode{}, discountdomain.ErrCodeNotFound
}

func (f *fakeDiscountSvc) List(ctx context.Context, activeOnly bool) ([]discountdomain.DiscountCode, error) {
	return nil, nil
}

func (f *fakeDiscountSvc) Deactivate(ctx context.Context, code string) (discountdomain.DiscountCode, error) {
	return discountdomain.DiscountCode{}, discountdomain.ErrCodeNotFound
}

func (f *fakeDiscountSvc) Validate(ctx context.Context, req discountdomain.ValidateRequest) (discountdomain.DiscountCode, error) {
	return discountdomain.DiscountCode{}, f.err
}

func (f *fakeDiscountSvc) Apply(ctx context.Context, req discountdomain.ApplyRequest) (discountdomain.ApplyResult, error) {
	return f.result, f.err
}

func (f *fakeDiscountSvc) ApplyTx(ctx context.Context, tx *gorm.DB, req discountdomain.ApplyRequest) (discountdomain.ApplyResult, error) {
	return f.result, f.err
}

type subscriptionFixture struct {
	svc      *Service
	repo     *fakeSubscriptionRepo
	plans    *fakePlanRepo
	invoices *fakeInvoiceSvc
	events   *fakePublisher
	audit    *fakeAuditSvc
	clock    *clock.FakeClock
}

func newSubscriptionFixture(t *testing.T, now time.Time, subs ...*subscriptiondomain.Subscription) *subscriptionFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &subscriptionFixture{
		repo:     newFakeSubscriptionRepo(subs...),
		plans:    &fakePlanRepo{plans: map[string]*plandomain.PlanDefinition{}},
		invoices: &fakeInvoiceSvc{},
		events:   &fakePublisher{},
		audit:    &fakeAuditSvc{},
		clock:    clock.NewFakeClock(now),
	}
	f.svc = NewService(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         f.clock,
		Repo:          f.repo,
		Plans:         f.plans,
		Discounts:     &fakeDiscountSvc{},
		Invoices:      f.invoices,
		Events:        f.events,
		Audit:         f.audit,
		BillingConfig: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	}).(*Service)
	return f
}

func TestProratedAmount(t *testing.T) {
	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := periodStart.AddDate(0, 1, 0) // 31-day period

	cases := []struct {
		name         string
		currentPrice int64
		newPrice     int64
		now          time.Time
		want         int64
	}{
		{
			name:         "upgrade mid period",
			currentPrice: 4900,
			newPrice:     19900,
			now:          periodStart.AddDate(0, 0, 16), // 15 days remaining
			want:         7258,                          // round(15000 * 15 / 31)
		},
		{
			name:         "downgrade yields negative credit",
			currentPrice: 19900,
			newPrice:     4900,
			now:          periodStart.AddDate(0, 0, 16),
			want:         -7258,
		},
		{
			name:         "period already over",
			currentPrice: 4900,
			newPrice:     19900,
			now:          periodEnd,
			want:         0,
		},
		{
			name:         "full period remaining charges whole delta",
			currentPrice: 4900,
			newPrice:     19900,
			now:          periodStart,
			want:         15000,
		},
		{
			name:         "same price",
			currentPrice: 4900,
			newPrice:     4900,
			now:          periodStart.AddDate(0, 0, 10),
			want:         0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ProratedAmount(tc.currentPrice, tc.newPrice, tc.now, periodStart, periodEnd)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestProratedAmount_DegenerateWindow(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, int64(0), ProratedAmount(4900, 19900, at, at, at))
}

func TestProcessRenewals_AdvancesPeriodAndInvoices(t *testing.T) {
	periodStart := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	now := periodEnd.Add(2 * time.Hour)

	sub := &subscriptiondomain.Subscription{
		ID:                 1001,
		TenantID:           42,
		PlanCode:           "STARTER",
		Tier:               plandomain.TierStarter,
		Status:             subscriptiondomain.StatusActive,
		BillingCycle:       plandomain.CycleMonthly,
		BillingCycleMonths: 1,
		AutoRenew:          true,
		CurrentPeriodStart: periodStart,
		CurrentPeriodEnd:   periodEnd,
		BasePrice:          4900,
	}

	f := newSubscriptionFixture(t, now, sub)
	report, err := f.svc.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Empty(t, report.Errors)

	renewed := f.repo.subs[sub.ID]
	assert.Equal(t, periodEnd, renewed.CurrentPeriodStart)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), renewed.CurrentPeriodEnd)

	require.Len(t, f.invoices.created, 1)
	assert.Equal(t, int64(4900), f.invoices.created[0].Amount)
	assert.Equal(t, snowflake.ID(42), f.invoices.created[0].TenantID)
	assert.Contains(t, f.events.emitted, "subscription.renewed")
}

func TestProcessRenewals_TrialConverts(t *testing.T) {
	trialEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	now := trialEnd.Add(time.Hour)

	sub := &subscriptiondomain.Subscription{
		ID:                 1002,
		TenantID:           43,
		PlanCode:           "PROFESSIONAL",
		Status:             subscriptiondomain.StatusTrialing,
		BillingCycle:       plandomain.CycleMonthly,
		BillingCycleMonths: 1,
		AutoRenew:          true,
		CurrentPeriodStart: trialEnd.AddDate(0, 0, -14),
		CurrentPeriodEnd:   trialEnd,
		TrialEndsAt:        &trialEnd,
		BasePrice:          19900,
	}

	f := newSubscriptionFixture(t, now, sub)
	report, err := f.svc.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)

	renewed := f.repo.subs[sub.ID]
	assert.Equal(t, subscriptiondomain.StatusActive, renewed.Status)
	assert.Nil(t, renewed.TrialEndsAt)
}

func TestProcessRenewals_FailureDoesNotStopBatch(t *testing.T) {
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	now := periodEnd.Add(time.Hour)

	good := &subscriptiondomain.Subscription{
		ID:                 1, TenantID: 1, PlanCode: "STARTER",
		Status:             subscriptiondomain.StatusActive,
		BillingCycle:       plandomain.CycleMonthly,
		BillingCycleMonths: 1, AutoRenew: true,
		CurrentPeriodStart: periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd:   periodEnd,
		BasePrice:          4900,
	}
	bad := &subscriptiondomain.Subscription{
		ID:                 2, TenantID: 2, PlanCode: "STARTER",
		Status:             subscriptiondomain.StatusActive,
		BillingCycle:       plandomain.CycleMonthly,
		BillingCycleMonths: 1, AutoRenew: true,
		CurrentPeriodStart: periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd:   periodEnd,
		BasePrice:          4900,
	}

	f := newSubscriptionFixture(t, now, good, bad)
	f.repo.findErr[bad.ID] = errors.New("lock timeout")

	report, err := f.svc.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Error(), "lock timeout")
}

func TestProcessRenewals_SkipsFreshOrCanceledRows(t *testing.T) {
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	now := periodEnd.Add(time.Hour)

	sub := &subscriptiondomain.Subscription{
		ID:                 3, TenantID: 3, PlanCode: "STARTER",
		Status:             subscriptiondomain.StatusActive,
		BillingCycle:       plandomain.CycleMonthly,
		BillingCycleMonths: 1, AutoRenew: true,
		CurrentPeriodStart: periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd:   periodEnd,
		BasePrice:          4900,
	}

	f := newSubscriptionFixture(t, now, sub)
	// Cancel between the scan and the lock.
	f.repo.subs[sub.ID].Status = subscriptiondomain.StatusCanceled
	f.repo.subs[sub.ID].CurrentPeriodEnd = periodEnd

	report, err := f.svc.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Empty(t, f.invoices.created)
	assert.Equal(t, subscriptiondomain.StatusCanceled, f.repo.subs[sub.ID].Status)
}

func TestProcessExpirations(t *testing.T) {
	periodEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	now := periodEnd.Add(time.Hour)

	sub := &subscriptiondomain.Subscription{
		ID:                 4, TenantID: 4, PlanCode: "STARTER",
		Status:             subscriptiondomain.StatusActive,
		BillingCycle:       plandomain.CycleMonthly,
		BillingCycleMonths: 1, AutoRenew: false,
		CurrentPeriodStart: periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd:   periodEnd,
		BasePrice:          4900,
	}

	f := newSubscriptionFixture(t, now, sub)
	report, err := f.svc.ProcessExpirations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, subscriptiondomain.StatusExpired, f.repo.subs[sub.ID].Status)
}
