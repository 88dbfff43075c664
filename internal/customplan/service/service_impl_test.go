package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/clock"
	customplandomain "github.com/croplytics/croplytics/internal/customplan/domain"
	pricingdomain "github.com/croplytics/croplytics/internal/pricing/domain"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type fakeCustomPlanRepo struct {
	plans map[snowflake.ID]*customplandomain.CustomPlan
}

func newFakeCustomPlanRepo(plans ...*customplandomain.CustomPlan) *fakeCustomPlanRepo {
	repo := &fakeCustomPlanRepo{plans: make(map[snowflake.ID]*customplandomain.CustomPlan)}
	for _, plan := range plans {
		copied := *plan
		repo.plans[plan.ID] = &copied
	}
	return repo
}

func (r *fakeCustomPlanRepo) Insert(ctx context.Context, db *gorm.DB, plan *customplandomain.CustomPlan) error {
	copied := *plan
	r.plans[plan.ID] = &copied
	return nil
}

func (r *fakeCustomPlanRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*customplandomain.CustomPlan, error) {
	return r.FindByIDForUpdate(ctx, db, id)
}

func (r *fakeCustomPlanRepo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*customplandomain.CustomPlan, error) {
	plan, ok := r.plans[id]
	if !ok {
		return nil, nil
	}
	copied := *plan
	return &copied, nil
}

func (r *fakeCustomPlanRepo) List(ctx context.Context, db *gorm.DB, req customplandomain.ListCustomPlansRequest) ([]customplandomain.CustomPlan, error) {
	var out []customplandomain.CustomPlan
	for _, plan := range r.plans {
		out = append(out, *plan)
	}
	return out, nil
}

func (r *fakeCustomPlanRepo) Update(ctx context.Context, db *gorm.DB, plan *customplandomain.CustomPlan) error {
	copied := *plan
	r.plans[plan.ID] = &copied
	return nil
}

func (r *fakeCustomPlanRepo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	delete(r.plans, id)
	return nil
}

type stubPricingSvc struct {
	quote pricingdomain.Quote
	err   error
}

func (s *stubPricingSvc) Calculate(ctx context.Context, req pricingdomain.QuoteRequest) (pricingdomain.Quote, error) {
	return s.quote, s.err
}

// stubSubscriptionSvc implements the subscription service with only
// CreateCustom doing any work.
type stubSubscriptionSvc struct {
	createCustomErr error
	customRequests  []subscriptiondomain.CreateCustomRequest
}

func (s *stubSubscriptionSvc) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, nil
}

func (s *stubSubscriptionSvc) CreateCustom(ctx context.Context, req subscriptiondomain.CreateCustomRequest) (subscriptiondomain.Subscription, error) {
	if s.createCustomErr != nil {
		return subscriptiondomain.Subscription{}, s.createCustomErr
	}
	s.customRequests = append(s.customRequests, req)
	return subscriptiondomain.Subscription{ID: 9999, TenantID: req.TenantID}, nil
}

func (s *stubSubscriptionSvc) Get(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
}

func (s *stubSubscriptionSvc) GetByTenant(ctx context.Context, tenantID snowflake.ID) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
}

func (s *stubSubscriptionSvc) List(ctx context.Context, req subscriptiondomain.ListSubscriptionsRequest) ([]subscriptiondomain.Subscription, error) {
	return nil, nil
}

func (s *stubSubscriptionSvc) Cancel(ctx context.Context, req subscriptiondomain.CancelRequest) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
}

func (s *stubSubscriptionSvc) Reactivate(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
}

func (s *stubSubscriptionSvc) ChangePlan(ctx context.Context, req subscriptiondomain.ChangePlanRequest) (subscriptiondomain.ChangePlanResult, error) {
	return subscriptiondomain.ChangePlanResult{}, subscriptiondomain.ErrSubscriptionNotFound
}

func (s *stubSubscriptionSvc) ProcessRenewals(ctx context.Context) (subscriptiondomain.SweepReport, error) {
	return subscriptiondomain.SweepReport{}, nil
}

func (s *stubSubscriptionSvc) ProcessExpirations(ctx context.Context) (subscriptiondomain.SweepReport, error) {
	return subscriptiondomain.SweepReport{}, nil
}

func (s *stubSubscriptionSvc) Analytics(ctx context.Context, windowStart, windowEnd time.Time) (subscriptiondomain.AnalyticsSnapshot, error) {
	return subscriptiondomain.AnalyticsSnapshot{}, nil
}

type stubPublisher struct{}

func (stubPublisher) Emit(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, eventType string, payload map[string]any, dedupeKey string) error {
	return nil
}

type stubAuditSvc struct{}

func (stubAuditSvc) AuditLog(ctx context.Context, tenantID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (stubAuditSvc) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type customPlanFixture struct {
	svc           *Service
	repo          *fakeCustomPlanRepo
	pricing       *stubPricingSvc
	subscriptions *stubSubscriptionSvc
}

func newCustomPlanFixture(t *testing.T, plans ...*customplandomain.CustomPlan) *customPlanFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &customPlanFixture{
		repo: newFakeCustomPlanRepo(plans...),
		pricing: &stubPricingSvc{quote: pricingdomain.Quote{
			FinalAmount: 123400,
		}},
		subscriptions: &stubSubscriptionSvc{},
	}
	f.svc = NewService(Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:          f.repo,
		Pricing:       f.pricing,
		Subscriptions: f.subscriptions,
		Events:        stubPublisher{},
		Audit:         stubAuditSvc{},
	}).(*Service)
	return f
}

func draftPlan(id snowflake.ID) *customplandomain.CustomPlan {
	return &customplandomain.CustomPlan{
		ID:                 id,
		TenantID:           42,
		Name:               "Negotiated",
		Status:             customplandomain.StatusDraft,
		Modules:            datatypes.JSON(`[{"module_code":"FARM_MANAGEMENT","quantities":{"PER_USER":10}}]`),
		BillingCycleMonths: 12,
	}
}

func TestSubmit_ReprcicesAndMovesToPendingApproval(t *testing.T) {
	plan := draftPlan(1)
	f := newCustomPlanFixture(t, plan)

	submitted, err := f.svc.Submit(context.Background(), plan.ID.String())
	require.NoError(t, err)
	assert.Equal(t, customplandomain.StatusPendingApproval, submitted.Status)
	assert.Equal(t, int64(123400), submitted.QuotedAmount)
	require.NotNil(t, submitted.SubmittedAt)
}

func TestSubmit_RequiresDraftWithModules(t *testing.T) {
	noModules := draftPlan(1)
	noModules.Modules = nil
	pending := draftPlan(2)
	pending.Status = customplandomain.StatusPendingApproval

	f := newCustomPlanFixture(t, noModules, pending)

	_, err := f.svc.Submit(context.Background(), noModules.ID.String())
	assert.ErrorIs(t, err, customplandomain.ErrNoModules)

	_, err = f.svc.Submit(context.Background(), pending.ID.String())
	assert.ErrorIs(t, err, customplandomain.ErrNotDraft)
}

func TestApproveAndReject(t *testing.T) {
	pending := draftPlan(1)
	pending.Status = customplandomain.StatusPendingApproval
	other := draftPlan(2)
	other.Status = customplandomain.StatusPendingApproval

	f := newCustomPlanFixture(t, pending, other)

	approved, err := f.svc.Approve(context.Background(), pending.ID.String(), "ops@croplytics.io")
	require.NoError(t, err)
	assert.Equal(t, customplandomain.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "ops@croplytics.io", *approved.ApprovedBy)

	_, err = f.svc.Approve(context.Background(), pending.ID.String(), "ops@croplytics.io")
	assert.ErrorIs(t, err, customplandomain.ErrNotPending)

	_, err = f.svc.Approve(context.Background(), other.ID.String(), "")
	assert.ErrorIs(t, err, customplandomain.ErrMissingApprover)

	rejected, err := f.svc.Reject(context.Background(), other.ID.String(), "price too low")
	require.NoError(t, err)
	assert.Equal(t, customplandomain.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectedReason)

	_, err = f.svc.Reject(context.Background(), other.ID.String(), "again")
	assert.ErrorIs(t, err, customplandomain.ErrNotPending)
}

func TestReject_RequiresReason(t *testing.T) {
	pending := draftPlan(1)
	pending.Status = customplandomain.StatusPendingApproval

	f := newCustomPlanFixture(t, pending)
	_, err := f.svc.Reject(context.Background(), pending.ID.String(), "  ")
	assert.ErrorIs(t, err, customplandomain.ErrMissingReason)
}

func TestActivate_CreatesSubscription(t *testing.T) {
	approved := draftPlan(1)
	approved.Status = customplandomain.StatusApproved
	approved.QuotedAmount = 123400

	f := newCustomPlanFixture(t, approved)
	activated, err := f.svc.Activate(context.Background(), approved.ID.String())
	require.NoError(t, err)
	assert.Equal(t, customplandomain.StatusActive, activated.Status)
	require.NotNil(t, activated.ActivatedAt)

	require.Len(t, f.subscriptions.customRequests, 1)
	created := f.subscriptions.customRequests[0]
	assert.Equal(t, snowflake.ID(42), created.TenantID)
	assert.Equal(t, approved.ID, created.CustomPlanID)
	assert.Equal(t, int64(123400), created.BasePrice)
	assert.Equal(t, 12, created.BillingCycleMonths)
}

func TestActivate_FailureKeepsApproved(t *testing.T) {
	approved := draftPlan(1)
	approved.Status = customplandomain.StatusApproved

	f := newCustomPlanFixture(t, approved)
	f.subscriptions.createCustomErr = errors.New("tenant already subscribed")

	_, err := f.svc.Activate(context.Background(), approved.ID.String())
	require.Error(t, err)
	assert.Equal(t, customplandomain.StatusApproved, f.repo.plans[approved.ID].Status)
}

func TestActivate_RequiresApproved(t *testing.T) {
	draft := draftPlan(1)
	f := newCustomPlanFixture(t, draft)

	_, err := f.svc.Activate(context.Background(), draft.ID.String())
	assert.ErrorIs(t, err, customplandomain.ErrNotApproved)
}

func TestDelete_OnlyDrafts(t *testing.T) {
	draft := draftPlan(1)
	pending := draftPlan(2)
	pending.Status = customplandomain.StatusPendingApproval

	f := newCustomPlanFixture(t, draft, pending)

	require.NoError(t, f.svc.Delete(context.Background(), draft.ID.String()))
	assert.NotContains(t, f.repo.plans, draft.ID)

	err := f.svc.Delete(context.Background(), pending.ID.String())
	assert.ErrorIs(t, err, customplandomain.ErrNotDraft)
}

func TestClone_ResetsWorkflowState(t *testing.T) {
	rejected := draftPlan(1)
	rejected.Status = customplandomain.StatusRejected
	reason := "too cheap"
	rejected.RejectedReason = &reason

	f := newCustomPlanFixture(t, rejected)
	clone, err := f.svc.Clone(context.Background(), rejected.ID.String())
	require.NoError(t, err)
	assert.Equal(t, customplandomain.StatusDraft, clone.Status)
	assert.Equal(t, "Negotiated (copy)", clone.Name)
	assert.Nil(t, clone.RejectedReason)
	assert.NotEqual(t, rejected.ID, clone.ID)
}
