package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/clock"
	tenantdomain "github.com/croplytics/croplytics/internal/tenant/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeTenantRepo struct {
	tenants map[snowflake.ID]*tenantdomain.Tenant
	notes   map[snowflake.ID][]tenantdomain.TenantNote
}

func newFakeTenantRepo(tenants ...*tenantdomain.Tenant) *fakeTenantRepo {
	repo := &fakeTenantRepo{
		tenants: make(map[snowflake.ID]*tenantdomain.Tenant),
		notes:   make(map[snowflake.ID][]tenantdomain.TenantNote),
	}
	for _, tenant := range tenants {
		copied := *tenant
		repo.tenants[tenant.ID] = &copied
	}
	return repo
}

func (r *fakeTenantRepo) Insert(ctx context.Context, db *gorm.DB, tenant *tenantdomain.Tenant) error {
	copied := *tenant
	r.tenants[tenant.ID] = &copied
	return nil
}

func (r *fakeTenantRepo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tenantdomain.Tenant, error) {
	return r.FindByIDForUpdate(ctx, db, id)
}

func (r *fakeTenantRepo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*tenantdomain.Tenant, error) {
	tenant, ok := r.tenants[id]
	if !ok {
		return nil, nil
	}
	copied := *tenant
	return &copied, nil
}

func (r *fakeTenantRepo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*tenantdomain.Tenant, error) {
	for _, tenant := range r.tenants {
		if tenant.Slug == slug {
			copied := *tenant
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeTenantRepo) FindByDomain(ctx context.Context, db *gorm.DB, domain string) (*tenantdomain.Tenant, error) {
	for _, tenant := range r.tenants {
		if tenant.Domain != nil && *tenant.Domain == domain {
			copied := *tenant
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeTenantRepo) Update(ctx context.Context, db *gorm.DB, tenant *tenantdomain.Tenant) error {
	copied := *tenant
	r.tenants[tenant.ID] = &copied
	return nil
}

func (r *fakeTenantRepo) List(ctx context.Context, db *gorm.DB, filter tenantdomain.ListFilter) ([]tenantdomain.Tenant, error) {
	var out []tenantdomain.Tenant
	for _, tenant := range r.tenants {
		out = append(out, *tenant)
	}
	return out, nil
}

func (r *fakeTenantRepo) CountOpenInvoices(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error) {
	return 0, nil
}

func (r *fakeTenantRepo) InsertNote(ctx context.Context, db *gorm.DB, note *tenantdomain.TenantNote) error {
	r.notes[note.TenantID] = append(r.notes[note.TenantID], *note)
	return nil
}

func (r *fakeTenantRepo) ListNotes(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]tenantdomain.TenantNote, error) {
	return r.notes[tenantID], nil
}

func (r *fakeTenantRepo) DeleteNote(ctx context.Context, db *gorm.DB, tenantID, noteID snowflake.ID) (bool, error) {
	notes := r.notes[tenantID]
	for i, note := range notes {
		if note.ID == noteID {
			r.notes[tenantID] = append(notes[:i], notes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

type tenantEventRecorder struct {
	emitted []string
}

func (r *tenantEventRecorder) Emit(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, eventType string, payload map[string]any, dedupeKey string) error {
	r.emitted = append(r.emitted, eventType)
	return nil
}

type tenantNoopAudit struct{}

func (tenantNoopAudit) AuditLog(ctx context.Context, tenantID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (tenantNoopAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type tenantFixture struct {
	svc    *Service
	repo   *fakeTenantRepo
	events *tenantEventRecorder
	clock  *clock.FakeClock
}

func newTenantFixture(t *testing.T, tenants ...*tenantdomain.Tenant) *tenantFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &tenantFixture{
		repo:   newFakeTenantRepo(tenants...),
		events: &tenantEventRecorder{},
		clock:  clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	}
	f.svc = NewService(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  f.clock,
		Repo:   f.repo,
		Events: f.events,
		Audit:  tenantNoopAudit{},
	}).(*Service)
	return f
}

func tenantInState(id snowflake.ID, status tenantdomain.Status) *tenantdomain.Tenant {
	tenant := &tenantdomain.Tenant{
		ID:           id,
		Name:         "Riverbend Farms",
		Slug:         "riverbend-farms",
		StoredStatus: tenantdomain.StoredStatusFor(status),
	}
	if status == tenantdomain.StatusArchived {
		at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		tenant.ArchivedAt = &at
	}
	return tenant
}

func TestSuspend_OnlyFromActive(t *testing.T) {
	active := tenantInState(1, tenantdomain.StatusActive)
	pending := tenantInState(2, tenantdomain.StatusPending)

	f := newTenantFixture(t, active, pending)

	suspended, err := f.svc.Suspend(context.Background(), active.ID.String(), "nonpayment")
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.StatusSuspended, suspended.Status())
	require.NotNil(t, suspended.SuspendedAt)
	require.NotNil(t, suspended.SuspensionReason)
	assert.Equal(t, "nonpayment", *suspended.SuspensionReason)
	assert.Contains(t, f.events.emitted, "tenant.suspended")

	_, err = f.svc.Suspend(context.Background(), pending.ID.String(), "x")
	assert.ErrorIs(t, err, tenantdomain.ErrIllegalState)
}

func TestActivate_ClearsSuspension(t *testing.T) {
	suspended := tenantInState(1, tenantdomain.StatusSuspended)
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	reason := "nonpayment"
	suspended.SuspendedAt = &at
	suspended.SuspensionReason = &reason

	f := newTenantFixture(t, suspended)
	activated, err := f.svc.Activate(context.Background(), suspended.ID.String())
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.StatusActive, activated.Status())
	assert.Nil(t, activated.SuspendedAt)
	assert.Nil(t, activated.SuspensionReason)
}

func TestActivate_IllegalFromArchived(t *testing.T) {
	archived := tenantInState(1, tenantdomain.StatusArchived)
	f := newTenantFixture(t, archived)

	_, err := f.svc.Activate(context.Background(), archived.ID.String())
	assert.ErrorIs(t, err, tenantdomain.ErrIllegalState)
}

func TestDeactivateAndArchive(t *testing.T) {
	active := tenantInState(1, tenantdomain.StatusActive)
	f := newTenantFixture(t, active)

	deactivated, err := f.svc.Deactivate(context.Background(), active.ID.String())
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.StatusDeactivated, deactivated.Status())

	_, err = f.svc.Deactivate(context.Background(), active.ID.String())
	assert.ErrorIs(t, err, tenantdomain.ErrIllegalState)

	archived, err := f.svc.Archive(context.Background(), active.ID.String())
	require.NoError(t, err)
	assert.Equal(t, tenantdomain.StatusArchived, archived.Status())
	require.NotNil(t, archived.ArchivedAt)

	_, err = f.svc.Archive(context.Background(), active.ID.String())
	assert.ErrorIs(t, err, tenantdomain.ErrIllegalState)
}

func TestBulkSuspend_ReportsPerTenant(t *testing.T) {
	active := tenantInState(1, tenantdomain.StatusActive)
	pending := tenantInState(2, tenantdomain.StatusPending)

	f := newTenantFixture(t, active, pending)
	results := f.svc.BulkSuspend(context.Background(),
		[]string{active.ID.String(), pending.ID.String(), "999"}, "cleanup")

	require.Len(t, results, 3)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Equal(t, tenantdomain.ErrIllegalState.Error(), results[1].Error)
	assert.False(t, results[2].OK)
}

func TestCreate_SlugAndDuplicates(t *testing.T) {
	f := newTenantFixture(t)

	created, err := f.svc.Create(context.Background(), tenantdomain.CreateTenantRequest{
		Name: "Green Valley Co-op",
	})
	require.NoError(t, err)
	assert.Equal(t, "green-valley-co-op", created.Slug)
	assert.Equal(t, tenantdomain.StatusPending, created.Status())

	_, err = f.svc.Create(context.Background(), tenantdomain.CreateTenantRequest{
		Name: "Other",
		Slug: "green-valley-co-op",
	})
	assert.ErrorIs(t, err, tenantdomain.ErrDuplicateSlug)

	_, err = f.svc.Create(context.Background(), tenantdomain.CreateTenantRequest{Name: "  "})
	assert.ErrorIs(t, err, tenantdomain.ErrInvalidName)
}

func TestNotes_AddListDelete(t *testing.T) {
	active := tenantInState(1, tenantdomain.StatusActive)
	f := newTenantFixture(t, active)

	note, err := f.svc.AddNote(context.Background(), tenantdomain.AddNoteRequest{
		TenantID: active.ID.String(),
		AuthorID: "user:77",
		Body:     "renewal call scheduled",
	})
	require.NoError(t, err)

	notes, err := f.svc.ListNotes(context.Background(), active.ID.String())
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "renewal call scheduled", notes[0].Body)

	require.NoError(t, f.svc.DeleteNote(context.Background(), active.ID.String(), note.ID.String()))
	err = f.svc.DeleteNote(context.Background(), active.ID.String(), note.ID.String())
	assert.ErrorIs(t, err, tenantdomain.ErrNoteNotFound)
}
