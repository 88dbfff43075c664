package provisioning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/clock"
	"github.com/croplytics/croplytics/internal/providers/email"
	tenantdomain "github.com/croplytics/croplytics/internal/tenant/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubTenantSvc struct {
	tenant      tenantdomain.Tenant
	getErr      error
	activateErr error
	activated   []string
	updates     []tenantdomain.UpdateTenantRequest
}

func (s *stubTenantSvc) Create(ctx context.Context, req tenantdomain.CreateTenantRequest) (tenantdomain.Tenant, error) {
	return tenantdomain.Tenant{}, nil
}

func (s *stubTenantSvc) Get(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	if s.getErr != nil {
		return tenantdomain.Tenant{}, s.getErr
	}
	return s.tenant, nil
}

func (s *stubTenantSvc) GetBySlug(ctx context.Context, slug string) (tenantdomain.Tenant, error) {
	return s.tenant, nil
}

func (s *stubTenantSvc) Update(ctx context.Context, req tenantdomain.UpdateTenantRequest) (tenantdomain.Tenant, error) {
	s.updates = append(s.updates, req)
	return s.tenant, nil
}

func (s *stubTenantSvc) List(ctx context.Context, req tenantdomain.ListTenantsRequest) (tenantdomain.ListTenantsResponse, error) {
	return tenantdomain.ListTenantsResponse{}, nil
}

func (s *stubTenantSvc) Usage(ctx context.Context, id string) (tenantdomain.Usage, error) {
	return tenantdomain.Usage{}, nil
}

func (s *stubTenantSvc) Suspend(ctx context.Context, id string, reason string) (tenantdomain.Tenant, error) {
	return s.tenant, nil
}

func (s *stubTenantSvc) Activate(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	if s.activateErr != nil {
		return tenantdomain.Tenant{}, s.activateErr
	}
	s.activated = append(s.activated, id)
	return s.tenant, nil
}

func (s *stubTenantSvc) Deactivate(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	return s.tenant, nil
}

func (s *stubTenantSvc) Archive(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	return s.tenant, nil
}

func (s *stubTenantSvc) BulkSuspend(ctx context.Context, ids []string, reason string) []tenantdomain.BulkResult {
	return nil
}

func (s *stubTenantSvc) BulkActivate(ctx context.Context, ids []string) []tenantdomain.BulkResult {
	return nil
}

func (s *stubTenantSvc) AddNote(ctx context.Context, req tenantdomain.AddNoteRequest) (tenantdomain.TenantNote, error) {
	return tenantdomain.TenantNote{}, nil
}

func (s *stubTenantSvc) ListNotes(ctx context.Context, tenantID string) ([]tenantdomain.TenantNote, error) {
	return nil, nil
}

func (s *stubTenantSvc) DeleteNote(ctx context.Context, tenantID, noteID string) error {
	return nil
}

type stubSchemaManager struct {
	createErr    error
	seedRolesErr error
	seedCfgErr   error
	adminErr     error
	created      []string
	adminUsers   []string
}

func (m *stubSchemaManager) CreateTenantSchema(ctx context.Context, tenantSlug string) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, tenantSlug)
	return nil
}

func (m *stubSchemaManager) SeedRoles(ctx context.Context, tenantSlug string) error {
	return m.seedRolesErr
}

func (m *stubSchemaManager) SeedConfig(ctx context.Context, tenantSlug string) error {
	return m.seedCfgErr
}

func (m *stubSchemaManager) CreateAdminUser(ctx context.Context, tenantSlug string, id int64, email, name, passwordHash string) error {
	if m.adminErr != nil {
		return m.adminErr
	}
	m.adminUsers = append(m.adminUsers, email)
	return nil
}

func (m *stubSchemaManager) SchemaName(tenantSlug string) string {
	return "tenant_" + tenantSlug
}

type provisioningEventRecorder struct {
	emitted []string
}

func (r *provisioningEventRecorder) Emit(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, eventType string, payload map[string]any, dedupeKey string) error {
	r.emitted = append(r.emitted, eventType)
	return nil
}

type provisioningNoopAudit struct{}

func (provisioningNoopAudit) AuditLog(ctx context.Context, tenantID *snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error {
	return nil
}

func (provisioningNoopAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type provisioningFixture struct {
	svc     Service
	tenants *stubTenantSvc
	schemas *stubSchemaManager
	events  *provisioningEventRecorder
}

func newProvisioningFixture(t *testing.T, tenants *stubTenantSvc, schemas *stubSchemaManager) *provisioningFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &provisioningFixture{
		tenants: tenants,
		schemas: schemas,
		events:  &provisioningEventRecorder{},
	}
	f.svc = NewService(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Tenants: f.tenants,
		Schemas: f.schemas,
		Email:   &email.NoOpProvider{},
		Events:  f.events,
		Audit:   provisioningNoopAudit{},
	})
	return f
}

func pendingTenant() tenantdomain.Tenant {
	return tenantdomain.Tenant{
		ID:           snowflake.ID(42),
		Name:         "Riverbend Farms",
		Slug:         "riverbend-farms",
		StoredStatus: tenantdomain.StoredStatusFor(tenantdomain.StatusPending),
	}
}

func stepByName(t *testing.T, report Report, name string) Step {
	t.Helper()
	for _, step := range report.Steps {
		if step.Name == name {
			return step
		}
	}
	t.Fatalf("step %q not in report", name)
	return Step{}
}

func TestProvision_FullRun(t *testing.T) {
	f := newProvisioningFixture(t, &stubTenantSvc{tenant: pendingTenant()}, &stubSchemaManager{})

	report, err := f.svc.Provision(context.Background(), "42", Options{
		AdminEmail: " Owner@Riverbend.example ",
		AdminName:  "Jordan Reyes",
		Modules:    []string{"farm_management", " irrigation "},
	})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, snowflake.ID(42), report.TenantID)
	require.Len(t, report.Steps, 7)
	for _, step := range report.Steps {
		assert.Equal(t, StepCompleted, step.Status, step.Name)
	}

	assert.Equal(t, []string{"riverbend-farms"}, f.schemas.created)
	assert.Equal(t, []string{"owner@riverbend.example"}, f.schemas.adminUsers)
	assert.Equal(t, []string{"42"}, f.tenants.activated)

	require.Len(t, f.tenants.updates, 1)
	assert.Equal(t, []string{"FARM_MANAGEMENT", "IRRIGATION"}, f.tenants.updates[0].Metadata["modules"])
	assert.Equal(t, 2, f.tenants.updates[0].Metadata["module_count"])

	assert.Contains(t, f.events.emitted, "tenant.provisioned")
}

func TestProvision_NonPendingTenantStopsAtValidate(t *testing.T) {
	active := pendingTenant()
	active.StoredStatus = tenantdomain.StoredStatusFor(tenantdomain.StatusActive)
	f := newProvisioningFixture(t, &stubTenantSvc{tenant: active}, &stubSchemaManager{})

	report, err := f.svc.Provision(context.Background(), "42", Options{})
	require.NoError(t, err)

	assert.False(t, report.Success)
	require.Len(t, report.Steps, 1)
	assert.Equal(t, StepValidate, report.Steps[0].Name)
	assert.Equal(t, StepFailed, report.Steps[0].Status)
	assert.Contains(t, report.Steps[0].Error, "want PENDING")
	assert.Empty(t, f.schemas.created)
	assert.Empty(t, f.events.emitted)
}

func TestProvision_SchemaFailureEndsRun(t *testing.T) {
	f := newProvisioningFixture(t,
		&stubTenantSvc{tenant: pendingTenant()},
		&stubSchemaManager{createErr: errors.New("schema already exists")},
	)

	report, err := f.svc.Provision(context.Background(), "42", Options{})
	require.NoError(t, err)

	assert.False(t, report.Success)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, StepFailed, stepByName(t, report, StepCreateSchema).Status)
	assert.Empty(t, f.tenants.activated)
}

func TestProvision_OptionalFailuresDoNotSinkRun(t *testing.T) {
	f := newProvisioningFixture(t,
		&stubTenantSvc{tenant: pendingTenant()},
		&stubSchemaManager{
			seedRolesErr: errors.New("role table busy"),
			adminErr:     errors.New("duplicate email"),
		},
	)

	report, err := f.svc.Provision(context.Background(), "42", Options{
		AdminEmail: "owner@riverbend.example",
	})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, StepFailed, stepByName(t, report, StepSeedRoles).Status)
	assert.Equal(t, StepFailed, stepByName(t, report, StepCreateAdminUser).Status)
	assert.Equal(t, StepCompleted, stepByName(t, report, StepSeedConfig).Status)
	assert.Equal(t, StepCompleted, stepByName(t, report, StepActivate).Status)
	assert.Equal(t, []string{"42"}, f.tenants.activated)
}

func TestProvision_ActivateFailureFlipsSuccess(t *testing.T) {
	f := newProvisioningFixture(t,
		&stubTenantSvc{tenant: pendingTenant(), activateErr: tenantdomain.ErrIllegalState},
		&stubSchemaManager{},
	)

	report, err := f.svc.Provision(context.Background(), "42", Options{})
	require.NoError(t, err)

	assert.False(t, report.Success)
	assert.Equal(t, StepFailed, stepByName(t, report, StepActivate).Status)
	assert.Empty(t, f.events.emitted)
}

func TestProvision_SkipsOptionalStepsWithoutInput(t *testing.T) {
	f := newProvisioningFixture(t, &stubTenantSvc{tenant: pendingTenant()}, &stubSchemaManager{})

	report, err := f.svc.Provision(context.Background(), "42", Options{})
	require.NoError(t, err)

	assert.True(t, report.Success)
	names := make([]string, 0, len(report.Steps))
	for _, step := range report.Steps {
		names = append(names, step.Name)
	}
	assert.Equal(t, []string{StepValidate, StepCreateSchema, StepSeedRoles, StepSeedConfig, StepActivate}, names)
}
