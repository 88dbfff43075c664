package provisioning

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/auditcontext"
	"github.com/croplytics/croplytics/internal/clock"
	"github.com/croplytics/croplytics/internal/events"
	eventdomain "github.com/croplytics/croplytics/internal/events/domain"
	"github.com/croplytics/croplytics/internal/providers/email"
	"github.com/croplytics/croplytics/internal/schemamanager"
	tenantdomain "github.com/croplytics/croplytics/internal/tenant/domain"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Tenants tenantdomain.Service
	Schemas schemamanager.Manager
	Email   email.Provider
	Events  events.Publisher
	Audit   auditdomain.Service
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	tenants tenantdomain.Service
	schemas schemamanager.Manager
	email   email.Provider
	events  events.Publisher
	audit   auditdomain.Service
}

func NewService(p Params) Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("provisioning.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		tenants: p.Tenants,
		schemas: p.Schemas,
		email:   p.Email,
		events:  p.Events,
		audit:   p.Audit,
	}
}

// Provision walks the tenant through the ordered step sequence. A failed
// mandatory step ends the run with success=false; a failed optional step is
// recorded and the run keeps going. Completed steps are never rolled back:
// the report states exactly how far the run got.
func (s *service) Provision(ctx context.Context, tenantID string, opts Options) (Report, error) {
	report := Report{
		RunID:     uuid.New(),
		StartedAt: s.clock.Now(),
	}
	ctx = auditcontext.WithProvisioningRunID(ctx, report.RunID.String())

	log := s.log.With(zap.String("run_id", report.RunID.String()))
	log.Info("provisioning started", zap.String("tenant_id", tenantID))

	var tenant tenantdomain.Tenant
	ok := s.runStep(ctx, &report, StepValidate, func() error {
		found, err := s.tenants.Get(ctx, tenantID)
		if err != nil {
			return err
		}
		if found.Status() != tenantdomain.StatusPending {
			return fmt.Errorf("tenant is %s, want PENDING", found.Status())
		}
		tenant = found
		return nil
	})
	if !ok {
		return s.finish(ctx, log, report, false)
	}
	report.TenantID = tenant.ID

	if ok = s.runStep(ctx, &report, StepCreateSchema, func() error {
		return s.schemas.CreateTenantSchema(ctx, tenant.Slug)
	}); !ok {
		return s.finish(ctx, log, report, false)
	}

	s.runStep(ctx, &report, StepSeedRoles, func() error {
		return s.schemas.SeedRoles(ctx, tenant.Slug)
	})
	s.runStep(ctx, &report, StepSeedConfig, func() error {
		return s.schemas.SeedConfig(ctx, tenant.Slug)
	})

	if adminEmail := strings.ToLower(strings.TrimSpace(opts.AdminEmail)); adminEmail != "" {
		s.runStep(ctx, &report, StepCreateAdminUser, func() error {
			return s.createAdminUser(ctx, tenant, adminEmail, strings.TrimSpace(opts.AdminName))
		})
	}

	if len(opts.Modules) > 0 {
		s.runStep(ctx, &report, StepAssignModules, func() error {
			return s.assignModules(ctx, tenant, opts.Modules)
		})
	}

	activated := s.runStep(ctx, &report, StepActivate, func() error {
		_, err := s.tenants.Activate(ctx, tenant.ID.String())
		return err
	})

	return s.finish(ctx, log, report, activated)
}

func (s *service) runStep(ctx context.Context, report *Report, name string, fn func() error) bool {
	step := Step{
		Name:      name,
		Status:    StepInProgress,
		StartedAt: s.clock.Now(),
	}

	err := fn()
	step.Duration = s.clock.Now().Sub(step.StartedAt)
	if err != nil {
		step.Status = StepFailed
		step.Error = err.Error()
		s.log.Warn("provisioning step failed",
			zap.String("step", name),
			zap.Error(err),
		)
	} else {
		step.Status = StepCompleted
	}

	report.Steps = append(report.Steps, step)
	return err == nil
}

func (s *service) finish(ctx context.Context, log *zap.Logger, report Report, success bool) (Report, error) {
	report.Success = success
	report.FinishedAt = s.clock.Now()

	steps := make([]map[string]any, 0, len(report.Steps))
	for _, step := range report.Steps {
		entry := map[string]any{
			"name":   step.Name,
			"status": string(step.Status),
		}
		if step.Error != "" {
			entry["error"] = step.Error
		}
		steps = append(steps, entry)
	}

	metadata := map[string]any{
		"run_id":  report.RunID.String(),
		"success": success,
		"steps":   steps,
	}
	runID := report.RunID.String()
	var tenantID *snowflake.ID
	if report.TenantID != 0 {
		tenantID = &report.TenantID
	}
	if err := s.audit.AuditLog(ctx, tenantID, string(auditdomain.ActorTypeSystem), nil,
		"tenant.provisioned", "provisioning_run", &runID, metadata); err != nil {
		log.Warn("failed to write audit log", zap.Error(err))
	}

	if success {
		if err := s.events.Emit(ctx, s.db, report.TenantID, eventdomain.EventTenantProvisioned, map[string]any{
			"tenant_id": report.TenantID.String(),
			"run_id":    report.RunID.String(),
		}, "tenant.provisioned:"+report.RunID.String()); err != nil {
			log.Warn("failed to emit provisioned event", zap.Error(err))
		}
	}

	log.Info("provisioning finished",
		zap.Bool("success", success),
		zap.Int("steps", len(report.Steps)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, nil
}

func (s *service) createAdminUser(ctx context.Context, tenant tenantdomain.Tenant, adminEmail, adminName string) error {
	if adminName == "" {
		adminName = adminEmail
	}

	password, err := generatePassword()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	userID := s.genID.Generate().Int64()
	if err := s.schemas.CreateAdminUser(ctx, tenant.Slug, userID, adminEmail, adminName, string(hash)); err != nil {
		return err
	}

	body := fmt.Sprintf(
		`<p>Hello %s,</p><p>Your workspace <b>%s</b> is ready.</p><p>Temporary password: <code>%s</code></p>`,
		adminName, tenant.Name, password,
	)
	if err := s.email.Send(ctx, []string{adminEmail}, "Your "+tenant.Name+" workspace is ready", body); err != nil {
		// The account exists; a lost invitation is recoverable.
		s.log.Warn("failed to send invitation email",
			zap.String("tenant_id", tenant.ID.String()),
			zap.Error(err),
		)
	}
	return nil
}

func (s *service) assignModules(ctx context.Context, tenant tenantdomain.Tenant, modules []string) error {
	cleaned := make([]string, 0, len(modules))
	for _, module := range modules {
		module = strings.ToUpper(strings.TrimSpace(module))
		if module != "" {
			cleaned = append(cleaned, module)
		}
	}
	if len(cleaned) == 0 {
		return errors.New("no valid modules")
	}

	metadata := map[string]any(tenant.Metadata)
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["modules"] = cleaned
	metadata["module_count"] = len(cleaned)

	_, err := s.tenants.Update(ctx, tenantdomain.UpdateTenantRequest{
		ID:       tenant.ID.String(),
		Metadata: metadata,
	})
	return err
}

func generatePassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

var Module = fx.Module("provisioning.service",
	fx.Provide(NewService),
)
