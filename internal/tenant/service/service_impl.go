package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/clock"
	"github.com/croplytics/croplytics/internal/events"
	eventdomain "github.com/croplytics/croplytics/internal/events/domain"
	tenantdomain "github.com/croplytics/croplytics/internal/tenant/domain"
	"github.com/croplytics/croplytics/pkg/db"
	"github.com/croplytics/croplytics/pkg/db/pagination"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   tenantdomain.Repository
	Events events.Publisher
	Audit  auditdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   tenantdomain.Repository
	events events.Publisher
	audit  auditdomain.Service
}

func NewService(p Params) tenantdomain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("tenant.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		events: p.Events,
		audit:  p.Audit,
	}
}

func (s *Service) Create(ctx context.Context, req tenantdomain.CreateTenantRequest) (tenantdomain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return tenantdomain.Tenant{}, tenantdomain.ErrInvalidName
	}

	tenantSlug := slug.Make(strings.TrimSpace(req.Slug))
	if tenantSlug == "" {
		tenantSlug = slug.Make(name)
	}
	if tenantSlug == "" {
		return tenantdomain.Tenant{}, tenantdomain.ErrInvalidSlug
	}

	now := s.clock.Now()
	tenant := tenantdomain.Tenant{
		ID:           s.genID.Generate(),
		Name:         name,
		Slug:         tenantSlug,
		StoredStatus: tenantdomain.StoredStatusFor(tenantdomain.StatusPending),
		Tier:         "FREE",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Domain != nil {
		domain := strings.ToLower(strings.TrimSpace(*req.Domain))
		if domain != "" {
			tenant.Domain = &domain
		}
	}
	if len(req.Metadata) > 0 {
		tenant.Metadata = datatypes.JSONMap(req.Metadata)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindBySlug(ctx, tx, tenant.Slug)
		if err != nil {
			return err
		}
		if existing != nil {
			return tenantdomain.ErrDuplicateSlug
		}
		if tenant.Domain != nil {
			existing, err = s.repo.FindByDomain(ctx, tx, *tenant.Domain)
			if err != nil {
				return err
			}
			if existing != nil {
				return tenantdomain.ErrDuplicateDomain
			}
		}

		if err := s.repo.Insert(ctx, tx, &tenant); err != nil {
			// Unique indexes catch the race the pre-checks cannot.
			if db.IsDuplicateKeyErr(err) {
				return tenantdomain.ErrDuplicateSlug
			}
			return err
		}

		return s.events.Emit(ctx, tx, tenant.ID, eventdomain.EventTenantCreated, map[string]any{
			"tenant_id": tenant.ID.String(),
			"slug":      tenant.Slug,
		}, "tenant.created:"+tenant.ID.String())
	})
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	s.auditTenant(ctx, tenant, "tenant.created", map[string]any{"slug": tenant.Slug})
	s.log.Info("tenant created",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("slug", tenant.Slug),
	)
	return tenant, nil
}

func (s *Service) Get(ctx context.Context, id string) (tenantdomain.Tenant, error) {
	tenantID, err := parseID(id)
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	tenant, err := s.repo.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return tenantdomain.Tenant{}, err
	}
	if tenant == nil {
		return tenantdomain.Tenant{}, tenantdomain.ErrTenantNotFound
	}
	return *tenant, nil
}

func (s *Service) GetBySlug(ctx context.Context, rawSlug string) (tenantdomain.Tenant, error) {
	rawSlug = strings.TrimSpace(rawSlug)
	if rawSlug == "" {
		return tenantdomain.Tenant{}, tenantdomain.ErrInvalidSlug
	}

	tenant, err := s.repo.FindBySlug(ctx, s.db, rawSlug)
	if err != nil {
		return tenantdomain.Tenant{}, err
	}
	if tenant == nil {
		return tenantdomain.Tenant{}, tenantdomain.ErrTenantNotFound
	}
	return *tenant, nil
}

func (s *Service) Update(ctx context.Context, req tenantdomain.UpdateTenantRequest) (tenantdomain.Tenant, error) {
	tenantID, err := parseID(req.ID)
	if err != nil {
		return tenantdomain.Tenant{}, err
	}

	var result tenantdomain.Tenant
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenant, err := s.repo.FindByIDForUpdate(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if tenant == nil {
			return tenantdomain.ErrTenantNotFound
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return tenantdomain.ErrInvalidName
			}
			tenant.Name = name
		}
		if req.Domain != nil {
			domain := strings.ToLower(strings.TrimSpace(*req.Domain))
			if domain == "" {
				tenant.Domain = nil
			} else {
				existing, err := s.repo.FindByDomain(ctx, tx, domain)
				if err != nil {
					return err
				}
				if existing != nil && existing.ID != tenant.ID {
					return tenantdomain.ErrDuplicateDomain
				}
				tenant.Domain = &domain
			}
		}
		if req.Metadata != nil {
			tenant.Metadata = datatypes.JSONMap(req.Metadata)
		}
		tenant.UpdatedAt = s.clock.Now()

		if err := s.repo.Update(ctx, tx, tenant); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return tenantdomain.ErrDuplicateDomain
			}
			return err
		}
		result = *tenant
		return nil
	})
	if err != nil {
		return tenantdomain.Tenant{}, err
	}
	return result, nil
}

func (s *Service) List(ctx context.Context, req tenantdomain.ListTenantsRequest) (tenantdomain.ListTenantsResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 10
	}
	if pageSize > 250 {
		pageSize = 250
	}

	filter := tenantdomain.ListFilter{
		Tier:  string(req.Tier),
		Limit: pageSize + 1,
	}
	if req.Status != "" {
		filter.StoredStatus = tenantdomain.StoredStatusFor(req.Status)
		if req.Status == tenantdomain.StatusArchived || req.Status == tenantdomain.StatusDeactivated {
			archived := req.Status == tenantdomain.StatusArchived
			filter.Archived = &archived
		}
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return tenantdomain.ListTenantsResponse{}, tenantdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return tenantdomain.ListTenantsResponse{}, tenantdomain.ErrInvalidPageToken
		}
		beforeID, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return tenantdomain.ListTenantsResponse{}, tenantdomain.ErrInvalidPageToken
		}
		filter.CreatedBefore = &createdAt
		filter.BeforeID = snowflake.ID(beforeID)
	}

	tenants, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return tenantdomain.ListTenantsResponse{}, err
	}

	resp := tenantdomain.ListTenantsResponse{}
	if len(tenants) > pageSize {
		resp.HasMore = true
		tenants = tenants[:pageSize]
	}
	if resp.HasMore && len(tenants) > 0 {
		last := tenants[len(tenants)-1]
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        last.ID.String(),
			CreatedAt: last.CreatedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return tenantdomain.ListTenantsResponse{}, err
		}
		resp.NextPageToken = token
	}
	resp.Tenants = tenants
	return resp, nil
}

// Usage computes live counters from the per-tenant schema tables and
// invoices. Nothing here is persisted.
func (s *Service) Usage(ctx context.Context, id string) (tenantdomain.Usage, error) {
	tenant, err := s.Get(ctx, id)
	if err != nil {
		return tenantdomain.Usage{}, err
	}

	usage := tenantdomain.Usage{TenantID: tenant.ID}

	openInvoices, err := s.repo.CountOpenInvoices(ctx, s.db, tenant.ID)
	if err != nil {
		return tenantdomain.Usage{}, err
	}
	usage.OpenInvoices = openInvoices

	if raw, ok := tenant.Metadata["user_count"]; ok {
		usage.UserCount = toInt64(raw)
	}
	if raw, ok := tenant.Metadata["module_count"]; ok {
		usage.ModuleCount = toInt64(raw)
	}
	return usage, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	case json.Number:
		parsed, _ := n.Int64()
		return parsed
	}
	return 0
}

func (s *Service) auditTenant(ctx context.Context, tenant tenantdomain.Tenant, action string, metadata map[string]any) {
	targetID := tenant.ID.String()
	if err := s.audit.AuditLog(ctx, &tenant.ID, string(auditdomain.ActorTypeAdmin), nil,
		action, "tenant", &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func parseID(id string) (snowflake.ID, error) {
	raw, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
	if err != nil || raw == 0 {
		return 0, tenantdomain.ErrInvalidTenantID
	}
	return snowflake.ID(raw), nil
}
