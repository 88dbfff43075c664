package domain

import (
	"context"
	"errors"

	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	"github.com/croplytics/croplytics/pkg/db/pagination"
)

type CreateTenantRequest struct {
	Name     string         `json:"name"`
	Slug     string         `json:"slug,omitempty"`
	Domain   *string        `json:"domain,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type UpdateTenantRequest struct {
	ID       string         `json:"id"`
	Name     *string        `json:"name,omitempty"`
	Domain   *string        `json:"domain,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ListTenantsRequest struct {
	pagination.Pagination
	Status Status
	Tier   plandomain.PlanTier
}

type ListTenantsResponse struct {
	pagination.PageInfo
	Tenants []Tenant `json:"tenants"`
}

// BulkResult reports the outcome of one item of a bulk command.
type BulkResult struct {
	TenantID string `json:"tenant_id"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
}

type AddNoteRequest struct {
	TenantID string `json:"tenant_id"`
	AuthorID string `json:"author_id"`
	Body     string `json:"body"`
	Pinned   bool   `json:"pinned"`
}

type Service interface {
	Create(ctx context.Context, req CreateTenantRequest) (Tenant, error)
	Get(ctx context.Context, id string) (Tenant, error)
	GetBySlug(ctx context.Context, slug string) (Tenant, error)
	Update(ctx context.Context, req UpdateTenantRequest) (Tenant, error)
	List(ctx context.Context, req ListTenantsRequest) (ListTenantsResponse, error)
	Usage(ctx context.Context, id string) (Usage, error)

	// Lifecycle commands. Each runs in its own transaction with the tenant
	// row locked, and rejects illegal transitions.
	Suspend(ctx context.Context, id string, reason string) (Tenant, error)
	Activate(ctx context.Context, id string) (Tenant, error)
	Deactivate(ctx context.Context, id string) (Tenant, error)
	Archive(ctx context.Context, id string) (Tenant, error)

	BulkSuspend(ctx context.Context, ids []string, reason string) []BulkResult
	BulkActivate(ctx context.Context, ids []string) []BulkResult

	AddNote(ctx context.Context, req AddNoteRequest) (TenantNote, error)
	ListNotes(ctx context.Context, tenantID string) ([]TenantNote, error)
	DeleteNote(ctx context.Context, tenantID, noteID string) error
}

var (
	ErrTenantNotFound  = errors.New("tenant_not_found")
	ErrInvalidTenantID = errors.New("invalid_tenant_id")
	ErrInvalidName     = errors.New("invalid_tenant_name")
	ErrInvalidSlug     = errors.New("invalid_tenant_slug")
	ErrDuplicateSlug   = errors.New("duplicate_tenant_slug")
	ErrDuplicateDomain = errors.New("duplicate_tenant_domain")
	ErrIllegalState    = errors.New("illegal_tenant_transition")
	ErrNoteNotFound    = errors.New("tenant_note_not_found")
	ErrInvalidNote     = errors.New("invalid_tenant_note")
	ErrInvalidPageToken = errors.New("invalid_page_token")
)
