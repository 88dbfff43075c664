package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/croplytics/croplytics/internal/pricing/domain"
	"gorm.io/gorm"
)

type CreateCustomPlanRequest struct {
	TenantID           snowflake.ID                      `json:"tenant_id"`
	Name               string                            `json:"name"`
	Modules            []pricingdomain.ModuleSelection `json:"modules,omitempty"`
	BillingCycleMonths int                               `json:"billing_cycle_months,omitempty"`
}

type UpdateCustomPlanRequest struct {
	ID                 string                            `json:"id"`
	Name               *string                           `json:"name,omitempty"`
	Modules            []pricingdomain.ModuleSelection `json:"modules,omitempty"`
	BillingCycleMonths *int                              `json:"billing_cycle_months,omitempty"`
}

type ListCustomPlansRequest struct {
	TenantID snowflake.ID
	Status   Status
	Limit    int
}

type Service interface {
	Create(ctx context.Context, req CreateCustomPlanRequest) (CustomPlan, error)
	Get(ctx context.Context, id string) (CustomPlan, error)
	List(ctx context.Context, req ListCustomPlansRequest) ([]CustomPlan, error)
	// Update mutates name, modules or cycle. Allowed for DRAFT and
	// PENDING_APPROVAL proposals.
	Update(ctx context.Context, req UpdateCustomPlanRequest) (CustomPlan, error)
	// Delete removes a DRAFT proposal only.
	Delete(ctx context.Context, id string) error
	// Submit re-prices the proposal and moves DRAFT to PENDING_APPROVAL.
	// Requires at least one module.
	Submit(ctx context.Context, id string) (CustomPlan, error)
	Approve(ctx context.Context, id string, approver string) (CustomPlan, error)
	Reject(ctx context.Context, id string, reason string) (CustomPlan, error)
	// Activate creates the subscription for an APPROVED proposal. When
	// subscription creation fails the proposal stays APPROVED for a retry.
	Activate(ctx context.Context, id string) (CustomPlan, error)
	// Clone copies any proposal into a fresh DRAFT.
	Clone(ctx context.Context, id string) (CustomPlan, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *CustomPlan) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CustomPlan, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CustomPlan, error)
	List(ctx context.Context, db *gorm.DB, req ListCustomPlansRequest) ([]CustomPlan, error)
	Update(ctx context.Context, db *gorm.DB, plan *CustomPlan) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}

var (
	ErrNotFound         = errors.New("custom_plan_not_found")
	ErrInvalidID        = errors.New("invalid_custom_plan_id")
	ErrInvalidName      = errors.New("invalid_custom_plan_name")
	ErrInvalidTenant    = errors.New("invalid_tenant")
	ErrInvalidCycle     = errors.New("invalid_billing_cycle_months")
	ErrNotEditable      = errors.New("custom_plan_not_editable")
	ErrNotDraft         = errors.New("custom_plan_not_draft")
	ErrNotPending       = errors.New("custom_plan_not_pending_approval")
	ErrNotApproved      = errors.New("custom_plan_not_approved")
	ErrNoModules        = errors.New("custom_plan_has_no_modules")
	ErrMissingReason    = errors.New("rejection_reason_required")
	ErrMissingApprover  = errors.New("approver_required")
)
