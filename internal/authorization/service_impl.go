package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPlan          = "plan"
	ObjectDiscount      = "discount"
	ObjectModulePricing = "module_pricing"
	ObjectPricing       = "pricing"
	ObjectSubscription  = "subscription"
	ObjectInvoice       = "invoice"
	ObjectTenant        = "tenant"
	ObjectCustomPlan    = "custom_plan"
	ObjectProvisioning  = "provisioning"
	ObjectAuditLog      = "audit_log"
)

const (
	ActionPlanView   = "plan.view"
	ActionPlanCreate = "plan.create"
	ActionPlanUpdate = "plan.update"
	ActionPlanDelete = "plan.delete"

	ActionDiscountView     = "discount.view"
	ActionDiscountCreate   = "discount.create"
	ActionDiscountUpdate   = "discount.update"
	ActionDiscountValidate = "discount.validate"
	ActionDiscountApply    = "discount.apply"

	ActionModulePricingView   = "module_pricing.view"
	ActionModulePricingCreate = "module_pricing.create"
	ActionModulePricingUpdate = "module_pricing.update"

	ActionPricingQuote = "pricing.quote"

	ActionSubscriptionView       = "subscription.view"
	ActionSubscriptionCreate     = "subscription.create"
	ActionSubscriptionCancel     = "subscription.cancel"
	ActionSubscriptionReactivate = "subscription.reactivate"
	ActionSubscriptionChangePlan = "subscription.change_plan"
	ActionSubscriptionSweep      = "subscription.sweep"
	ActionSubscriptionAnalytics  = "subscription.analytics"

	ActionInvoiceView  = "invoice.view"
	ActionInvoicePay   = "invoice.pay"
	ActionInvoiceVoid  = "invoice.void"
	ActionInvoiceSweep = "invoice.sweep"

	ActionTenantView       = "tenant.view"
	ActionTenantCreate     = "tenant.create"
	ActionTenantUpdate     = "tenant.update"
	ActionTenantSuspend    = "tenant.suspend"
	ActionTenantActivate   = "tenant.activate"
	ActionTenantDeactivate = "tenant.deactivate"
	ActionTenantArchive    = "tenant.archive"
	ActionTenantProvision  = "tenant.provision"

	ActionCustomPlanView     = "custom_plan.view"
	ActionCustomPlanCreate   = "custom_plan.create"
	ActionCustomPlanUpdate   = "custom_plan.update"
	ActionCustomPlanDelete   = "custom_plan.delete"
	ActionCustomPlanSubmit   = "custom_plan.submit"
	ActionCustomPlanApprove  = "custom_plan.approve"
	ActionCustomPlanReject   = "custom_plan.reject"
	ActionCustomPlanActivate = "custom_plan.activate"

	ActionAuditLogView = "audit_log.view"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, tenantID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ErrInvalidTenant
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(ctx, actor, tenantID)
	if err != nil {
		s.auditDenied(ctx, actorType, actorID, tenantID, object, action)
		return err
	}

	domain := fmt.Sprintf("tenant:%s", tenantID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, actorType, actorID, tenantID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditGranted(ctx, actorType, actorID, tenantID, object, action)
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, tenantID string) (string, string, string, *string, error) {
	if actor == "system" {
		return actor, "role:system", "system", nil, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userIDRaw := strings.TrimPrefix(actor, "user:")
		userID, err := snowflake.ParseString(userIDRaw)
		if err != nil || userID == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		userIDStr := userID.String()
		role, err := s.roleForUser(ctx, tenantScope(tenantID), userID)
		if err != nil {
			return actor, "", "user", &userIDStr, err
		}
		roleName := fmt.Sprintf("role:%s", strings.ToLower(role))
		return actor, roleName, "user", &userIDStr, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

// tenantScope maps the request tenant to the membership row scope.
// Platform-wide memberships are stored under tenant_id 0.
func tenantScope(tenantID string) snowflake.ID {
	if tenantID == "global" {
		return 0
	}
	id, err := snowflake.ParseString(tenantID)
	if err != nil {
		return 0
	}
	return id
}

func (s *ServiceImpl) roleForUser(ctx context.Context, tenantID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM tenant_members
		 WHERE tenant_id = ? AND user_id = ?
		 LIMIT 1`,
		tenantID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.TrimSpace(row.Role)
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorType string, actorID *string, tenantID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, auditTenant(tenantID), actorType, actorID, "authorization.denied", "authorization", &targetID, map[string]any{
		"object":    object,
		"action":    action,
		"actor":     actorType,
		"tenant_id": tenantID,
		"subject":   actorSubject(actorType, actorID),
	})
}

func (s *ServiceImpl) auditGranted(ctx context.Context, actorType string, actorID *string, tenantID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, auditTenant(tenantID), actorType, actorID, "authorization.granted", "authorization", &targetID, map[string]any{
		"object":    object,
		"action":    action,
		"actor":     actorType,
		"tenant_id": tenantID,
		"subject":   actorSubject(actorType, actorID),
	})
}

func auditTenant(tenantID string) *snowflake.ID {
	parsed, err := snowflake.ParseString(tenantID)
	if err != nil || parsed == 0 {
		return nil
	}
	return &parsed
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case "system":
		return "system"
	case "user":
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return fmt.Sprintf("user:%s", strings.TrimSpace(*actorID))
		}
	}
	return ""
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionInvoiceVoid, ActionTenantArchive, ActionCustomPlanApprove, ActionTenantProvision:
		return true
	default:
		return false
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Operator permissions (read-only)
		{"role:operator", ObjectPlan, ActionPlanView},
		{"role:operator", ObjectDiscount, ActionDiscountView},
		{"role:operator", ObjectDiscount, ActionDiscountValidate},
		{"role:operator", ObjectModulePricing, ActionModulePricingView},
		{"role:operator", ObjectPricing, ActionPricingQuote},
		{"role:operator", ObjectSubscription, ActionSubscriptionView},
		{"role:operator", ObjectInvoice, ActionInvoiceView},
		{"role:operator", ObjectTenant, ActionTenantView},
		{"role:operator", ObjectCustomPlan, ActionCustomPlanView},
		{"role:operator", ObjectAuditLog, ActionAuditLogView},

		// Admin permissions (operator plus mutations)
		{"role:admin", ObjectPlan, ActionPlanView},
		{"role:admin", ObjectPlan, ActionPlanCreate},
		{"role:admin", ObjectPlan, ActionPlanUpdate},
		{"role:admin", ObjectPlan, ActionPlanDelete},

		{"role:admin", ObjectDiscount, ActionDiscountView},
		{"role:admin", ObjectDiscount, ActionDiscountCreate},
		{"role:admin", ObjectDiscount, ActionDiscountUpdate},
		{"role:admin", ObjectDiscount, ActionDiscountValidate},
		{"role:admin", ObjectDiscount, ActionDiscountApply},

		{"role:admin", ObjectModulePricing, ActionModulePricingView},
		{"role:admin", ObjectModulePricing, ActionModulePricingCreate},
		{"role:admin", ObjectModulePricing, ActionModulePricingUpdate},

		{"role:admin", ObjectPricing, ActionPricingQuote},

		{"role:admin", ObjectSubscription, ActionSubscriptionView},
		{"role:admin", ObjectSubscription, ActionSubscriptionCreate},
		{"role:admin", ObjectSubscription, ActionSubscriptionCancel},
		{"role:admin", ObjectSubscription, ActionSubscriptionReactivate},
		{"role:admin", ObjectSubscription, ActionSubscriptionChangePlan},
		{"role:admin", ObjectSubscription, ActionSubscriptionAnalytics},

		{"role:admin", ObjectInvoice, ActionInvoiceView},
		{"role:admin", ObjectInvoice, ActionInvoicePay},
		{"role:admin", ObjectInvoice, ActionInvoiceVoid},

		{"role:admin", ObjectTenant, ActionTenantView},
		{"role:admin", ObjectTenant, ActionTenantCreate},
		{"role:admin", ObjectTenant, ActionTenantUpdate},
		{"role:admin", ObjectTenant, ActionTenantSuspend},
		{"role:admin", ObjectTenant, ActionTenantActivate},
		{"role:admin", ObjectTenant, ActionTenantDeactivate},
		{"role:admin", ObjectTenant, ActionTenantArchive},
		{"role:admin", ObjectTenant, ActionTenantProvision},

		{"role:admin", ObjectCustomPlan, ActionCustomPlanView},
		{"role:admin", ObjectCustomPlan, ActionCustomPlanCreate},
		{"role:admin", ObjectCustomPlan, ActionCustomPlanUpdate},
		{"role:admin", ObjectCustomPlan, ActionCustomPlanDelete},
		{"role:admin", ObjectCustomPlan, ActionCustomPlanSubmit},
		{"role:admin", ObjectCustomPlan, ActionCustomPlanApprove},
		{"role:admin", ObjectCustomPlan, ActionCustomPlanReject},
		{"role:admin", ObjectCustomPlan, ActionCustomPlanActivate},

		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// System permissions (full access plus scheduled sweeps)
		{"role:system", ObjectPlan, ActionPlanView},
		{"role:system", ObjectPlan, ActionPlanCreate},
		{"role:system", ObjectPlan, ActionPlanUpdate},
		{"role:system", ObjectPlan, ActionPlanDelete},

		{"role:system", ObjectDiscount, ActionDiscountView},
		{"role:system", ObjectDiscount, ActionDiscountCreate},
		{"role:system", ObjectDiscount, ActionDiscountUpdate},
		{"role:system", ObjectDiscount, ActionDiscountValidate},
		{"role:system", ObjectDiscount, ActionDiscountApply},

		{"role:system", ObjectModulePricing, ActionModulePricingView},
		{"role:system", ObjectModulePricing, ActionModulePricingCreate},
		{"role:system", ObjectModulePricing, ActionModulePricingUpdate},

		{"role:system", ObjectPricing, ActionPricingQuote},

		{"role:system", ObjectSubscription, ActionSubscriptionView},
		{"role:system", ObjectSubscription, ActionSubscriptionCreate},
		{"role:system", ObjectSubscription, ActionSubscriptionCancel},
		{"role:system", ObjectSubscription, ActionSubscriptionReactivate},
		{"role:system", ObjectSubscription, ActionSubscriptionChangePlan},
		{"role:system", ObjectSubscription, ActionSubscriptionSweep},
		{"role:system", ObjectSubscription, ActionSubscriptionAnalytics},

		{"role:system", ObjectInvoice, ActionInvoiceView},
		{"role:system", ObjectInvoice, ActionInvoicePay},
		{"role:system", ObjectInvoice, ActionInvoiceVoid},
		{"role:system", ObjectInvoice, ActionInvoiceSweep},

		{"role:system", ObjectTenant, ActionTenantView},
		{"role:system", ObjectTenant, ActionTenantCreate},
		{"role:system", ObjectTenant, ActionTenantUpdate},
		{"role:system", ObjectTenant, ActionTenantSuspend},
		{"role:system", ObjectTenant, ActionTenantActivate},
		{"role:system", ObjectTenant, ActionTenantDeactivate},
		{"role:system", ObjectTenant, ActionTenantArchive},
		{"role:system", ObjectTenant, ActionTenantProvision},

		{"role:system", ObjectCustomPlan, ActionCustomPlanView},
		{"role:system", ObjectCustomPlan, ActionCustomPlanCreate},
		{"role:system", ObjectCustomPlan, ActionCustomPlanUpdate},
		{"role:system", ObjectCustomPlan, ActionCustomPlanDelete},
		{"role:system", ObjectCustomPlan, ActionCustomPlanSubmit},
		{"role:system", ObjectCustomPlan, ActionCustomPlanApprove},
		{"role:system", ObjectCustomPlan, ActionCustomPlanReject},
		{"role:system", ObjectCustomPlan, ActionCustomPlanActivate},

		{"role:system", ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
