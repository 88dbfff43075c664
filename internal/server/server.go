package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/croplytics/croplytics/internal/audit"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/authorization"
	"github.com/croplytics/croplytics/internal/config"
	"github.com/croplytics/croplytics/internal/customplan"
	customplandomain "github.com/croplytics/croplytics/internal/customplan/domain"
	"github.com/croplytics/croplytics/internal/discount"
	discountdomain "github.com/croplytics/croplytics/internal/discount/domain"
	"github.com/croplytics/croplytics/internal/events"
	"github.com/croplytics/croplytics/internal/invoice"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	"github.com/croplytics/croplytics/internal/modulepricing"
	modulepricingdomain "github.com/croplytics/croplytics/internal/modulepricing/domain"
	"github.com/croplytics/croplytics/internal/observability"
	obsmiddleware "github.com/croplytics/croplytics/internal/observability/logger"
	obsmetrics "github.com/croplytics/croplytics/internal/observability/metrics"
	obstracing "github.com/croplytics/croplytics/internal/observability/tracing"
	"github.com/croplytics/croplytics/internal/plan"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	"github.com/croplytics/croplytics/internal/pricing"
	pricingdomain "github.com/croplytics/croplytics/internal/pricing/domain"
	"github.com/croplytics/croplytics/internal/providers/email"
	"github.com/croplytics/croplytics/internal/providers/pdf"
	"github.com/croplytics/croplytics/internal/provisioning"
	"github.com/croplytics/croplytics/internal/scheduler"
	"github.com/croplytics/croplytics/internal/schemamanager"
	"github.com/croplytics/croplytics/internal/subscription"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	"github.com/croplytics/croplytics/internal/tenant"
	tenantdomain "github.com/croplytics/croplytics/internal/tenant/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	events.Module,
	email.Module,
	pdf.Module,
	plan.Module,
	discount.Module,
	modulepricing.Module,
	pricing.Module,
	subscription.Module,
	invoice.Module,
	customplan.Module,
	tenant.Module,
	schemamanager.Module,
	provisioning.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug: obsCfg.Debug(),
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", obsmetrics.Handler())

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine           *gin.Engine
	cfg              config.Config
	db               *gorm.DB
	genID            *snowflake.Node
	authzSvc         authorization.Service
	auditSvc         auditdomain.Service
	planSvc          plandomain.Service
	discountSvc      discountdomain.Service
	modulePricingSvc modulepricingdomain.Service
	pricingSvc       pricingdomain.Service
	subscriptionSvc  subscriptiondomain.Service
	invoiceSvc       invoicedomain.Service
	customPlanSvc    customplandomain.Service
	tenantSvc        tenantdomain.Service
	provisioningSvc  provisioning.Service

	scheduler *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	DB               *gorm.DB
	GenID            *snowflake.Node
	AuthzSvc         authorization.Service
	AuditSvc         auditdomain.Service
	PlanSvc          plandomain.Service
	DiscountSvc      discountdomain.Service
	ModulePricingSvc modulepricingdomain.Service
	PricingSvc       pricingdomain.Service
	SubscriptionSvc  subscriptiondomain.Service
	InvoiceSvc       invoicedomain.Service
	CustomPlanSvc    customplandomain.Service
	TenantSvc        tenantdomain.Service
	ProvisioningSvc  provisioning.Service

	Scheduler *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		db:               p.DB,
		genID:            p.GenID,
		authzSvc:         p.AuthzSvc,
		auditSvc:         p.AuditSvc,
		planSvc:          p.PlanSvc,
		discountSvc:      p.DiscountSvc,
		modulePricingSvc: p.ModulePricingSvc,
		pricingSvc:       p.PricingSvc,
		subscriptionSvc:  p.SubscriptionSvc,
		invoiceSvc:       p.InvoiceSvc,
		customPlanSvc:    p.CustomPlanSvc,
		tenantSvc:        p.TenantSvc,
		provisioningSvc:  p.ProvisioningSvc,
		scheduler:        p.Scheduler,
	}

	svc.registerBillingRoutes()
	svc.registerTenantRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerBillingRoutes() {
	billing := s.engine.Group("/billing")
	billing.Use(s.ActorContext())

	// -------- Plans --------
	billing.GET("/plans", s.authorizeAction(authorization.ObjectPlan, authorization.ActionPlanView), s.ListPlans)
	billing.POST("/plans", s.authorizeAction(authorization.ObjectPlan, authorization.ActionPlanCreate), s.CreatePlan)
	billing.GET("/plans/:id", s.authorizeAction(authorization.ObjectPlan, authorization.ActionPlanView), s.GetPlanByID)
	billing.PATCH("/plans/:id", s.authorizeAction(authorization.ObjectPlan, authorization.ActionPlanUpdate), s.UpdatePlan)
	billing.POST("/plans/:id/deprecate", s.authorizeAction(authorization.ObjectPlan, authorization.ActionPlanDelete), s.DeprecatePlan)

	// -------- Discounts --------
	billing.GET("/discounts", s.authorizeAction(authorization.ObjectDiscount, authorization.ActionDiscountView), s.ListDiscounts)
	billing.POST("/discounts", s.authorizeAction(authorization.ObjectDiscount, authorization.ActionDiscountCreate), s.CreateDiscount)
	billing.GET("/discounts/:code", s.authorizeAction(authorization.ObjectDiscount, authorization.ActionDiscountView), s.GetDiscountByCode)
	billing.POST("/discounts/:code/deactivate", s.authorizeAction(authorization.ObjectDiscount, authorization.ActionDiscountUpdate), s.DeactivateDiscount)
	billing.POST("/discounts/validate", s.authorizeAction(authorization.ObjectDiscount, authorization.ActionDiscountValidate), s.ValidateDiscount)
	billing.POST("/discounts/apply", s.authorizeAction(authorization.ObjectDiscount, authorization.ActionDiscountApply), s.ApplyDiscount)

	// -------- Module pricing --------
	billing.GET("/module-pricing", s.authorizeAction(authorization.ObjectModulePricing, authorization.ActionModulePricingView), s.ListModulePricing)
	billing.POST("/module-pricing", s.authorizeAction(authorization.ObjectModulePricing, authorization.ActionModulePricingCreate), s.CreateModulePricing)
	billing.GET("/module-pricing/:moduleCode", s.authorizeAction(authorization.ObjectModulePricing, authorization.ActionModulePricingView), s.GetActiveModulePricing)
	billing.GET("/module-pricing/:moduleCode/history", s.authorizeAction(authorization.ObjectModulePricing, authorization.ActionModulePricingView), s.ModulePricingHistory)
	billing.POST("/module-pricing/:moduleCode/deactivate", s.authorizeAction(authorization.ObjectModulePricing, authorization.ActionModulePricingUpdate), s.DeactivateModulePricing)

	// -------- Pricing calculator --------
	billing.POST("/pricing/quote", s.authorizeAction(authorization.ObjectPricing, authorization.ActionPricingQuote), s.CalculateQuote)

	// -------- Subscriptions --------
	billing.GET("/subscriptions", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.ListSubscriptions)
	billing.POST("/subscriptions", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCreate), s.CreateSubscription)
	billing.GET("/subscriptions/analytics", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionAnalytics), s.SubscriptionAnalytics)
	billing.POST("/subscriptions/process-renewals", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionSweep), s.ProcessRenewals)
	billing.GET("/subscriptions/:id", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscriptionByID)
	billing.POST("/subscriptions/:id/cancel", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)
	billing.POST("/subscriptions/:id/reactivate", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionReactivate), s.ReactivateSubscription)
	billing.POST("/subscriptions/:id/change-plan", s.authorizeAction(authorization.ObjectSubscription, authorization.ActionSubscriptionChangePlan), s.ChangeSubscriptionPlan)

	// -------- Custom plans --------
	billing.GET("/custom-plans", s.authorizeAction(authorization.ObjectCustomPlan, authorization.ActionCustomPlanView), s.ListCustomPlans)
	billing.POST("/custom-plans", s.authorizeAction(authorization.ObjectCustomPlan, authorization.ActionCustomPlanCreate), s.CreateCustomPlan)
	billing.GET("/custom-plans/:id", s.authorizeAction(authorization.ObjectCustomPlan, authorization.ActionCustomPlanView), s.GetCustomPlanByID)
	billing.PATCH("/custom-plans/:id", s.authorizeAction(authorization.ObjectCustomPlan, authorization.ActionCustomPlanUpdate), s.UpdateCustomPlan)
	billing.DELETE("/custom-plans/:id", s.authorizeAction(authorization.ObjectCustomPlan, authorization.ActionCustomPlanDelete), s.DeleteCustomPlan)
	billing.POST("/custom-plans/:id/submit", s.authorizeAction(authorization.ObjectCustomPlan, authorization.ActionCustomPlanSubmit), s.SubmitCustomPlan)
	billing.POST("/custom-plans/:id/approve", s.authorizeAction(authorization.ObjectCustomPlan, authorization.ActionCustomPlanApprove), s.ApproveCustomPlan)
	billing.POST("/custom-plans/:id/reject", s.authorizeAction(authorization.ObjectCustomPlan, authorization.ActionCustomPlanReject), s.RejectCustomPlan)
	billing.POST("/custom-plans/:id/activate", s.authorizeAction(authorization.ObjectCustomPlan, authorization.ActionCustomPlanActivate), s.ActivateCustomPlan)
	billing.POST("/custom-plans/:id/clone", s.authorizeAction(authorization.ObjectCustomPlan, authorization.ActionCustomPlanCreate), s.CloneCustomPlan)

	// -------- Invoices --------
	billing.GET("/invoices", s.authorizeAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	billing.POST("/invoices", s.authorizeAction(authorization.ObjectInvoice, authorization.ActionInvoicePay), s.CreateInvoice)
	billing.POST("/invoices/mark-overdue", s.authorizeAction(authorization.ObjectInvoice, authorization.ActionInvoiceSweep), s.MarkInvoicesOverdue)
	billing.GET("/invoices/:id", s.authorizeAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceByID)
	billing.POST("/invoices/:id/pay", s.authorizeAction(authorization.ObjectInvoice, authorization.ActionInvoicePay), s.PayInvoice)
	billing.POST("/invoices/:id/void", s.authorizeAction(authorization.ObjectInvoice, authorization.ActionInvoiceVoid), s.VoidInvoice)
	billing.GET("/invoices/:id/pdf", s.authorizeAction(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.InvoicePDF)
}

func (s *Server) registerTenantRoutes() {
	tenants := s.engine.Group("/tenants")
	tenants.Use(s.ActorContext())

	tenants.GET("", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantView), s.ListTenants)
	tenants.POST("", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantCreate), s.CreateTenant)
	tenants.POST("/bulk/suspend", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantSuspend), s.BulkSuspendTenants)
	tenants.POST("/bulk/activate", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantActivate), s.BulkActivateTenants)
	tenants.GET("/:id", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantView), s.GetTenantByID)
	tenants.PATCH("/:id", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantUpdate), s.UpdateTenant)
	tenants.POST("/:id/suspend", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantSuspend), s.SuspendTenant)
	tenants.POST("/:id/activate", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantActivate), s.ActivateTenant)
	tenants.POST("/:id/deactivate", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantDeactivate), s.DeactivateTenant)
	tenants.POST("/:id/archive", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantArchive), s.ArchiveTenant)
	tenants.POST("/:id/provision", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantProvision), s.ProvisionTenant)
	tenants.GET("/:id/usage", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantView), s.TenantUsage)
	tenants.GET("/:id/notes", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantView), s.ListTenantNotes)
	tenants.POST("/:id/notes", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantUpdate), s.AddTenantNote)
	tenants.DELETE("/:id/notes/:noteId", s.authorizeAction(authorization.ObjectTenant, authorization.ActionTenantUpdate), s.DeleteTenantNote)
	tenants.GET("/:id/activities", s.authorizeAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.TenantActivities)
}
