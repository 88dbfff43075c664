package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
)

type createSubscriptionRequest struct {
	TenantID     string `json:"tenant_id"`
	PlanCode     string `json:"plan_code"`
	BillingCycle string `json:"billing_cycle"`
	AutoRenew    *bool  `json:"auto_renew"`
	TrialDays    int    `json:"trial_days"`
	DiscountCode string `json:"discount_code"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, err := parseSnowflake(req.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
		return
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateSubscriptionRequest{
		TenantID:     tenantID,
		PlanCode:     strings.TrimSpace(req.PlanCode),
		BillingCycle: plandomain.BillingCycle(strings.ToUpper(strings.TrimSpace(req.BillingCycle))),
		AutoRenew:    req.AutoRenew,
		TrialDays:    req.TrialDays,
		DiscountCode: strings.TrimSpace(req.DiscountCode),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSubscriptionByID(c *gin.Context) {
	resp, err := s.subscriptionSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	var query struct {
		TenantID string `form:"tenant_id"`
		Status   string `form:"status"`
		Tier     string `form:"tier"`
		Limit    string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if strings.TrimSpace(query.TenantID) != "" {
		tenantID, err := parseSnowflake(query.TenantID)
		if err != nil {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
			return
		}
		resp, err := s.subscriptionSvc.GetByTenant(c.Request.Context(), tenantID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": []subscriptiondomain.Subscription{resp}})
		return
	}

	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListSubscriptionsRequest{
		Status: subscriptiondomain.Status(strings.ToUpper(strings.TrimSpace(query.Status))),
		Tier:   plandomain.PlanTier(strings.ToUpper(strings.TrimSpace(query.Tier))),
		Limit:  limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelSubscription(c *gin.Context) {
	var req struct {
		AtPeriodEnd bool   `json:"at_period_end"`
		Reason      string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), subscriptiondomain.CancelRequest{
		SubscriptionID: strings.TrimSpace(c.Param("id")),
		AtPeriodEnd:    req.AtPeriodEnd,
		Reason:         strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReactivateSubscription(c *gin.Context) {
	resp, err := s.subscriptionSvc.Reactivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type changePlanRequest struct {
	NewPlanCode          string `json:"new_plan_code"`
	BillingCycle         string `json:"billing_cycle"`
	EffectiveImmediately bool   `json:"effective_immediately"`
	DiscountCode         string `json:"discount_code"`
}

func (s *Server) ChangeSubscriptionPlan(c *gin.Context) {
	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.subscriptionSvc.ChangePlan(c.Request.Context(), subscriptiondomain.ChangePlanRequest{
		SubscriptionID:       strings.TrimSpace(c.Param("id")),
		NewPlanCode:          strings.TrimSpace(req.NewPlanCode),
		BillingCycle:         plandomain.BillingCycle(strings.ToUpper(strings.TrimSpace(req.BillingCycle))),
		EffectiveImmediately: req.EffectiveImmediately,
		DiscountCode:         strings.TrimSpace(req.DiscountCode),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SubscriptionAnalytics(c *gin.Context) {
	var query struct {
		WindowStart string `form:"window_start"`
		WindowEnd   string `form:"window_end"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var windowStart, windowEnd time.Time
	if strings.TrimSpace(query.WindowStart) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(query.WindowStart))
		if err != nil {
			AbortWithError(c, newValidationError("window_start", "invalid_window_start", "invalid window_start"))
			return
		}
		windowStart = parsed
	}
	if strings.TrimSpace(query.WindowEnd) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(query.WindowEnd))
		if err != nil {
			AbortWithError(c, newValidationError("window_end", "invalid_window_end", "invalid window_end"))
			return
		}
		windowEnd = parsed
	}

	resp, err := s.subscriptionSvc.Analytics(c.Request.Context(), windowStart, windowEnd)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ProcessRenewals lets an external cron trigger the renewal sweep over HTTP
// in deployments that run with the internal scheduler disabled.
func (s *Server) ProcessRenewals(c *gin.Context) {
	report, err := s.subscriptionSvc.ProcessRenewals(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	errs := make([]string, 0, len(report.Errors))
	for _, itemErr := range report.Errors {
		errs = append(errs, itemErr.Error())
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"processed": report.Processed,
		"errors":    errs,
	}})
}
