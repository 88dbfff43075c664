package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	customplandomain "github.com/croplytics/croplytics/internal/customplan/domain"
	pricingdomain "github.com/croplytics/croplytics/internal/pricing/domain"
)

type createCustomPlanRequest struct {
	TenantID           string                          `json:"tenant_id"`
	Name               string                          `json:"name"`
	Modules            []pricingdomain.ModuleSelection `json:"modules"`
	BillingCycleMonths int                             `json:"billing_cycle_months"`
}

func (s *Server) CreateCustomPlan(c *gin.Context) {
	var req createCustomPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, err := parseSnowflake(req.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
		return
	}

	resp, err := s.customPlanSvc.Create(c.Request.Context(), customplandomain.CreateCustomPlanRequest{
		TenantID:           tenantID,
		Name:               strings.TrimSpace(req.Name),
		Modules:            req.Modules,
		BillingCycleMonths: req.BillingCycleMonths,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCustomPlanByID(c *gin.Context) {
	resp, err := s.customPlanSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomPlans(c *gin.Context) {
	var query struct {
		TenantID string `form:"tenant_id"`
		Status   string `form:"status"`
		Limit    string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := customplandomain.ListCustomPlansRequest{
		Status: customplandomain.Status(strings.ToUpper(strings.TrimSpace(query.Status))),
	}

	if strings.TrimSpace(query.TenantID) != "" {
		tenantID, err := parseSnowflake(query.TenantID)
		if err != nil {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
			return
		}
		req.TenantID = tenantID
	}

	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	req.Limit = limit

	resp, err := s.customPlanSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateCustomPlanRequest struct {
	Name               *string                         `json:"name"`
	Modules            []pricingdomain.ModuleSelection `json:"modules"`
	BillingCycleMonths *int                            `json:"billing_cycle_months"`
}

func (s *Server) UpdateCustomPlan(c *gin.Context) {
	var req updateCustomPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customPlanSvc.Update(c.Request.Context(), customplandomain.UpdateCustomPlanRequest{
		ID:                 strings.TrimSpace(c.Param("id")),
		Name:               req.Name,
		Modules:            req.Modules,
		BillingCycleMonths: req.BillingCycleMonths,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteCustomPlan(c *gin.Context) {
	if err := s.customPlanSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

func (s *Server) SubmitCustomPlan(c *gin.Context) {
	resp, err := s.customPlanSvc.Submit(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApproveCustomPlan(c *gin.Context) {
	var req struct {
		Approver string `json:"approver"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	approver := strings.TrimSpace(req.Approver)
	if approver == "" {
		approver, _ = s.actorFromContext(c)
	}

	resp, err := s.customPlanSvc.Approve(c.Request.Context(), strings.TrimSpace(c.Param("id")), approver)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RejectCustomPlan(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customPlanSvc.Reject(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivateCustomPlan(c *gin.Context) {
	resp, err := s.customPlanSvc.Activate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CloneCustomPlan(c *gin.Context) {
	resp, err := s.customPlanSvc.Clone(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
