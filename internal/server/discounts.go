package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	discountdomain "github.com/croplytics/croplytics/internal/discount/domain"
)

type createDiscountRequest struct {
	Code            string     `json:"code"`
	Description     *string    `json:"description"`
	Type            string     `json:"type"`
	PercentOff      *float64   `json:"percent_off"`
	AmountOff       *int64     `json:"amount_off"`
	ValidFrom       *time.Time `json:"valid_from"`
	ValidUntil      *time.Time `json:"valid_until"`
	MaxRedemptions  *int       `json:"max_redemptions"`
	PerTenantLimit  *int       `json:"per_tenant_limit"`
	ApplicablePlans []string   `json:"applicable_plans"`
	MinAmount       int64      `json:"min_amount"`
}

func (s *Server) CreateDiscount(c *gin.Context) {
	var req createDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.discountSvc.Create(c.Request.Context(), discountdomain.CreateDiscountRequest{
		Code:            strings.TrimSpace(req.Code),
		Description:     req.Description,
		Type:            discountdomain.DiscountType(strings.ToUpper(strings.TrimSpace(req.Type))),
		PercentOff:      req.PercentOff,
		AmountOff:       req.AmountOff,
		ValidFrom:       req.ValidFrom,
		ValidUntil:      req.ValidUntil,
		MaxRedemptions:  req.MaxRedemptions,
		PerTenantLimit:  req.PerTenantLimit,
		ApplicablePlans: req.ApplicablePlans,
		MinAmount:       req.MinAmount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetDiscountByCode(c *gin.Context) {
	resp, err := s.discountSvc.GetByCode(c.Request.Context(), strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListDiscounts(c *gin.Context) {
	var query struct {
		Active string `form:"active"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	active, err := parseOptionalBool(query.Active)
	if err != nil {
		AbortWithError(c, newValidationError("active", "invalid_active", "invalid active"))
		return
	}

	resp, err := s.discountSvc.List(c.Request.Context(), active != nil && *active)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateDiscount(c *gin.Context) {
	resp, err := s.discountSvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type discountCheckRequest struct {
	Code     string `json:"code"`
	TenantID string `json:"tenant_id"`
	PlanCode string `json:"plan_code"`
	Amount   int64  `json:"amount"`
}

func (s *Server) ValidateDiscount(c *gin.Context) {
	var req discountCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, err := parseSnowflake(req.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
		return
	}

	code, err := s.discountSvc.Validate(c.Request.Context(), discountdomain.ValidateRequest{
		Code:     strings.TrimSpace(req.Code),
		TenantID: tenantID,
		PlanCode: strings.TrimSpace(req.PlanCode),
		Amount:   req.Amount,
	})
	if err != nil {
		// Eligibility failures are part of the contract: the caller gets
		// a valid=false verdict with the reason, not an error status.
		if isDiscountValidationError(err) || err == discountdomain.ErrCodeNotFound {
			c.JSON(http.StatusOK, gin.H{"data": gin.H{
				"valid":  false,
				"reason": err.Error(),
			}})
			return
		}
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"valid":           true,
		"code":            code,
		"discount_amount": code.CalculateDiscount(req.Amount),
	}})
}

func (s *Server) ApplyDiscount(c *gin.Context) {
	var req struct {
		discountCheckRequest
		SubscriptionID string `json:"subscription_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, err := parseSnowflake(req.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
		return
	}

	apply := discountdomain.ApplyRequest{
		Code:     strings.TrimSpace(req.Code),
		TenantID: tenantID,
		PlanCode: strings.TrimSpace(req.PlanCode),
		Amount:   req.Amount,
	}
	if strings.TrimSpace(req.SubscriptionID) != "" {
		subID, err := parseSnowflake(req.SubscriptionID)
		if err != nil {
			AbortWithError(c, newValidationError("subscription_id", "invalid_subscription_id", "invalid subscription_id"))
			return
		}
		apply.SubscriptionID = &subID
	}

	resp, err := s.discountSvc.Apply(c.Request.Context(), apply)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
