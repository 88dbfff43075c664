package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	pricingdomain "github.com/croplytics/croplytics/internal/pricing/domain"
)

type quoteRequest struct {
	TenantID     string                           `json:"tenant_id"`
	Tier         string                           `json:"tier"`
	BillingCycle string                           `json:"billing_cycle"`
	Selections   []pricingdomain.ModuleSelection `json:"selections"`
	DiscountCode string                           `json:"discount_code"`
}

func (s *Server) CalculateQuote(c *gin.Context) {
	var req quoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	quote := pricingdomain.QuoteRequest{
		Tier:         plandomain.PlanTier(strings.ToUpper(strings.TrimSpace(req.Tier))),
		BillingCycle: plandomain.BillingCycle(strings.ToUpper(strings.TrimSpace(req.BillingCycle))),
		Selections:   req.Selections,
		DiscountCode: strings.TrimSpace(req.DiscountCode),
	}
	if strings.TrimSpace(req.TenantID) != "" {
		tenantID, err := parseSnowflake(req.TenantID)
		if err != nil {
			AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
			return
		}
		quote.TenantID = tenantID
	}

	resp, err := s.pricingSvc.Calculate(c.Request.Context(), quote)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
