package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	modulepricingdomain "github.com/croplytics/croplytics/internal/modulepricing/domain"
)

type createModulePricingRequest struct {
	ModuleCode    string                             `json:"module_code"`
	ModuleName    string                             `json:"module_name"`
	Prices        []modulepricingdomain.MetricPrice `json:"prices"`
	EffectiveFrom *time.Time                         `json:"effective_from"`
}

func (s *Server) CreateModulePricing(c *gin.Context) {
	var req createModulePricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	createdBy := ""
	if actor, ok := s.actorFromContext(c); ok {
		createdBy = actor
	}

	resp, err := s.modulePricingSvc.Create(c.Request.Context(), modulepricingdomain.CreatePricingRequest{
		ModuleCode:    strings.TrimSpace(req.ModuleCode),
		ModuleName:    strings.TrimSpace(req.ModuleName),
		Prices:        req.Prices,
		EffectiveFrom: req.EffectiveFrom,
		CreatedBy:     createdBy,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListModulePricing(c *gin.Context) {
	resp, err := s.modulePricingSvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetActiveModulePricing(c *gin.Context) {
	var query struct {
		At string `form:"at"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	at := time.Time{}
	if strings.TrimSpace(query.At) != "" {
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(query.At))
		if err != nil {
			AbortWithError(c, newValidationError("at", "invalid_at", "invalid at"))
			return
		}
		at = parsed
	}

	resp, err := s.modulePricingSvc.GetActive(c.Request.Context(), strings.TrimSpace(c.Param("moduleCode")), at)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ModulePricingHistory(c *gin.Context) {
	resp, err := s.modulePricingSvc.History(c.Request.Context(), strings.TrimSpace(c.Param("moduleCode")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateModulePricing(c *gin.Context) {
	if err := s.modulePricingSvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("moduleCode"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deactivated": true}})
}
