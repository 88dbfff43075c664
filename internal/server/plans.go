package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
)

type createPlanRequest struct {
	Code            string         `json:"code"`
	Name            string         `json:"name"`
	Description     *string        `json:"description"`
	Tier            string         `json:"tier"`
	MonthlyPrice    int64          `json:"monthly_price"`
	QuarterlyPrice  int64          `json:"quarterly_price"`
	SemiAnnualPrice int64          `json:"semi_annual_price"`
	AnnualPrice     int64          `json:"annual_price"`
	MaxUsers        int            `json:"max_users"`
	MaxSensors      int            `json:"max_sensors"`
	MaxFarms        int            `json:"max_farms"`
	StorageGB       int            `json:"storage_gb"`
	Features        map[string]any `json:"features"`
}

func (s *Server) CreatePlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.planSvc.Create(c.Request.Context(), plandomain.CreatePlanRequest{
		Code:            strings.TrimSpace(req.Code),
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		Tier:            plandomain.PlanTier(strings.ToUpper(strings.TrimSpace(req.Tier))),
		MonthlyPrice:    req.MonthlyPrice,
		QuarterlyPrice:  req.QuarterlyPrice,
		SemiAnnualPrice: req.SemiAnnualPrice,
		AnnualPrice:     req.AnnualPrice,
		MaxUsers:        req.MaxUsers,
		MaxSensors:      req.MaxSensors,
		MaxFarms:        req.MaxFarms,
		StorageGB:       req.StorageGB,
		Features:        req.Features,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdatePlan(c *gin.Context) {
	var req plandomain.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.planSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetPlanByID(c *gin.Context) {
	resp, err := s.planSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPlans(c *gin.Context) {
	var query struct {
		IncludeDeprecated string `form:"include_deprecated"`
		Tier              string `form:"tier"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	includeDeprecated, err := parseOptionalBool(query.IncludeDeprecated)
	if err != nil {
		AbortWithError(c, newValidationError("include_deprecated", "invalid_include_deprecated", "invalid include_deprecated"))
		return
	}

	resp, err := s.planSvc.List(c.Request.Context(), plandomain.ListPlanRequest{
		IncludeDeprecated: includeDeprecated != nil && *includeDeprecated,
		Tier:              strings.ToUpper(strings.TrimSpace(query.Tier)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeprecatePlan(c *gin.Context) {
	resp, err := s.planSvc.Deprecate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
