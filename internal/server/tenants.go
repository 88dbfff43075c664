package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	"github.com/croplytics/croplytics/internal/provisioning"
	tenantdomain "github.com/croplytics/croplytics/internal/tenant/domain"
	"github.com/croplytics/croplytics/internal/tenantcontext"
	"github.com/croplytics/croplytics/pkg/db/pagination"
)

type createTenantRequest struct {
	Name     string         `json:"name"`
	Slug     string         `json:"slug"`
	Domain   *string        `json:"domain"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) CreateTenant(c *gin.Context) {
	var req createTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.Create(c.Request.Context(), tenantdomain.CreateTenantRequest{
		Name:     strings.TrimSpace(req.Name),
		Slug:     strings.TrimSpace(req.Slug),
		Domain:   req.Domain,
		Metadata: req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetTenantByID(c *gin.Context) {
	resp, err := s.tenantSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTenants(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Status string `form:"status"`
		Tier   string `form:"tier"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.List(c.Request.Context(), tenantdomain.ListTenantsRequest{
		Pagination: query.Pagination,
		Status:     tenantdomain.Status(strings.ToUpper(strings.TrimSpace(query.Status))),
		Tier:       plandomain.PlanTier(strings.ToUpper(strings.TrimSpace(query.Tier))),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateTenant(c *gin.Context) {
	var req struct {
		Name     *string        `json:"name"`
		Domain   *string        `json:"domain"`
		Metadata map[string]any `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.Update(c.Request.Context(), tenantdomain.UpdateTenantRequest{
		ID:       strings.TrimSpace(c.Param("id")),
		Name:     req.Name,
		Domain:   req.Domain,
		Metadata: req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SuspendTenant(c *gin.Context) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.tenantSvc.Suspend(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ActivateTenant(c *gin.Context) {
	resp, err := s.tenantSvc.Activate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeactivateTenant(c *gin.Context) {
	resp, err := s.tenantSvc.Deactivate(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ArchiveTenant(c *gin.Context) {
	resp, err := s.tenantSvc.Archive(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ProvisionTenant always returns the step report, even when the run failed
// partway, so operators can see which steps completed.
func (s *Server) ProvisionTenant(c *gin.Context) {
	var opts provisioning.Options
	if err := c.ShouldBindJSON(&opts); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	report, err := s.provisioningSvc.Provision(c.Request.Context(), strings.TrimSpace(c.Param("id")), opts)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}

func (s *Server) TenantUsage(c *gin.Context) {
	resp, err := s.tenantSvc.Usage(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type bulkTenantRequest struct {
	IDs    []string `json:"ids"`
	Reason string   `json:"reason"`
}

func (s *Server) BulkSuspendTenants(c *gin.Context) {
	var req bulkTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.IDs) == 0 {
		AbortWithError(c, newValidationError("ids", "ids_required", "ids must not be empty"))
		return
	}

	results := s.tenantSvc.BulkSuspend(c.Request.Context(), req.IDs, strings.TrimSpace(req.Reason))
	c.JSON(http.StatusOK, gin.H{"data": results})
}

func (s *Server) BulkActivateTenants(c *gin.Context) {
	var req bulkTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(req.IDs) == 0 {
		AbortWithError(c, newValidationError("ids", "ids_required", "ids must not be empty"))
		return
	}

	results := s.tenantSvc.BulkActivate(c.Request.Context(), req.IDs)
	c.JSON(http.StatusOK, gin.H{"data": results})
}

func (s *Server) AddTenantNote(c *gin.Context) {
	var req struct {
		Body   string `json:"body"`
		Pinned bool   `json:"pinned"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	authorID, _ := s.actorFromContext(c)
	resp, err := s.tenantSvc.AddNote(c.Request.Context(), tenantdomain.AddNoteRequest{
		TenantID: strings.TrimSpace(c.Param("id")),
		AuthorID: authorID,
		Body:     strings.TrimSpace(req.Body),
		Pinned:   req.Pinned,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTenantNotes(c *gin.Context) {
	resp, err := s.tenantSvc.ListNotes(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteTenantNote(c *gin.Context) {
	err := s.tenantSvc.DeleteNote(c.Request.Context(), strings.TrimSpace(c.Param("id")), strings.TrimSpace(c.Param("noteId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}

// TenantActivities lists the audit trail scoped to one tenant.
func (s *Server) TenantActivities(c *gin.Context) {
	tenantID, err := parseSnowflake(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_tenant_id", "invalid tenant id"))
		return
	}

	var query struct {
		pagination.Pagination
		Action     string `form:"action"`
		TargetType string `form:"target_type"`
		TargetID   string `form:"target_id"`
		ActorType  string `form:"actor_type"`
		StartAt    string `form:"start_at"`
		EndAt      string `form:"end_at"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := auditdomain.ListAuditLogRequest{
		Pagination: query.Pagination,
		Action:     strings.TrimSpace(query.Action),
		TargetType: strings.TrimSpace(query.TargetType),
		TargetID:   strings.TrimSpace(query.TargetID),
		ActorType:  strings.TrimSpace(query.ActorType),
	}

	if strings.TrimSpace(query.StartAt) != "" {
		startAt, err := time.Parse(time.RFC3339, strings.TrimSpace(query.StartAt))
		if err != nil {
			AbortWithError(c, newValidationError("start_at", "invalid_start_at", "start_at must be RFC3339"))
			return
		}
		req.StartAt = &startAt
	}
	if strings.TrimSpace(query.EndAt) != "" {
		endAt, err := time.Parse(time.RFC3339, strings.TrimSpace(query.EndAt))
		if err != nil {
			AbortWithError(c, newValidationError("end_at", "invalid_end_at", "end_at must be RFC3339"))
			return
		}
		req.EndAt = &endAt
	}

	ctx := tenantcontext.WithTenantID(c.Request.Context(), int64(tenantID))
	resp, err := s.auditSvc.List(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
