package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
)

type createInvoiceRequest struct {
	TenantID       string         `json:"tenant_id"`
	SubscriptionID string         `json:"subscription_id"`
	Description    string         `json:"description"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	DueAt          string         `json:"due_at"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, err := parseSnowflake(req.TenantID)
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "invalid tenant_id"))
		return
	}

	create := invoicedomain.CreateInvoiceRequest{
		TenantID:    tenantID,
		Description: strings.TrimSpace(req.Description),
		Amount:      req.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(req.Currency)),
		Metadata:    req.Metadata,
	}

	if strings.TrimSpace(req.SubscriptionID) != "" {
		subscriptionID, err := parseSnowflake(req.SubscriptionID)
		if err != nil {
			AbortWithError(c, newValidationError("subscription_id", "invalid_subscription_id", "invalid subscription_id"))
			return
		}
		create.SubscriptionID = &subscriptionID
	}

	if strings.TrimSpace(req.DueAt) != "" {
		dueAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.DueAt))
		if err != nil {
			AbortWithError(c, newValidationError("due_at", "invalid_due_at", "due_at must be RFC3339"))
			return
		}
		create.DueAt = &dueAt
	}

	resp, err := s.invoiceSvc.Create(c.Request.Context(), create)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	resp, err := s.invoiceSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		TenantID string `form:"tenant_id"`
		Status   string `form:"status"`
		Limit    string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := invoicedomain.ListInvoicesRequest{
		Status: invoicedomain.Status(strings.ToUpper(strings.TrimSpace(query.Status))),
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

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PayInvoice(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.RecordPayment(c.Request.Context(), strings.TrimSpace(c.Param("id")), req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) VoidInvoice(c *gin.Context) {
	resp, err := s.invoiceSvc.Void(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) InvoicePDF(c *gin.Context) {
	document, err := s.invoiceSvc.RenderPDF(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/pdf", document)
}

// MarkInvoicesOverdue lets an external cron trigger the overdue sweep over
// HTTP in deployments that run with the internal scheduler disabled.
func (s *Server) MarkInvoicesOverdue(c *gin.Context) {
	report, err := s.invoiceSvc.ProcessOverdue(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	errs := make([]string, 0, len(report.Errors))
	for _, itemErr := range report.Errors {
		errs = append(errs, itemErr.Error())
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"marked": report.Marked,
		"errors": errs,
	}})
}
