package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/croplytics/croplytics/internal/audit/domain"
	"github.com/croplytics/croplytics/internal/authorization"
	customplandomain "github.com/croplytics/croplytics/internal/customplan/domain"
	discountdomain "github.com/croplytics/croplytics/internal/discount/domain"
	invoicedomain "github.com/croplytics/croplytics/internal/invoice/domain"
	modulepricingdomain "github.com/croplytics/croplytics/internal/modulepricing/domain"
	plandomain "github.com/croplytics/croplytics/internal/plan/domain"
	pricingdomain "github.com/croplytics/croplytics/internal/pricing/domain"
	subscriptiondomain "github.com/croplytics/croplytics/internal/subscription/domain"
	tenantdomain "github.com/croplytics/croplytics/internal/tenant/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isPlanValidationError(err),
		isDiscountValidationError(err),
		isModulePricingValidationError(err),
		isPricingValidationError(err),
		isSubscriptionValidationError(err),
		isInvoiceValidationError(err),
		isCustomPlanValidationError(err),
		isTenantValidationError(err),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}

func isPlanValidationError(err error) bool {
	switch err {
	case plandomain.ErrInvalidPlanID,
		plandomain.ErrInvalidPlanCode,
		plandomain.ErrInvalidPlanName,
		plandomain.ErrInvalidTier,
		plandomain.ErrInvalidPlanPrice,
		plandomain.ErrPlanDeprecated:
		return true
	default:
		return false
	}
}

func isDiscountValidationError(err error) bool {
	switch err {
	case discountdomain.ErrCodeInactive,
		discountdomain.ErrCodeNotStarted,
		discountdomain.ErrCodeExpired,
		discountdomain.ErrRedemptionCapReached,
		discountdomain.ErrTenantCapReached,
		discountdomain.ErrPlanNotEligible,
		discountdomain.ErrAmountBelowMinimum,
		discountdomain.ErrInvalidCode,
		discountdomain.ErrInvalidDiscountValue:
		return true
	default:
		return false
	}
}

func isModulePricingValidationError(err error) bool {
	switch err {
	case modulepricingdomain.ErrInvalidModule,
		modulepricingdomain.ErrInvalidMetric,
		modulepricingdomain.ErrInvalidUnitPrice,
		modulepricingdomain.ErrInvalidQuantity,
		modulepricingdomain.ErrEmptyPriceList,
		modulepricingdomain.ErrDuplicateMetric:
		return true
	default:
		return false
	}
}

func isPricingValidationError(err error) bool {
	switch err {
	case pricingdomain.ErrInvalidTier,
		pricingdomain.ErrInvalidCycle,
		pricingdomain.ErrInvalidQuantity,
		pricingdomain.ErrNoSelections:
		return true
	default:
		return false
	}
}

func isSubscriptionValidationError(err error) bool {
	switch err {
	case subscriptiondomain.ErrInvalidID,
		subscriptiondomain.ErrInvalidTenant,
		subscriptiondomain.ErrInvalidCycle,
		subscriptiondomain.ErrInvalidTrialDays:
		return true
	default:
		return false
	}
}

func isInvoiceValidationError(err error) bool {
	switch err {
	case invoicedomain.ErrInvalidInvoiceID,
		invoicedomain.ErrInvalidAmount,
		invoicedomain.ErrOverpayment:
		return true
	default:
		return false
	}
}

func isCustomPlanValidationError(err error) bool {
	switch err {
	case customplandomain.ErrInvalidID,
		customplandomain.ErrInvalidName,
		customplandomain.ErrInvalidTenant,
		customplandomain.ErrInvalidCycle,
		customplandomain.ErrNoModules,
		customplandomain.ErrMissingReason,
		customplandomain.ErrMissingApprover:
		return true
	default:
		return false
	}
}

func isTenantValidationError(err error) bool {
	switch err {
	case tenantdomain.ErrInvalidTenantID,
		tenantdomain.ErrInvalidName,
		tenantdomain.ErrInvalidSlug,
		tenantdomain.ErrInvalidNote,
		tenantdomain.ErrInvalidPageToken,
		tenantdomain.ErrIllegalState:
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, plandomain.ErrDuplicatePlanCode),
		errors.Is(err, discountdomain.ErrDuplicateCode),
		errors.Is(err, subscriptiondomain.ErrTenantHasActive),
		errors.Is(err, subscriptiondomain.ErrNotCancelable),
		errors.Is(err, subscriptiondomain.ErrNotCanceled),
		errors.Is(err, subscriptiondomain.ErrNotActive),
		errors.Is(err, subscriptiondomain.ErrSamePlan),
		errors.Is(err, invoicedomain.ErrInvoiceTerminal),
		errors.Is(err, invoicedomain.ErrInvoicePaid),
		errors.Is(err, customplandomain.ErrNotEditable),
		errors.Is(err, customplandomain.ErrNotDraft),
		errors.Is(err, customplandomain.ErrNotPending),
		errors.Is(err, customplandomain.ErrNotApproved),
		errors.Is(err, tenantdomain.ErrDuplicateSlug),
		errors.Is(err, tenantdomain.ErrDuplicateDomain),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, plandomain.ErrPlanNotFound),
		errors.Is(err, discountdomain.ErrCodeNotFound),
		errors.Is(err, modulepricingdomain.ErrPricingNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, customplandomain.ErrNotFound),
		errors.Is(err, tenantdomain.ErrTenantNotFound),
		errors.Is(err, tenantdomain.ErrNoteNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
