package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/jukubill/internal/authorization"
	banktransferdomain "github.com/smallbiznis/jukubill/internal/banktransfer/domain"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	deadlinedomain "github.com/smallbiznis/jukubill/internal/deadline/domain"
	directdebitdomain "github.com/smallbiznis/jukubill/internal/directdebit/domain"
	"github.com/smallbiznis/jukubill/internal/guardlock"
	ledgerdomain "github.com/smallbiznis/jukubill/internal/ledger/domain"
	paymentdomain "github.com/smallbiznis/jukubill/internal/payment/domain"
	"github.com/smallbiznis/jukubill/internal/textenc"
	"github.com/smallbiznis/jukubill/pkg/db"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
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
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
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
		errors.Is(err, tenantctx.ErrMissingTenant):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    domainCode(err),
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Code:    domainCode(err),
			Message: "conflict",
		}
	case isRuleViolation(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Code:    domainCode(err),
			Message: "request violates a billing rule",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, guardlock.ErrLockTimeout):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code for access logs.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Code
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
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
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ledgerdomain.ErrInvalidGuardian),
		errors.Is(err, ledgerdomain.ErrInvalidTransactionType),
		errors.Is(err, ledgerdomain.ErrInvalidAmount),
		errors.Is(err, ledgerdomain.ErrInvalidAmountSign),
		errors.Is(err, paymentdomain.ErrInvalidGuardian),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, deadlinedomain.ErrInvalidPeriod),
		errors.Is(err, deadlinedomain.ErrReopenReasonRequired),
		errors.Is(err, banktransferdomain.ErrMissingColumn),
		errors.Is(err, banktransferdomain.ErrEmptyFile),
		errors.Is(err, directdebitdomain.ErrUnknownProvider),
		errors.Is(err, directdebitdomain.ErrInvalidResultRow),
		errors.Is(err, textenc.ErrUnknownEncoding),
		errors.Is(err, authorization.ErrInvalidRole):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, catalogdomain.ErrGuardianNotFound),
		errors.Is(err, catalogdomain.ErrStudentNotFound),
		errors.Is(err, billingdomain.ErrBillingNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, banktransferdomain.ErrImportNotFound),
		errors.Is(err, banktransferdomain.ErrTransferNotFound),
		errors.Is(err, directdebitdomain.ErrBatchNotFound),
		errors.Is(err, directdebitdomain.ErrLineNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, deadlinedomain.ErrPeriodClosed),
		errors.Is(err, deadlinedomain.ErrPeriodNotClosed),
		errors.Is(err, deadlinedomain.ErrPeriodUnderReview),
		errors.Is(err, deadlinedomain.ErrPeriodNotUnderReview),
		errors.Is(err, deadlinedomain.ErrPeriodReopened),
		errors.Is(err, banktransferdomain.ErrImportConfirmed),
		errors.Is(err, banktransferdomain.ErrTransferApplied),
		errors.Is(err, banktransferdomain.ErrTransferCancelled),
		errors.Is(err, banktransferdomain.ErrTransferChanged),
		errors.Is(err, directdebitdomain.ErrLineProcessed),
		errors.Is(err, billingdomain.ErrBillingFrozen),
		errors.Is(err, ledgerdomain.ErrIdempotencyConflict),
		errors.Is(err, paymentdomain.ErrIdempotencyConflict),
		db.IsDuplicateKeyErr(err):
		return true
	default:
		return false
	}
}

func isRuleViolation(err error) bool {
	switch {
	case errors.Is(err, ledgerdomain.ErrInsufficientBalance),
		errors.Is(err, billingdomain.ErrStudentNoGuardian),
		errors.Is(err, banktransferdomain.ErrTransferNotMatched),
		errors.Is(err, directdebitdomain.ErrNothingToExport):
		return true
	default:
		return false
	}
}

// domainCode returns the sentinel code at the root of a wrapped error.
func domainCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	code := err.Error()
	if strings.ContainsAny(code, " :") {
		return ""
	}
	return code
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	if code := domainCode(err); code != "" {
		return code
	}
	return "invalid_request"
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
