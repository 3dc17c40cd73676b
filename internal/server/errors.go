package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	accumulatordomain "github.com/SalamEnterprise/claims-askes/internal/accumulator/domain"
	adjudicationdomain "github.com/SalamEnterprise/claims-askes/internal/adjudication/domain"
	"github.com/SalamEnterprise/claims-askes/internal/authz"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	fundingdomain "github.com/SalamEnterprise/claims-askes/internal/funding/domain"
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
	ErrInvalidRequest = errors.New("invalid_request")
	ErrInternal       = errors.New("internal_error")
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

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isConfigurationError(err):
		// Plan and funding configuration gaps are operator problems, not
		// caller problems; 422 keeps them distinct from bad requests.
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "configuration_error",
			Message: err.Error(),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isDependencyError(err):
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
		errors.Is(err, adjudicationdomain.ErrInvalidClaim),
		errors.Is(err, accumulatordomain.ErrInvalidMember),
		errors.Is(err, fundingdomain.ErrInvalidPolicy),
		errors.Is(err, fundingdomain.ErrInvalidAmount),
		errors.Is(err, fundingdomain.ErrInvalidSource),
		errors.Is(err, benefitplandomain.ErrInvalidPlan),
		errors.Is(err, benefitplandomain.ErrInvalidBenefitCode),
		errors.Is(err, benefitplandomain.ErrInvalidLimitType),
		errors.Is(err, benefitplandomain.ErrInvalidEffectiveRange),
		errors.Is(err, benefitplandomain.ErrInvalidCoinsurance):
		return true
	default:
		return false
	}
}

func isConfigurationError(err error) bool {
	switch {
	case errors.Is(err, benefitplandomain.ErrBenefitNotFound),
		errors.Is(err, benefitplandomain.ErrAmbiguousBenefit),
		errors.Is(err, fundingdomain.ErrConfigNotFound):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, adjudicationdomain.ErrConcurrencyConflict),
		errors.Is(err, adjudicationdomain.ErrAlreadyReversed),
		errors.Is(err, adjudicationdomain.ErrNotReversible),
		errors.Is(err, accumulatordomain.ErrVersionConflict):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, adjudicationdomain.ErrClaimNotFound),
		errors.Is(err, accumulatordomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isDependencyError(err error) bool {
	switch {
	case errors.Is(err, adjudicationdomain.ErrDependencyUnavailable),
		errors.Is(err, authz.ErrUnavailable):
		return true
	default:
		return false
	}
}

func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case asValidationErrors(err) != nil, isValidationError(err):
		return "validation_error", "invalid_request"
	case isConfigurationError(err):
		return "configuration_error", err.Error()
	case isConflictError(err):
		return "conflict", err.Error()
	case isNotFoundError(err):
		return "not_found", err.Error()
	case isDependencyError(err):
		return "service_unavailable", err.Error()
	default:
		return "internal_error", "internal"
	}
}
