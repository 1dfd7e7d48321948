package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/portal/internal/account/domain"
	authdomain "github.com/smallbiznis/portal/internal/auth/domain"
	"github.com/smallbiznis/portal/internal/auth/password"
	"github.com/smallbiznis/portal/internal/authorization"
	companydomain "github.com/smallbiznis/portal/internal/company/domain"
	invitationdomain "github.com/smallbiznis/portal/internal/invitation/domain"
	onboardingdomain "github.com/smallbiznis/portal/internal/onboarding/domain"
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
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
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

	var incomplete *onboardingdomain.IncompleteDataError
	if errors.As(err, &incomplete) {
		fieldErrors := make([]ValidationError, 0, len(incomplete.Missing))
		for _, field := range incomplete.Missing {
			fieldErrors = append(fieldErrors, ValidationError{
				Field:   field,
				Code:    "required",
				Message: "field is required before accepting terms",
			})
		}
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "incomplete_data",
			Message: "required company data is missing",
			Errors:  fieldErrors,
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
		errors.Is(err, authdomain.ErrInvalidCredentials),
		errors.Is(err, accountdomain.ErrInvalidCredentials),
		errors.Is(err, authdomain.ErrInvalidSession),
		errors.Is(err, authdomain.ErrSessionNotFound),
		errors.Is(err, authdomain.ErrSessionExpired),
		errors.Is(err, authdomain.ErrSessionRevoked):
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
	case errors.Is(err, invitationdomain.ErrExpired):
		return http.StatusGone, errorPayload{
			Type:    "invitation_expired",
			Message: "this invitation has expired",
		}
	case errors.Is(err, invitationdomain.ErrRevoked):
		return http.StatusGone, errorPayload{
			Type:    "invitation_revoked",
			Message: "this invitation is no longer valid",
		}
	case errors.Is(err, invitationdomain.ErrAlreadyUsed):
		return http.StatusConflict, errorPayload{
			Type:    "invitation_already_used",
			Message: "this invitation has already been used",
		}
	case errors.Is(err, invitationdomain.ErrDuplicate):
		return http.StatusConflict, errorPayload{
			Type:    "invitation_duplicate",
			Message: "a pending invitation already exists for this recipient",
		}
	case errors.Is(err, onboardingdomain.ErrAlreadyAccepted):
		return http.StatusConflict, errorPayload{
			Type:    "terms_already_accepted",
			Message: "terms have already been accepted",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, accountdomain.ErrAccountExists),
		errors.Is(err, accountdomain.ErrInvalidState):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "too_many_requests",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, invitationdomain.ErrTokenConflict):
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

// classifyErrorForLog returns the error type and a code safe to log.
// Unclassified errors may carry driver text, so only their type is kept.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	if status >= http.StatusInternalServerError {
		return payload.Type, payload.Type
	}
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, err.Error()
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
		errors.Is(err, onboardingdomain.ErrInvalidRequest),
		errors.Is(err, onboardingdomain.ErrInvalidContact):
		return true
	case errors.Is(err, invitationdomain.ErrInvalidKind),
		errors.Is(err, invitationdomain.ErrInvalidEmail),
		errors.Is(err, invitationdomain.ErrInvalidCompany),
		errors.Is(err, invitationdomain.ErrInvalidContact),
		errors.Is(err, invitationdomain.ErrInvalidInviter),
		errors.Is(err, invitationdomain.ErrInvalidID):
		return true
	case errors.Is(err, companydomain.ErrInvalidName),
		errors.Is(err, companydomain.ErrInvalidEmail),
		errors.Is(err, companydomain.ErrInvalidCompany):
		return true
	case errors.Is(err, accountdomain.ErrInvalidPassword),
		errors.Is(err, accountdomain.ErrInvalidEmail),
		errors.Is(err, password.ErrTooShort):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, invitationdomain.ErrNotFound),
		errors.Is(err, onboardingdomain.ErrNotFound),
		errors.Is(err, companydomain.ErrNotFound),
		errors.Is(err, companydomain.ErrContactNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, onboardingdomain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, accountdomain.ErrInvalidPassword),
		errors.Is(err, password.ErrTooShort):
		return "invalid_password"
	case errors.Is(err, invitationdomain.ErrInvalidID):
		return "invalid_id"
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
	case "invalid_password":
		return "password must be at least 8 characters"
	default:
		return "invalid value"
	}
}
