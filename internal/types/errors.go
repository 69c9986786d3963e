package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidJSON  ErrorCode = "validation_invalid_json"
	ErrCodeValidationInvalidEmail ErrorCode = "validation_invalid_email"
	ErrCodeValidationInvalidField ErrorCode = "validation_invalid_field"

	// Webhook verification (400) -- rejected before any payload interpretation.
	ErrCodeWebhookInvalidPayload   ErrorCode = "webhook_invalid_payload"
	ErrCodeWebhookInvalidSignature ErrorCode = "webhook_invalid_signature"
	ErrCodeWebhookMissingSignature ErrorCode = "webhook_missing_signature"

	// Auth (401)
	ErrCodeAuthInvalidCreds ErrorCode = "auth_invalid_credentials"

	// Not Found (404)
	ErrCodeNotFoundInstallation ErrorCode = "not_found_installation"
	ErrCodeNotFoundSession      ErrorCode = "not_found_session"

	// Storage (500) -- pending-store I/O failures abort the triggering request.
	ErrCodeStorageRead  ErrorCode = "storage_read_failed"
	ErrCodeStorageWrite ErrorCode = "storage_write_failed"

	// Gateway (500) -- payment-provider failure surfaced to the caller.
	ErrCodeGatewayStripe      ErrorCode = "gateway_stripe_error"
	ErrCodeGatewayRateLimited ErrorCode = "gateway_rate_limited"
	ErrCodeGatewayUnavailable ErrorCode = "gateway_unavailable"

	// Deployer (500/502)
	ErrCodeDeployerUnavailable ErrorCode = "deployer_unavailable"

	// Provisioning -- confined to logs, never surfaced to the payment gateway.
	ErrCodeProvisioningFailed ErrorCode = "provisioning_failed"

	// Internal (500)
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Gateway and storage failures map to 500 (not 502): the checkout creation
// contract promises 500 with an error body on provider-side failure.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "webhook_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case s == string(ErrCodeDeployerUnavailable):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the service.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
