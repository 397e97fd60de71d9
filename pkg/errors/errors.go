package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies login flow failures. The type decides retry
// behaviour and logging, never the user-facing message: every terminal
// failure surfaces to the browser as the same generic sign-in error.
type ErrorType string

const (
	ErrorTypeConfiguration       ErrorType = "configuration"
	ErrorTypeMissingCode         ErrorType = "missing_authorization_code"
	ErrorTypeStateValidation     ErrorType = "state_validation_failed"
	ErrorTypeUpstreamUnavailable ErrorType = "upstream_unavailable"
	ErrorTypeCodeAlreadyUsed     ErrorType = "code_already_used"
	ErrorTypeMalformedToken      ErrorType = "malformed_token"
	ErrorTypeInvalidSignature    ErrorType = "invalid_signature"
	ErrorTypeClaimValidation     ErrorType = "claim_validation_failed"
	ErrorTypeNonceMismatch       ErrorType = "nonce_mismatch"
	ErrorTypeMissingClaim        ErrorType = "missing_required_claim"
	ErrorTypePersistenceConflict ErrorType = "persistence_conflict"
	ErrorTypeInternal            ErrorType = "internal"
)

// AppError is a structured login flow error.
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Retryable reports whether the caller may retry the failed step once.
// Only a transient upstream failure qualifies; authorization codes are
// single-use, so everything past the exchange is terminal.
func (e *AppError) Retryable() bool {
	return e.Type == ErrorTypeUpstreamUnavailable
}

// SecurityEvent reports whether the failure indicates possible replay,
// CSRF, or token tampering and must be logged distinctly.
func (e *AppError) SecurityEvent() bool {
	switch e.Type {
	case ErrorTypeInvalidSignature, ErrorTypeNonceMismatch, ErrorTypeStateValidation:
		return true
	}
	return false
}

// TypeOf extracts the ErrorType from an error chain, or ErrorTypeInternal
// for errors that did not originate in this package.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// New creates an AppError with the given type and message.
func New(t ErrorType, message string) *AppError {
	return &AppError{Type: t, Message: message, StatusCode: statusFor(t)}
}

// Wrap creates an AppError wrapping an underlying cause.
func Wrap(t ErrorType, message string, internal error) *AppError {
	return &AppError{Type: t, Message: message, StatusCode: statusFor(t), Internal: internal}
}

func statusFor(t ErrorType) int {
	switch t {
	case ErrorTypeConfiguration, ErrorTypeInternal:
		return http.StatusInternalServerError
	case ErrorTypeUpstreamUnavailable:
		return http.StatusBadGateway
	case ErrorTypeMissingCode:
		return http.StatusBadRequest
	case ErrorTypePersistenceConflict:
		return http.StatusConflict
	default:
		return http.StatusUnauthorized
	}
}
