// Package errors provides standardized error handling for the gift service.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode represents a standardized error code for the gift service.
type ErrorCode string

const (
	// Validation errors
	GIFT_VALIDATION  ErrorCode = "GIFT_VALIDATION"  // Bad input shape or content
	GIFT_BAD_REQUEST ErrorCode = "GIFT_BAD_REQUEST" // Bad request

	// Authentication/Authorization errors
	GIFT_AUTHN           ErrorCode = "GIFT_AUTHN"           // Authentication failed
	GIFT_JWT_INVALID     ErrorCode = "GIFT_JWT_INVALID"     // Invalid JWT
	GIFT_JWT_EXPIRED     ErrorCode = "GIFT_JWT_EXPIRED"     // Expired JWT
	GIFT_JWT_MALFORMED   ErrorCode = "GIFT_JWT_MALFORMED"   // Malformed JWT
	GIFT_ADMIN_REQUIRED  ErrorCode = "GIFT_ADMIN_REQUIRED"  // Caller lacks the admin role
	GIFT_ACCESS_DENIED   ErrorCode = "GIFT_ACCESS_DENIED"   // Gift belongs to someone else
	GIFT_ACCESS_DISABLED ErrorCode = "GIFT_ACCESS_DISABLED" // Access switched off
	GIFT_ACCESS_EXPIRED  ErrorCode = "GIFT_ACCESS_EXPIRED"  // Validity window has passed

	// Link errors
	GIFT_LINK_INVALID ErrorCode = "GIFT_LINK_INVALID" // Malformed or forged share link token

	// Resource errors
	GIFT_NOT_FOUND ErrorCode = "GIFT_NOT_FOUND" // Gift or user not found
	GIFT_GONE      ErrorCode = "GIFT_GONE"      // Permanently deleted (tombstoned)
	GIFT_CONFLICT  ErrorCode = "GIFT_CONFLICT"  // Resource conflict

	// State machine errors
	GIFT_INVALID_TRANSITION ErrorCode = "GIFT_INVALID_TRANSITION" // Illegal status transition
	GIFT_INVALID_OPERATION  ErrorCode = "GIFT_INVALID_OPERATION"  // Operation refused in current state
	GIFT_EXPIRED_GRANT      ErrorCode = "GIFT_EXPIRED_GRANT"      // Re-grant attempted past expiry without reset

	// Server errors
	GIFT_INTERNAL    ErrorCode = "GIFT_INTERNAL"    // Internal server error
	GIFT_UNAVAILABLE ErrorCode = "GIFT_UNAVAILABLE" // Service unavailable
)

// Error represents a standardized error response.
type Error struct {
	Code          ErrorCode   `json:"code"`
	Message       string      `json:"message"`
	CorrelationID string      `json:"correlationId"`
	Details       interface{} `json:"details,omitempty"`
	HTTPStatus    int         `json:"-"`
}

// New creates a new Error with the specified code and message.
func New(code ErrorCode, message string, correlationID string) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// NewWithDetails creates a new Error with the specified code, message, and details.
func NewWithDetails(code ErrorCode, message string, correlationID string, details interface{}) *Error {
	return &Error{
		Code:          code,
		Message:       message,
		CorrelationID: correlationID,
		Details:       details,
		HTTPStatus:    httpStatusCodeForCode(code),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Details != nil {
		return fmt.Sprintf("%s: %s (details: %v)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// httpStatusCodeForCode maps error codes to HTTP status codes.
func httpStatusCodeForCode(code ErrorCode) int {
	switch code {
	case GIFT_VALIDATION, GIFT_BAD_REQUEST, GIFT_LINK_INVALID,
		GIFT_INVALID_OPERATION, GIFT_EXPIRED_GRANT:
		return http.StatusBadRequest
	case GIFT_AUTHN, GIFT_JWT_INVALID, GIFT_JWT_EXPIRED, GIFT_JWT_MALFORMED:
		return http.StatusUnauthorized
	case GIFT_ADMIN_REQUIRED, GIFT_ACCESS_DENIED, GIFT_ACCESS_DISABLED, GIFT_ACCESS_EXPIRED:
		return http.StatusForbidden
	case GIFT_NOT_FOUND:
		return http.StatusNotFound
	case GIFT_GONE:
		return http.StatusGone
	case GIFT_CONFLICT, GIFT_INVALID_TRANSITION:
		return http.StatusConflict
	case GIFT_UNAVAILABLE:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
