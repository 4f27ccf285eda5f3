package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Components MUST use these instead of literal strings.
const (
	// Ingestion
	ErrCodeIngestionMalformed ErrorCode = "ingestion_malformed_packet"

	// Audit trail
	ErrCodeAuditWrite ErrorCode = "audit_write_failed"

	// Notification path
	ErrCodeDeliveryFailed    ErrorCode = "notification_delivery_failed"
	ErrCodeTemplateMissing   ErrorCode = "notification_template_missing"
	ErrCodeTemplateRender    ErrorCode = "notification_render_failed"
	ErrCodeDispatchQueueFull ErrorCode = "dispatch_queue_full"

	// Upstream / internal
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
)

// AppError is the standard error type used throughout the watchdog.
// Runtime errors that must be reported (as opposed to configuration errors,
// which are fatal) are expressed as AppError so callers can branch on Code.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorCodeOf extracts the ErrorCode from anywhere in err's chain.
// Returns the empty code when err carries no AppError.
func ErrorCodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
