package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Callers MUST use these instead of hardcoded strings.
const (
	// Validation
	ErrCodeValidationMissingField  ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidMonths ErrorCode = "validation_invalid_months"
	ErrCodeValidationChunkOptions  ErrorCode = "validation_invalid_chunk_options"
	ErrCodeValidationInvalidAction ErrorCode = "validation_invalid_action"
	ErrCodeValidationPageSize      ErrorCode = "validation_invalid_page_size"

	// Not Found
	ErrCodeNotFoundJob ErrorCode = "not_found_job"

	// Conflict
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Internal/Upstream
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamAuthFailed  ErrorCode = "upstream_auth_failed"
	ErrCodeUpstreamBadResponse ErrorCode = "upstream_bad_response"
)

// AppError is the standard error type used throughout the pipeline.
// Domain and adapter errors are expressed as AppError so callers can branch on
// Code without string matching.
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

// CodeOf returns the ErrorCode of the first AppError in err's chain, or the
// empty string if there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsPermanentUpstream reports whether err is an upstream failure that will not
// heal by retrying the same call later (bad credentials, rejected request).
func IsPermanentUpstream(err error) bool {
	switch CodeOf(err) {
	case ErrCodeUpstreamAuthFailed, ErrCodeUpstreamBadResponse:
		return true
	}
	return false
}
