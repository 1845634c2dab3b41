// internal/common/errors/errors.go
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodePlatformNotFound   ErrorCode = "PLATFORM_NOT_FOUND"
	ErrCodePlatformDisabled   ErrorCode = "PLATFORM_DISABLED"
	ErrCodeAccessDenied       ErrorCode = "ACCESS_DENIED"
	ErrCodeCredentialsInvalid ErrorCode = "CREDENTIALS_INVALID"
	ErrCodeProviderNotFound   ErrorCode = "PROVIDER_NOT_FOUND"

	ErrCodeDeliveryFailed ErrorCode = "DELIVERY_FAILED"
	ErrCodeSendTimeout    ErrorCode = "SEND_TIMEOUT"

	ErrCodeDatabaseQueryFailed  ErrorCode = "DATABASE_QUERY_FAILED"
	ErrCodeDatabaseInsertFailed ErrorCode = "DATABASE_INSERT_FAILED"

	ErrCodeWebhookURLRejected    ErrorCode = "WEBHOOK_URL_REJECTED"
	ErrCodeWebhookDeliveryFailed ErrorCode = "WEBHOOK_DELIVERY_FAILED"

	ErrCodeJobPayloadInvalid ErrorCode = "JOB_PAYLOAD_INVALID"
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// StandardError is a structured application error carried through the
// dispatch and webhook pipelines.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewPlatformNotFoundError creates a non-retryable configuration error for a
// platform that is missing or belongs to another tenant.
func NewPlatformNotFoundError(platformID string) *StandardError {
	return &StandardError{
		Code:      ErrCodePlatformNotFound,
		Message:   "Platform configuration not found",
		Details:   fmt.Sprintf("platformId: %s", platformID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPlatformDisabledError creates a non-retryable error for an inactive platform.
func NewPlatformDisabledError(platformID string) *StandardError {
	return &StandardError{
		Code:      ErrCodePlatformDisabled,
		Message:   "Platform is disabled",
		Details:   fmt.Sprintf("platformId: %s", platformID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAccessDeniedError creates a non-retryable authorization error.
func NewAccessDeniedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAccessDenied,
		Message:   "Access denied",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCredentialsInvalidError creates a non-retryable credential error. The
// details must never contain decrypted credential material.
func NewCredentialsInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCredentialsInvalid,
		Message:   "Stored credentials could not be decrypted",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderNotFoundError creates a non-retryable error for an unknown
// platform-type string.
func NewProviderNotFoundError(platformType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderNotFound,
		Message:   "No provider registered for platform type",
		Details:   fmt.Sprintf("platformType: %s", platformType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDeliveryFailedError creates a retryable error summarizing target
// failures that should re-run the job.
func NewDeliveryFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDeliveryFailed,
		Message:   "Message delivery failed",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSendTimeoutError creates a retryable timeout error.
func NewSendTimeoutError(platformType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSendTimeout,
		Message:   "Message delivery timed out",
		Details:   fmt.Sprintf("platformType: %s", platformType),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseQueryFailedError creates a retryable database error.
func NewDatabaseQueryFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseQueryFailed,
		Message:   "Database query failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseInsertFailed,
		Message:   "Database insert failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewWebhookURLRejectedError creates a non-retryable SSRF-policy error.
func NewWebhookURLRejectedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWebhookURLRejected,
		Message:   "Webhook URL rejected by policy",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewJobPayloadInvalidError creates a non-retryable job validation error.
func NewJobPayloadInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeJobPayloadInvalid,
		Message:   "Job payload failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
