// internal/common/errors/classify.go
package errors

import (
	"errors"
	"strings"
)

// Classification marks whether retrying a failed send could help.
type Classification string

const (
	Permanent Classification = "permanent"
	Transient Classification = "transient"
)

// permanentCodes are error kinds that retrying will never fix.
var permanentCodes = map[ErrorCode]bool{
	ErrCodePlatformNotFound:   true,
	ErrCodePlatformDisabled:   true,
	ErrCodeAccessDenied:       true,
	ErrCodeCredentialsInvalid: true,
	ErrCodeProviderNotFound:   true,
	ErrCodeWebhookURLRejected: true,
	ErrCodeJobPayloadInvalid:  true,
}

// permanentPatterns matches errors coming from adapters or providers that do
// not carry a StandardError code. The table is deliberately the single place
// that knows about message shapes; replace entries here, not in the dispatch
// loop.
var permanentPatterns = []string{
	"configuration not found",
	"platform configuration not found",
	"access denied",
	"forbidden",
	"not found",
	"platform is disabled",
	"credentials could not be decrypted",
	"invalid credentials",
	"no provider registered",
	"unauthorized",
}

// Classify reports whether an error is permanent (bad configuration, retrying
// cannot help) or transient (network blip, 5xx, timeout). It only annotates
// results; callers never rethrow based on it.
func Classify(err error) Classification {
	if err == nil {
		return Transient
	}

	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		if permanentCodes[stdErr.Code] {
			return Permanent
		}
		if !stdErr.Retryable {
			return Permanent
		}
		return Transient
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range permanentPatterns {
		if strings.Contains(msg, pattern) {
			return Permanent
		}
	}
	return Transient
}
