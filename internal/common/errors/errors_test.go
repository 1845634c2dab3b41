// internal/common/errors/errors_test.go
package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardErrorStringIncludesDetails(t *testing.T) {
	err := NewPlatformNotFoundError("pf-1")
	assert.Equal(t, "StandardError[PLATFORM_NOT_FOUND]: Platform configuration not found (platformId: pf-1)", err.Error())

	bare := &StandardError{Code: ErrCodeInternal, Message: "boom"}
	assert.Equal(t, "StandardError[INTERNAL_ERROR]: boom", bare.Error())
}
