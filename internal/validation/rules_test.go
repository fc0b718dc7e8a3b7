package validation

import (
	"testing"

	validation "github.com/jellydator/validation"
	"github.com/stretchr/testify/assert"

	apperrors "github.com/allisson/propflow/internal/errors"
)

func TestHTTPURL(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		shouldErr bool
	}{
		{name: "https", value: "https://hooks.example.com/propflow"},
		{name: "http with port", value: "http://localhost:9000/hook"},
		{name: "missing scheme", value: "hooks.example.com/propflow", shouldErr: true},
		{name: "ftp", value: "ftp://example.com/file", shouldErr: true},
		{name: "no host", value: "https:///path", shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.Validate(tt.value, HTTPURL)
			if tt.shouldErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEventName(t *testing.T) {
	assert.NoError(t, validation.Validate("payment.completed", EventName))
	assert.NoError(t, validation.Validate("lease.tenant_signed", EventName))
	assert.Error(t, validation.Validate("payment", EventName))
	assert.Error(t, validation.Validate("Payment.Completed", EventName))
	assert.Error(t, validation.Validate("payment..completed", EventName))
}

func TestNotBlank(t *testing.T) {
	assert.NoError(t, validation.Validate("tenant-1", NotBlank))
	assert.Error(t, validation.Validate("   ", NotBlank))
}

func TestNoWhitespace(t *testing.T) {
	assert.NoError(t, validation.Validate("tenant-1", NoWhitespace))
	assert.Error(t, validation.Validate(" tenant-1", NoWhitespace))
}

func TestWrapValidationError(t *testing.T) {
	assert.NoError(t, WrapValidationError(nil))

	err := WrapValidationError(validation.Validate("", validation.Required))
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
}
