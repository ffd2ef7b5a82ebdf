package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	t.Run("with status code", func(t *testing.T) {
		err := NewHTTP(429, "too many requests")
		assert.Equal(t, "rate_limit error (code 429): too many requests", err.Error())
	})

	t.Run("without status code", func(t *testing.T) {
		err := New(ErrorTypeCapture, "no fragments intercepted")
		assert.Equal(t, "capture error: no fragments intercepted", err.Error())
	})
}

func TestTypeForStatusCode(t *testing.T) {
	tests := []struct {
		code     int
		expected ErrorType
	}{
		{0, ErrorTypeNetwork},
		{401, ErrorTypeAuth},
		{403, ErrorTypeForbidden},
		{404, ErrorTypeNotFound},
		{429, ErrorTypeRateLimit},
		{500, ErrorTypeServerError},
		{502, ErrorTypeServerError},
		{503, ErrorTypeServerError},
		{418, ErrorTypeUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, TypeForStatusCode(tt.code), "status %d", tt.code)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrorTypeNetwork))
	assert.True(t, IsRetryable(ErrorTypeRateLimit))
	assert.True(t, IsRetryable(ErrorTypeServerError))

	// Forbidden escalates to the interception fallback, never retries
	assert.False(t, IsRetryable(ErrorTypeForbidden))
	assert.False(t, IsRetryable(ErrorTypeAuth))
	assert.False(t, IsRetryable(ErrorTypeNotFound))
	assert.False(t, IsRetryable(ErrorTypeManifest))
	assert.False(t, IsRetryable(ErrorTypeCapture))
	assert.False(t, IsRetryable(ErrorTypeMux))
	assert.False(t, IsRetryable(ErrorTypeUnknown))
}

func TestIsRetryableStatusCode(t *testing.T) {
	retryable := []int{0, 429, 500, 502, 503, 504, 599}
	for _, code := range retryable {
		assert.True(t, IsRetryableStatusCode(code), "status %d should be retryable", code)
	}

	notRetryable := []int{401, 403, 404, 200, 302}
	for _, code := range notRetryable {
		assert.False(t, IsRetryableStatusCode(code), "status %d should not be retryable", code)
	}
}
