package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"server error", NewAPIError("GET", "/api/x", 503, ""), true},
		{"client error", NewAPIError("GET", "/api/x", 404, "not found"), false},
		{"payload error", NewAPIError("POST", "/api/x", 200, "plan locked"), false},
		{"network", NewNetworkError("/api/x", ErrConnectionFailed), true},
		{"wrapped network", Wrap(NewNetworkError("/api/x", ErrTimeout), "status"), true},
		{"plain", New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestUserMessagePrefersBackendText(t *testing.T) {
	assert.Equal(t, "plan locked", UserMessage(Wrap(NewAPIError("POST", "/x", 200, "plan locked"), "approve")))
	assert.Equal(t, "Bad Gateway", UserMessage(NewAPIError("GET", "/x", 502, "")))
	assert.Equal(t, "disk full", UserMessage(New("disk full")))
	assert.Empty(t, UserMessage(nil))
}

func TestTypedErrorsUnwrap(t *testing.T) {
	planErr := NewPlanError("p1", "approve", "executed", ErrActionNotOffered)
	assert.True(t, Is(planErr, ErrActionNotOffered))
	assert.Equal(t, "cannot approve plan p1 (executed): action not offered for plan status", planErr.Error())

	valErr := fmt.Errorf("settings: %w", NewValidationError("ticker", "IN FY", "bad characters"))
	assert.True(t, Is(valErr, ErrInputValidation))
	var v *ValidationError
	assert.True(t, As(valErr, &v))
	assert.Equal(t, "ticker", v.Field)
}

func TestWrapKeepsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ctx"))
	assert.NoError(t, Wrapf(nil, "ctx %d", 1))
	assert.EqualError(t, Wrapf(ErrPlanNotFound, "load %s", "p1"), "load p1: trade plan not found")
}
