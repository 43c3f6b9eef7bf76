package cloudfiles

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		scope  scope
		want   error
	}{
		{"404 container", http.StatusNotFound, scopeContainer, ErrContainerNotFound},
		{"404 item", http.StatusNotFound, scopeStorageItem, ErrStorageItemNotFound},
		{"404 public container", http.StatusNotFound, scopePublicContainer, ErrPublicContainerNotFound},
		{"404 account", http.StatusNotFound, scopeAccount, nil},
		{"409", http.StatusConflict, scopeContainer, ErrContainerNotEmpty},
		{"412", http.StatusPreconditionFailed, scopeStorageItem, ErrPreconditionFailed},
		{"401", http.StatusUnauthorized, scopeContainer, ErrAuthenticationFailed},
		{"400 unclassified", http.StatusBadRequest, scopeContainer, nil},
		{"500 unclassified", http.StatusInternalServerError, scopeStorageItem, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyStatus(tt.status, tt.scope))
		})
	}
}

func TestClassifyStatus_Idempotent(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusConflict, http.StatusPreconditionFailed} {
		for _, s := range []scope{scopeAccount, scopeContainer, scopeStorageItem, scopePublicContainer} {
			first := classifyStatus(status, s)
			second := classifyStatus(status, s)
			assert.Equal(t, first, second, "status %d scope %d", status, s)
		}
	}
}

func TestIsSuccess(t *testing.T) {
	for code := 200; code <= 206; code++ {
		assert.True(t, isSuccess(code), "%d", code)
	}

	for _, code := range []int{100, 207, 301, 304, 400, 401, 404, 500} {
		assert.False(t, isSuccess(code), "%d", code)
	}
}

func TestError_Format(t *testing.T) {
	err := &Error{StatusCode: 404, TransID: "tx123", Message: "no such container", Err: ErrContainerNotFound}
	assert.Equal(t, "cloudfiles: container not found: HTTP 404 (trans-id: tx123): no such container", err.Error())

	bare := &Error{StatusCode: 500}
	assert.Equal(t, "cloudfiles: HTTP 500", bare.Error())
}

func TestError_Unwrap(t *testing.T) {
	var err error = &Error{StatusCode: 409, Err: ErrContainerNotEmpty}
	wrapped := fmt.Errorf("deleting: %w", err)

	assert.ErrorIs(t, wrapped, ErrContainerNotEmpty)

	var cfErr *Error
	assert.True(t, errors.As(wrapped, &cfErr))
	assert.Equal(t, 409, cfErr.StatusCode)
}
