package oidc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_tokenError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		code        string
		description string
		uri         string
		wantIs      error
		wantRetry   bool
	}{
		{name: "pending", code: "authorization_pending", wantIs: ErrTokenAuthorizationPending, wantRetry: true},
		{name: "slow-down", code: "slow_down", description: "easy", wantIs: ErrTokenSlowDown, wantRetry: true},
		{name: "expired", code: "expired_token", wantIs: ErrTokenExpired},
		{name: "unknown", code: "invalid_grant", description: "bad code", uri: "https://docs", wantIs: ErrTokenExchange},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			err := tokenError(tt.code, tt.description, tt.uri)
			assert.Truef(errors.Is(err, tt.wantIs), "wanted \"%s\" but got \"%s\"", tt.wantIs, err)
			assert.Equal(tt.wantRetry, IsRetryable(err))
			assert.Equal(tt.wantRetry, IsRetryable(fmt.Errorf("wrapped: %w", err)))
			if tt.wantIs == ErrTokenExchange {
				var exchangeErr *TokenExchangeError
				assert.True(errors.As(err, &exchangeErr))
				assert.Equal(tt.code, exchangeErr.Name)
				assert.Equal(tt.description, exchangeErr.Description)
				assert.Equal(tt.uri, exchangeErr.Uri)
			}
		})
	}
}

func TestStructErrors(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)

	var err error = &ProviderError{Code: "access_denied", Description: "user said no"}
	assert.True(errors.Is(err, ErrAuthorizationProvider))
	assert.Equal("authorization provider error: access_denied: user said no", err.Error())

	err = &DeviceCodeGenerationError{Name: "invalid_client"}
	assert.True(errors.Is(err, ErrDeviceCodeGeneration))
	assert.Equal("device code generation failed: invalid_client", err.Error())

	err = &TokenExchangeError{Name: "invalid_grant"}
	assert.True(errors.Is(err, ErrTokenExchange))
	assert.False(IsRetryable(err))
	assert.False(IsRetryable(nil))
}
