package oidc

import (
	"errors"
	"fmt"

	"github.com/hashicorp/capclient/jwt"
)

var (
	ErrInvalidParameter                 = errors.New("invalid parameter")
	ErrNilParameter                     = errors.New("nil parameter")
	ErrInvalidCACert                    = errors.New("invalid CA certificate")
	ErrConfigurationMissing             = errors.New("configuration missing")
	ErrUrlGeneration                    = errors.New("unable to generate url")
	ErrRandomSource                     = errors.New("secure random source unavailable")
	ErrUnsupportedChallengeMethod       = errors.New("unsupported PKCE challenge method")
	ErrAuthorizationCancelled           = errors.New("authorization cancelled")
	ErrAuthorizationCallbackDataMissing = errors.New("authorization callback data missing")
	ErrResponseStateInvalid             = errors.New("authorization response state invalid")
	ErrAuthorizationProvider            = errors.New("authorization provider error")
	ErrTokenExchange                    = errors.New("token exchange failed")
	ErrTokenAuthorizationPending        = errors.New("authorization pending")
	ErrTokenSlowDown                    = errors.New("slow down")
	ErrTokenExpired                     = errors.New("token expired")
	ErrTokenValidationFailed            = errors.New("token validation failed")
	ErrInvalidKeySet                    = jwt.ErrInvalidKeySet
	ErrDeviceCodeGeneration             = errors.New("device code generation failed")
	ErrMalformedResponse                = errors.New("malformed response")
	ErrNotSignedIn                      = errors.New("not signed in")
)

// ProviderError is returned when the authorization callback carries an
// error parameter.
type ProviderError struct {
	Code        string
	Description string
	Uri         string
}

func (e *ProviderError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s: %s", ErrAuthorizationProvider, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", ErrAuthorizationProvider, e.Code, e.Description)
}

// Unwrap supports errors.Is(err, ErrAuthorizationProvider)
func (e *ProviderError) Unwrap() error { return ErrAuthorizationProvider }

// TokenExchangeError is returned for any token endpoint error code which
// doesn't have a dedicated sentinel.
type TokenExchangeError struct {
	Name        string
	Description string
	Uri         string
}

func (e *TokenExchangeError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s: %s", ErrTokenExchange, e.Name)
	}
	return fmt.Sprintf("%s: %s: %s", ErrTokenExchange, e.Name, e.Description)
}

// Unwrap supports errors.Is(err, ErrTokenExchange)
func (e *TokenExchangeError) Unwrap() error { return ErrTokenExchange }

// DeviceCodeGenerationError is returned when the device authorization
// endpoint refuses to issue a device code.
type DeviceCodeGenerationError struct {
	Name        string
	Description string
}

func (e *DeviceCodeGenerationError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("%s: %s", ErrDeviceCodeGeneration, e.Name)
	}
	return fmt.Sprintf("%s: %s: %s", ErrDeviceCodeGeneration, e.Name, e.Description)
}

// Unwrap supports errors.Is(err, ErrDeviceCodeGeneration)
func (e *DeviceCodeGenerationError) Unwrap() error { return ErrDeviceCodeGeneration }

// RFC 8628 section 3.5 error codes.
const (
	errCodeAuthorizationPending = "authorization_pending"
	errCodeSlowDown             = "slow_down"
	errCodeExpiredToken         = "expired_token"
)

var tokenErrorCodes = map[string]error{
	errCodeAuthorizationPending: ErrTokenAuthorizationPending,
	errCodeSlowDown:             ErrTokenSlowDown,
	errCodeExpiredToken:         ErrTokenExpired,
}

// tokenError maps a token endpoint error code to its typed error. Unknown
// codes become a *TokenExchangeError.
func tokenError(code, description, uri string) error {
	if err, ok := tokenErrorCodes[code]; ok {
		if description == "" {
			return err
		}
		return fmt.Errorf("%s: %w", description, err)
	}
	return &TokenExchangeError{Name: code, Description: description, Uri: uri}
}

// IsRetryable reports whether err is a device flow poll-again signal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTokenAuthorizationPending) || errors.Is(err, ErrTokenSlowDown)
}
