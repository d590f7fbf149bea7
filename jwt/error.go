package jwt

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")

	// ErrMalformedToken is returned when a raw token isn't a well formed
	// three segment JWT.
	ErrMalformedToken = errors.New("malformed token")

	// ErrMissingClaim is returned when a required identity token claim is
	// absent.
	ErrMissingClaim = errors.New("missing required claim")

	// ErrInvalidKeySet is returned when the key set has no key matching the
	// token's key id. It signals a validator/server mismatch rather than a bad
	// token.
	ErrInvalidKeySet = errors.New("invalid key set")

	ErrMalformedKey = errors.New("malformed key")
)
