package jwt

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// IdentityToken is a decoded OIDC id_token. It only exists for a syntactically
// valid three segment JWT carrying every required claim; NewIdentityToken never
// returns a partially populated token.
type IdentityToken struct {
	Issuer         string
	Subject        string
	Audience       []string
	ExpirationTime time.Time
	IssuedTime     time.Time

	// Email is optional and empty when the claim is absent.
	Email string

	// KeyId and Algorithm come from the JOSE header.
	KeyId     string
	Algorithm string

	raw string
}

// NewIdentityToken decodes the header and claims of raw without verifying its
// signature. See Validator.Validate for verification.
func NewIdentityToken(raw string) (*IdentityToken, error) {
	const op = "jwt.NewIdentityToken"
	if raw == "" {
		return nil, fmt.Errorf("%s: token is empty: %w", op, ErrInvalidParameter)
	}
	if strings.Count(raw, ".") != 2 {
		return nil, fmt.Errorf("%s: token must have three segments: %w", op, ErrMalformedToken)
	}
	claims := gojwt.MapClaims{}
	parsed, parts, err := gojwt.NewParser().ParseUnverified(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedToken, err)
	}
	if _, err := base64.RawURLEncoding.DecodeString(parts[2]); err != nil {
		return nil, fmt.Errorf("%s: signature segment is not base64url: %w", op, ErrMalformedToken)
	}

	t := &IdentityToken{raw: raw}
	if t.Issuer, err = claims.GetIssuer(); err != nil || t.Issuer == "" {
		return nil, missingClaim(op, "iss", err)
	}
	if t.Subject, err = claims.GetSubject(); err != nil || t.Subject == "" {
		return nil, missingClaim(op, "sub", err)
	}
	aud, err := claims.GetAudience()
	if err != nil || len(aud) == 0 {
		return nil, missingClaim(op, "aud", err)
	}
	t.Audience = []string(aud)
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, missingClaim(op, "exp", err)
	}
	t.ExpirationTime = exp.Time.UTC()
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, missingClaim(op, "iat", err)
	}
	t.IssuedTime = iat.Time.UTC()

	if email, ok := claims["email"].(string); ok {
		t.Email = email
	}
	if kid, ok := parsed.Header["kid"].(string); ok {
		t.KeyId = kid
	}
	if alg, ok := parsed.Header["alg"].(string); ok {
		t.Algorithm = alg
	}
	return t, nil
}

func missingClaim(op, name string, err error) error {
	if err != nil && !errors.Is(err, ErrMissingClaim) {
		return fmt.Errorf("%s: invalid %q claim: %w: %w", op, name, ErrMissingClaim, err)
	}
	return fmt.Errorf("%s: %q claim is required: %w", op, name, ErrMissingClaim)
}

// Raw returns the compact serialization the token was decoded from.
func (t *IdentityToken) Raw() string { return t.raw }

// signingInput returns the "header.payload" bytes covered by the signature and
// the decoded signature.
func (t *IdentityToken) signingInput() (string, []byte, error) {
	i := strings.LastIndex(t.raw, ".")
	if i < 0 {
		return "", nil, ErrMalformedToken
	}
	sig, err := base64.RawURLEncoding.DecodeString(t.raw[i+1:])
	if err != nil {
		return "", nil, ErrMalformedToken
	}
	return t.raw[:i], sig, nil
}
