package jwt

import (
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/capclient/internal/strutils"
)

const (
	// DefaultExpirationLeeway is the default leeway for the "exp" claim.
	DefaultExpirationLeeway int64 = 0

	// DefaultIssuedAtLeeway is the default leeway for the "iat" claim.
	DefaultIssuedAtLeeway int64 = 60

	// leewayScale is applied to both leeways before they're compared with
	// epoch seconds.
	leewayScale int64 = 1000
)

// Validator checks identity tokens issued for a single client by a single
// issuer. Only RS256 signatures are supported.
type Validator struct {
	issuer           string
	clientId         string
	expirationLeeway int64
	issuedAtLeeway   int64
	now              func() time.Time
}

// NewValidator creates a Validator for tokens with the expected issuer and
// audience (clientId).
// Supported options:
//
//	WithExpirationLeeway
//	WithIssuedAtLeeway
//	WithNow
func NewValidator(issuer, clientId string, opt ...Option) (*Validator, error) {
	const op = "jwt.NewValidator"
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	if clientId == "" {
		return nil, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	opts := getValidatorOpts(opt...)
	return &Validator{
		issuer:           issuer,
		clientId:         clientId,
		expirationLeeway: opts.withExpirationLeeway,
		issuedAtLeeway:   opts.withIssuedAtLeeway,
		now:              opts.withNow,
	}, nil
}

// Validate reports whether t is valid, checking in order: issuer, audience,
// expiration, issued-at, and finally the RS256 signature against the key in
// ks matching the token's key id. The first failing check returns false
// with a nil error.
//
// The one exception is a key set with no key matching the token's key id,
// which returns ErrInvalidKeySet since it indicates a mismatch between the
// validator and the server rather than a bad token.
//
// Both leeways are multiplied by 1000 before being compared with epoch
// seconds, so any non-zero leeway is far wider than its nominal value.
func (v *Validator) Validate(t *IdentityToken, ks *KeySet) (bool, error) {
	const op = "Validator.Validate"
	if t == nil {
		return false, fmt.Errorf("%s: identity token is nil: %w", op, ErrNilParameter)
	}
	if t.Issuer != v.issuer {
		return false, nil
	}
	if !strutils.StrListContains(t.Audience, v.clientId) {
		return false, nil
	}
	now := v.now().Unix()
	if now > t.ExpirationTime.Unix()+v.expirationLeeway*leewayScale {
		return false, nil
	}
	if now < t.IssuedTime.Unix()-v.issuedAtLeeway*leewayScale {
		return false, nil
	}

	key, ok := ks.Find(t.KeyId)
	if !ok {
		return false, fmt.Errorf("%s: no key matches key id %q: %w", op, t.KeyId, ErrInvalidKeySet)
	}
	if t.Algorithm != gojwt.SigningMethodRS256.Alg() {
		return false, nil
	}
	pub, err := key.PublicKey()
	if err != nil {
		return false, nil
	}
	signingInput, sig, err := t.signingInput()
	if err != nil {
		return false, nil
	}
	if err := gojwt.SigningMethodRS256.Verify(signingInput, sig, pub); err != nil {
		return false, nil
	}
	return true, nil
}
