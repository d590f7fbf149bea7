package oidc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/capclient/jwt"
	"golang.org/x/oauth2"
)

// expirySkew is subtracted from an access token's expiry when deciding
// whether it's expired.
const expirySkew = 10 * time.Second

// CredentialBundle is the set of tokens issued by one successful code
// exchange, device authorization or refresh. A bundle is replaced wholesale,
// never patched.
type CredentialBundle struct {
	// IdToken is the decoded IdTokenRaw. It's nil when IdTokenRaw could not be
	// decoded.
	IdToken    *jwt.IdentityToken
	IdTokenRaw IdToken

	AccessToken         AccessToken
	TokenType           string
	AccessTokenLifetime time.Duration

	// RefreshToken and RefreshTokenLifetime are optional and empty when the
	// provider didn't issue a refresh token.
	RefreshToken         RefreshToken
	RefreshTokenLifetime time.Duration

	IssuedAt time.Time
}

// IdTokenExpiry returns the id_token's exp claim.
func (b *CredentialBundle) IdTokenExpiry() (time.Time, bool) {
	if b == nil || b.IdToken == nil {
		return time.Time{}, false
	}
	return b.IdToken.ExpirationTime, true
}

// AccessTokenExpiry returns IssuedAt plus the access token lifetime. The
// lifetime is always issued, so a zero lifetime expires at IssuedAt.
func (b *CredentialBundle) AccessTokenExpiry() (time.Time, bool) {
	if b == nil {
		return time.Time{}, false
	}
	return b.IssuedAt.Add(b.AccessTokenLifetime), true
}

// RefreshTokenExpiry returns IssuedAt plus the refresh token lifetime.
func (b *CredentialBundle) RefreshTokenExpiry() (time.Time, bool) {
	if b == nil || b.RefreshTokenLifetime == 0 {
		return time.Time{}, false
	}
	return b.IssuedAt.Add(b.RefreshTokenLifetime), true
}

// Expired reports whether the access token is expired, allowing for a 10
// second skew. A zero access token lifetime is expired on issue.
func (b *CredentialBundle) Expired() bool {
	return b.expiredAt(time.Now())
}

func (b *CredentialBundle) expiredAt(now time.Time) bool {
	exp, ok := b.AccessTokenExpiry()
	if !ok {
		return false
	}
	return exp.Round(0).Before(now.Add(expirySkew))
}

// Valid reports whether the bundle has an unexpired access token.
func (b *CredentialBundle) Valid() bool {
	if b == nil || b.AccessToken == "" {
		return false
	}
	return !b.Expired()
}

// CanRefresh reports whether the bundle carries an unexpired refresh token.
func (b *CredentialBundle) CanRefresh(now time.Time) bool {
	if b == nil || b.RefreshToken == "" {
		return false
	}
	exp, ok := b.RefreshTokenExpiry()
	return !ok || now.Before(exp)
}

// Token converts the bundle to an *oauth2.Token carrying the raw id_token as
// the "id_token" extra.
func (b *CredentialBundle) Token() *oauth2.Token {
	if b == nil {
		return nil
	}
	tk := &oauth2.Token{
		AccessToken:  string(b.AccessToken),
		TokenType:    b.TokenType,
		RefreshToken: string(b.RefreshToken),
	}
	if exp, ok := b.AccessTokenExpiry(); ok {
		tk.Expiry = exp
	}
	return tk.WithExtra(map[string]interface{}{"id_token": string(b.IdTokenRaw)})
}

// storedCredential is the persisted form of a CredentialBundle. The token
// types redact themselves when marshaled, so plain strings are used here.
type storedCredential struct {
	IdToken              string    `json:"id_token"`
	AccessToken          string    `json:"access_token"`
	TokenType            string    `json:"token_type"`
	AccessTokenLifetime  int64     `json:"access_token_lifetime"`
	RefreshToken         string    `json:"refresh_token,omitempty"`
	RefreshTokenLifetime int64     `json:"refresh_token_lifetime,omitempty"`
	IssuedAt             time.Time `json:"issued_at"`
}

func marshalBundle(b *CredentialBundle) ([]byte, error) {
	const op = "oidc.marshalBundle"
	if b == nil {
		return nil, fmt.Errorf("%s: missing bundle: %w", op, ErrNilParameter)
	}
	return json.Marshal(storedCredential{
		IdToken:              string(b.IdTokenRaw),
		AccessToken:          string(b.AccessToken),
		TokenType:            b.TokenType,
		AccessTokenLifetime:  int64(b.AccessTokenLifetime / time.Second),
		RefreshToken:         string(b.RefreshToken),
		RefreshTokenLifetime: int64(b.RefreshTokenLifetime / time.Second),
		IssuedAt:             b.IssuedAt.UTC(),
	})
}

// unmarshalBundle fails closed: any decode problem is an error and no partial
// bundle is returned. A stored id_token which no longer decodes leaves
// IdToken nil.
func unmarshalBundle(data []byte) (*CredentialBundle, error) {
	const op = "oidc.unmarshalBundle"
	var s storedCredential
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if s.AccessToken == "" || s.IdToken == "" {
		return nil, fmt.Errorf("%s: missing token: %w", op, ErrMalformedResponse)
	}
	b := &CredentialBundle{
		IdTokenRaw:           IdToken(s.IdToken),
		AccessToken:          AccessToken(s.AccessToken),
		TokenType:            s.TokenType,
		AccessTokenLifetime:  time.Duration(s.AccessTokenLifetime) * time.Second,
		RefreshToken:         RefreshToken(s.RefreshToken),
		RefreshTokenLifetime: time.Duration(s.RefreshTokenLifetime) * time.Second,
		IssuedAt:             s.IssuedAt.UTC(),
	}
	if idt, err := jwt.NewIdentityToken(s.IdToken); err == nil {
		b.IdToken = idt
	}
	return b, nil
}
