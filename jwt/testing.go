package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"

	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// TestingT defines the slim interface required by the Test* helpers.
type TestingT interface {
	Errorf(format string, args ...interface{})
	FailNow()
}

// HelperT defines a single function interface for a testing.Helper()
type HelperT interface{ Helper() }

// TestGenerateKeys will generate a test RSA 2048 private key.
func TestGenerateKeys(t TestingT) *rsa.PrivateKey {
	if v, ok := t.(HelperT); ok {
		v.Helper()
	}
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return priv
}

// TestSignJWT will bundle the provided claims into a test RS256 signed JWT
// carrying keyId in its "kid" header.
func TestSignJWT(t TestingT, priv *rsa.PrivateKey, keyId string, claims josejwt.Claims, privateClaims interface{}) string {
	if v, ok := t.(HelperT); ok {
		v.Helper()
	}
	require := require.New(t)
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: priv},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", keyId),
	)
	require.NoError(err)

	builder := josejwt.Signed(sig).Claims(claims)
	if privateClaims != nil {
		builder = builder.Claims(privateClaims)
	}
	raw, err := builder.Serialize()
	require.NoError(err)
	return raw
}

// TestJWKS returns the JWKS document publishing pub under keyId.
func TestJWKS(t TestingT, pub *rsa.PublicKey, keyId string) []byte {
	if v, ok := t.(HelperT); ok {
		v.Helper()
	}
	set := jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				KeyID:     keyId,
				Algorithm: string(jose.RS256),
				Use:       "sig",
			},
		},
	}
	b, err := json.Marshal(set)
	require.NoError(t, err)
	return b
}

// TestKeySet returns a KeySet publishing pub under keyId.
func TestKeySet(t TestingT, pub *rsa.PublicKey, keyId string) *KeySet {
	if v, ok := t.(HelperT); ok {
		v.Helper()
	}
	ks, err := ParseKeySet(TestJWKS(t, pub, keyId))
	require.NoError(t, err)
	return ks
}
