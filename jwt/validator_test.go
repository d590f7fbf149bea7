package jwt

import (
	"strings"
	"testing"
	"time"

	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testIssuedAt = 1671816060
	testExpiry   = 1674408060
	testClientId = "29352915982374239857"
	testIssuer   = "http://localhost:8888"
	testKeyId    = "test-kid"
)

func testClaims() josejwt.Claims {
	return josejwt.Claims{
		Issuer:   testIssuer,
		Subject:  "alice",
		Audience: josejwt.Audience{testClientId},
		Expiry:   josejwt.NewNumericDate(time.Unix(testExpiry, 0)),
		IssuedAt: josejwt.NewNumericDate(time.Unix(testIssuedAt, 0)),
	}
}

func fixedNow(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func TestNewValidator(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		issuer   string
		clientId string
		wantErr  bool
	}{
		{name: "valid", issuer: testIssuer, clientId: testClientId},
		{name: "missing-issuer", clientId: testClientId, wantErr: true},
		{name: "missing-client-id", issuer: testIssuer, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			v, err := NewValidator(tt.issuer, tt.clientId)
			if tt.wantErr {
				require.Error(err)
				assert.ErrorIs(err, ErrInvalidParameter)
				assert.Nil(v)
				return
			}
			require.NoError(err)
			assert.Equal(DefaultExpirationLeeway, v.expirationLeeway)
			assert.Equal(DefaultIssuedAtLeeway, v.issuedAtLeeway)
		})
	}
}

func TestValidator_Validate(t *testing.T) {
	t.Parallel()
	priv := TestGenerateKeys(t)
	other := TestGenerateKeys(t)
	ks := TestKeySet(t, &priv.PublicKey, testKeyId)

	sign := func(t *testing.T, claims josejwt.Claims) *IdentityToken {
		t.Helper()
		tk, err := NewIdentityToken(TestSignJWT(t, priv, testKeyId, claims, nil))
		require.NoError(t, err)
		return tk
	}

	tests := []struct {
		name    string
		token   func(t *testing.T) *IdentityToken
		ks      *KeySet
		now     int64
		want    bool
		wantErr error
	}{
		{
			name:  "valid",
			token: func(t *testing.T) *IdentityToken { return sign(t, testClaims()) },
			ks:    ks,
			now:   testIssuedAt + 50,
			want:  true,
		},
		{
			name:  "not-yet-issued",
			token: func(t *testing.T) *IdentityToken { return sign(t, testClaims()) },
			ks:    ks,
			now:   testIssuedAt - 150000,
		},
		{
			name:  "expired",
			token: func(t *testing.T) *IdentityToken { return sign(t, testClaims()) },
			ks:    ks,
			now:   testExpiry + 1,
		},
		{
			name:  "at-expiry",
			token: func(t *testing.T) *IdentityToken { return sign(t, testClaims()) },
			ks:    ks,
			now:   testExpiry,
			want:  true,
		},
		{
			name: "issuer-mismatch",
			token: func(t *testing.T) *IdentityToken {
				c := testClaims()
				c.Issuer = "https://evil.example.com"
				return sign(t, c)
			},
			ks:  ks,
			now: testIssuedAt + 50,
		},
		{
			name: "audience-mismatch",
			token: func(t *testing.T) *IdentityToken {
				c := testClaims()
				c.Audience = josejwt.Audience{"another-client"}
				return sign(t, c)
			},
			ks:  ks,
			now: testIssuedAt + 50,
		},
		{
			name: "audience-among-several",
			token: func(t *testing.T) *IdentityToken {
				c := testClaims()
				c.Audience = josejwt.Audience{"another-client", testClientId}
				return sign(t, c)
			},
			ks:   ks,
			now:  testIssuedAt + 50,
			want: true,
		},
		{
			name:    "unknown-key-id",
			token:   func(t *testing.T) *IdentityToken { return sign(t, testClaims()) },
			ks:      TestKeySet(t, &priv.PublicKey, "rotated-kid"),
			now:     testIssuedAt + 50,
			wantErr: ErrInvalidKeySet,
		},
		{
			name:    "nil-key-set",
			token:   func(t *testing.T) *IdentityToken { return sign(t, testClaims()) },
			now:     testIssuedAt + 50,
			wantErr: ErrInvalidKeySet,
		},
		{
			name: "expired-before-key-lookup",
			token: func(t *testing.T) *IdentityToken {
				return sign(t, testClaims())
			},
			ks:  TestKeySet(t, &priv.PublicKey, "rotated-kid"),
			now: testExpiry + 1,
		},
		{
			name: "wrong-signing-key",
			token: func(t *testing.T) *IdentityToken {
				tk, err := NewIdentityToken(TestSignJWT(t, other, testKeyId, testClaims(), nil))
				require.NoError(t, err)
				return tk
			},
			ks:  ks,
			now: testIssuedAt + 50,
		},
		{
			name: "tampered-payload",
			token: func(t *testing.T) *IdentityToken {
				tk := sign(t, testClaims())
				forged := sign(t, func() josejwt.Claims { c := testClaims(); c.Subject = "mallory"; return c }())
				// keep the forged header.payload, swap in the genuine signature
				tk.raw = forged.raw[:strings.LastIndex(forged.raw, ".")] + tk.raw[strings.LastIndex(tk.raw, "."):]
				return tk
			},
			ks:  ks,
			now: testIssuedAt + 50,
		},
		{
			name: "malformed-key",
			token: func(t *testing.T) *IdentityToken {
				return sign(t, testClaims())
			},
			ks:  &KeySet{Keys: []Key{{KeyId: testKeyId, KeyType: "RSA", Modulus: "***", Exponent: "AQAB"}}},
			now: testIssuedAt + 50,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			v, err := NewValidator(testIssuer, testClientId, WithNow(fixedNow(tt.now)))
			require.NoError(err)
			got, err := v.Validate(tt.token(t), tt.ks)
			if tt.wantErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErr)
				assert.False(got)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}

	t.Run("nil-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewValidator(testIssuer, testClientId)
		require.NoError(err)
		got, err := v.Validate(nil, ks)
		require.Error(err)
		assert.ErrorIs(err, ErrNilParameter)
		assert.False(got)
	})
}

func TestValidator_Leeway(t *testing.T) {
	t.Parallel()
	priv := TestGenerateKeys(t)
	ks := TestKeySet(t, &priv.PublicKey, testKeyId)
	tk, err := NewIdentityToken(TestSignJWT(t, priv, testKeyId, testClaims(), nil))
	require.NoError(t, err)

	tests := []struct {
		name string
		opts []Option
		now  int64
		want bool
	}{
		{name: "default-iat-leeway", now: testIssuedAt - 60*1000, want: true},
		{name: "beyond-default-iat-leeway", now: testIssuedAt - 60*1000 - 1},
		{name: "zero-iat-leeway", opts: []Option{WithIssuedAtLeeway(0)}, now: testIssuedAt - 1},
		{name: "exp-leeway", opts: []Option{WithExpirationLeeway(1)}, now: testExpiry + 1000, want: true},
		{name: "beyond-exp-leeway", opts: []Option{WithExpirationLeeway(1)}, now: testExpiry + 1001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			v, err := NewValidator(testIssuer, testClientId, append(tt.opts, WithNow(fixedNow(tt.now)))...)
			require.NoError(err)
			got, err := v.Validate(tk, ks)
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

