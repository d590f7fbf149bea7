package oidc

import (
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/capclient/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testBundle(t *testing.T, p *TestProvider, withRefresh bool) *CredentialBundle {
	t.Helper()
	raw := p.IdToken()
	idt, err := jwt.NewIdentityToken(raw)
	require.NoError(t, err)
	b := &CredentialBundle{
		IdToken:             idt,
		IdTokenRaw:          IdToken(raw),
		AccessToken:         "access",
		TokenType:           "Bearer",
		AccessTokenLifetime: time.Hour,
		IssuedAt:            time.Now().UTC().Round(0).Truncate(time.Second),
	}
	if withRefresh {
		b.RefreshToken = "refresh"
		b.RefreshTokenLifetime = 24 * time.Hour
	}
	return b
}

func TestCredentialBundle_Expiry(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	p := StartTestProvider(t)
	b := testBundle(t, p, true)

	exp, ok := b.AccessTokenExpiry()
	assert.True(ok)
	assert.Equal(b.IssuedAt.Add(time.Hour), exp)

	exp, ok = b.RefreshTokenExpiry()
	assert.True(ok)
	assert.Equal(b.IssuedAt.Add(24*time.Hour), exp)

	exp, ok = b.IdTokenExpiry()
	assert.True(ok)
	assert.Equal(b.IdToken.ExpirationTime, exp)

	noRefresh := testBundle(t, p, false)
	_, ok = noRefresh.RefreshTokenExpiry()
	assert.False(ok)
	assert.False(noRefresh.CanRefresh(time.Now()))
	assert.True(b.CanRefresh(time.Now()))
	assert.False(b.CanRefresh(b.IssuedAt.Add(25 * time.Hour)))

	zero := testBundle(t, p, false)
	zero.AccessTokenLifetime = 0
	exp, ok = zero.AccessTokenExpiry()
	assert.True(ok)
	assert.Equal(zero.IssuedAt, exp)
	assert.True(zero.Expired())
	assert.False(zero.Token().Valid())

	var nilBundle *CredentialBundle
	_, ok = nilBundle.AccessTokenExpiry()
	assert.False(ok)
	assert.False(nilBundle.Valid())
	assert.Nil(nilBundle.Token())
}

func TestCredentialBundle_Valid(t *testing.T) {
	t.Parallel()
	p := StartTestProvider(t)
	tests := []struct {
		name   string
		modify func(b *CredentialBundle)
		want   bool
	}{
		{name: "valid", modify: func(*CredentialBundle) {}, want: true},
		{name: "no-access-token", modify: func(b *CredentialBundle) { b.AccessToken = "" }},
		{name: "expired", modify: func(b *CredentialBundle) { b.IssuedAt = time.Now().Add(-2 * time.Hour) }},
		{name: "within-skew", modify: func(b *CredentialBundle) { b.IssuedAt = time.Now().Add(-time.Hour + 5*time.Second) }},
		{name: "zero-lifetime", modify: func(b *CredentialBundle) { b.AccessTokenLifetime = 0 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := testBundle(t, p, false)
			tt.modify(b)
			assert.Equal(t, tt.want, b.Valid())
		})
	}
}

func TestCredentialBundle_Token(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	p := StartTestProvider(t)
	b := testBundle(t, p, true)
	tk := b.Token()
	assert.Equal("access", tk.AccessToken)
	assert.Equal("refresh", tk.RefreshToken)
	assert.Equal("Bearer", tk.TokenType)
	assert.Equal(b.IssuedAt.Add(time.Hour), tk.Expiry)
	assert.Equal(string(b.IdTokenRaw), tk.Extra("id_token"))
	assert.True(tk.Valid())
}

func TestCredentialBundle_RoundTrip(t *testing.T) {
	t.Parallel()
	p := StartTestProvider(t)
	for _, withRefresh := range []bool{true, false} {
		withRefresh := withRefresh
		t.Run(fmt.Sprintf("refresh-%t", withRefresh), func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			b := testBundle(t, p, withRefresh)
			data, err := marshalBundle(b)
			require.NoError(err)
			assert.NotContains(string(data), "REDACTED")
			got, err := unmarshalBundle(data)
			require.NoError(err)
			assert.Equal(b, got)
		})
	}
	t.Run("property", func(t *testing.T) {
		raw := p.IdToken()
		idt, err := jwt.NewIdentityToken(raw)
		require.NoError(t, err)
		rapid.Check(t, func(rt *rapid.T) {
			b := &CredentialBundle{
				IdToken:             idt,
				IdTokenRaw:          IdToken(raw),
				AccessToken:         AccessToken(rapid.StringMatching(`[A-Za-z0-9._-]{1,64}`).Draw(rt, "access")),
				TokenType:           rapid.SampledFrom([]string{"Bearer", "DPoP", ""}).Draw(rt, "type"),
				AccessTokenLifetime: time.Duration(rapid.Int64Range(0, 1<<31).Draw(rt, "access_lifetime")) * time.Second,
				IssuedAt:            time.Unix(rapid.Int64Range(0, 1<<34).Draw(rt, "issued_at"), 0).UTC(),
			}
			if rapid.Bool().Draw(rt, "refresh") {
				b.RefreshToken = RefreshToken(rapid.StringMatching(`[A-Za-z0-9._-]{1,64}`).Draw(rt, "refresh_token"))
				b.RefreshTokenLifetime = time.Duration(rapid.Int64Range(1, 1<<31).Draw(rt, "refresh_lifetime")) * time.Second
			}
			data, err := marshalBundle(b)
			if err != nil {
				rt.Fatalf("marshal: %s", err)
			}
			got, err := unmarshalBundle(data)
			if err != nil {
				rt.Fatalf("unmarshal: %s", err)
			}
			if !assert.ObjectsAreEqual(b, got) {
				rt.Fatalf("round trip mismatch:\n%#v\n%#v", b, got)
			}
		})
	})
}

func Test_unmarshalBundle(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		data       string
		wantErr    bool
		wantNilIdt bool
	}{
		{name: "not-json", data: "garbage", wantErr: true},
		{name: "missing-access-token", data: `{"id_token":"a.b.c"}`, wantErr: true},
		{name: "missing-id-token", data: `{"access_token":"at"}`, wantErr: true},
		{name: "undecodable-id-token", data: `{"id_token":"a.b.c","access_token":"at"}`, wantNilIdt: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := unmarshalBundle([]byte(tt.data))
			if tt.wantErr {
				require.Error(err)
				assert.Nil(got)
				return
			}
			require.NoError(err)
			assert.Equal(tt.wantNilIdt, got.IdToken == nil)
		})
	}
}
