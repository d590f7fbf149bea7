package oidc

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/hashicorp/capclient/keystore"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestApplyOpts(t *testing.T) {
	// Let's make sure we don't panic on nil options
	anonymousOpts := struct {
		Names []string
	}{
		nil,
	}
	ApplyOpts(anonymousOpts, nil)
}

func Test_WithLogger(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	l := hclog.New(&hclog.LoggerOptions{Name: "test"})

	tOpts := getTransportOpts(WithLogger(l))
	assert.Equal(l, tOpts.withLogger)
	sOpts := getTokenStoreOpts(WithLogger(l))
	assert.Equal(l, sOpts.withLogger)
	fOpts := getFlowOpts(WithLogger(l))
	assert.Equal(l, fOpts.withLogger)
	mOpts := getManagerOpts(WithLogger(l))
	assert.Equal(l, mOpts.withLogger)

	// nil loggers keep the default
	fOpts = getFlowOpts(WithLogger(nil))
	assert.NotNil(fOpts.withLogger)
}

func Test_WithHTTPClient(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	c := &http.Client{}
	assert.Equal(c, getTransportOpts(WithHTTPClient(c)).withHTTPClient)
	assert.Equal(c, getManagerOpts(WithHTTPClient(c)).withHTTPClient)
	assert.Nil(getTransportOpts().withHTTPClient)
}

func Test_ConfigOptions(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	now := func() time.Time { return time.Unix(1, 0) }
	info := ClientInfo{SDKName: "capclient-go", SDKVersion: "0.1.0"}
	opts := getConfigOpts(
		WithIssuer("https://issuer.example.com"),
		WithProviderCA("ca"),
		WithScopes("email"),
		WithScopes("profile", "offline_access"),
		WithClientInfo(info),
		WithHTTPTimeout(5*time.Second),
		WithExpirationLeeway(2),
		WithIssuedAtLeeway(3),
		WithNow(now),
	)
	assert.Equal("https://issuer.example.com", opts.withIssuer)
	assert.Equal("ca", opts.withProviderCA)
	assert.Equal([]string{"email", "profile", "offline_access"}, opts.withScopes)
	assert.Equal(info, opts.withClientInfo)
	assert.Equal(5*time.Second, opts.withHTTPTimeout)
	assert.Equal(int64(2), opts.withExpirationLeeway)
	assert.Equal(int64(3), opts.withIssuedAtLeeway)
	assert.Equal(time.Unix(1, 0), opts.withNowFunc())

	defaults := getConfigOpts()
	assert.Equal(configDefaults(), defaults)
}

func Test_FlowOptions(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	store, err := NewTokenStore(keystore.NewMemory())
	assert.NoError(err)
	var observed int
	ob := TokenObserverFunc(func(*CredentialBundle) { observed++ })
	sleep := func(context.Context, time.Duration) error { return nil }

	opts := getFlowOpts(
		WithTokenStore(store),
		WithObserver(ob),
		WithSleep(sleep),
		WithDeviceCodeExpiryEnforced(),
	)
	assert.Equal(store, opts.withTokenStore)
	assert.True(opts.withDeviceCodeExpiryEnforced)
	assert.NoError(opts.withSleep(context.Background(), time.Hour))
	opts.withObserver.OnTokenUpdate(nil)
	assert.Equal(1, observed)

	defaults := getFlowOpts()
	assert.Nil(defaults.withTokenStore)
	assert.Nil(defaults.withObserver)
	assert.False(defaults.withDeviceCodeExpiryEnforced)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(defaults.withSleep(ctx, time.Hour), context.Canceled)
}

func Test_ManagerOptions(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	ks := keystore.NewMemory()
	session := &testSession{}
	opts := getManagerOpts(
		WithKeystore(ks),
		WithStoreKey("svc", "acct"),
		WithWebAuthSession(session),
		WithDeviceCodeExpiryEnforced(),
	)
	assert.Equal(ks, opts.withKeystore)
	assert.Len(opts.withStoreOpts, 1)
	assert.Equal(session, opts.withWebAuthSession)
	assert.True(opts.withDeviceCodeExpiryEnforced)

	sOpts := getTokenStoreOpts(opts.withStoreOpts...)
	assert.Equal("svc", sOpts.withService)
	assert.Equal("acct", sOpts.withAccount)

	// an in-memory keystore is used by default
	assert.NotNil(getManagerOpts().withKeystore)
}

func Test_WithVerifierLength(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Equal(DefaultVerifierLength, getVerifierOpts().withVerifierLength)
	assert.Equal(64, getVerifierOpts(WithVerifierLength(64)).withVerifierLength)
}
