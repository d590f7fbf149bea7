package oidc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/capclient/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeviceFlow(t *testing.T, p *TestProvider, opt ...Option) (*DeviceFlow, *testSleeper) {
	t.Helper()
	s := &testSleeper{}
	f, err := NewDeviceFlow(testTransport(t, p), append([]Option{WithSleep(s.sleep)}, opt...)...)
	require.NoError(t, err)
	return f, s
}

func TestDeviceFlow_FetchDeviceCode(t *testing.T) {
	t.Parallel()
	t.Run("success", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetDeviceCode("dc", "ABCD-EFGH", 900, 3)
		f, _ := testDeviceFlow(t, p)
		assert.Equal(DeviceIdle, f.State())

		before := time.Now()
		d, err := f.FetchDeviceCode(context.Background())
		require.NoError(err)
		assert.Equal(DeviceSecret("dc"), d.DeviceCode)
		assert.Equal("ABCD-EFGH", d.UserCode)
		assert.Equal(p.Addr()+"/device", d.VerificationUri)
		assert.Equal(p.Addr()+"/device?user_code=ABCD-EFGH", d.VerificationUriComplete)
		assert.Equal(3, d.Interval)
		assert.WithinDuration(before.Add(900*time.Second), d.ExpiresAt, 5*time.Second)
		assert.Equal(DeviceCodeIssued, f.State())
		assert.False(d.Expired(time.Now()))
		assert.True(d.Expired(d.ExpiresAt.Add(time.Second)))
	})
	t.Run("default-interval", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetDeviceCode("dc", "ABCD-EFGH", 900, 0)
		f, _ := testDeviceFlow(t, p)
		d, err := f.FetchDeviceCode(context.Background())
		require.NoError(err)
		assert.Equal(DefaultPollInterval, d.Interval)
	})
	t.Run("provider-error", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := StartTestProvider(t)
		p.SetDeviceAuthorizeError("invalid_client")
		f, _ := testDeviceFlow(t, p)
		d, err := f.FetchDeviceCode(context.Background())
		require.Error(err)
		assert.Nil(d)
		var genErr *DeviceCodeGenerationError
		require.True(errors.As(err, &genErr))
		assert.Equal("invalid_client", genErr.Name)
		assert.Equal(DeviceError, f.State())
	})
}

func TestDeviceFlow_SlowDown(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	p.SetDeviceTokenReplies("slow_down", "slow_down", "")
	f, s := testDeviceFlow(t, p)

	d, err := f.FetchDeviceCode(context.Background())
	require.NoError(err)
	assert.Equal(0, f.SlowDownMultiplier())

	b, err := f.FetchAccessToken(context.Background(), d)
	require.NoError(err)
	require.NotNil(b)
	assert.Equal(2, f.SlowDownMultiplier())
	assert.Equal(DeviceComplete, f.State())
	assert.Equal(3, p.DeviceTokenCalls())
	assert.Equal([]time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second}, s.waits)
	for i := 1; i < len(s.waits); i++ {
		assert.Greater(s.waits[i], s.waits[i-1])
	}

	_, err = f.FetchDeviceCode(context.Background())
	require.NoError(err)
	assert.Equal(0, f.SlowDownMultiplier())
	assert.Equal(5*time.Second, f.PollWait(d))
}

func TestDeviceFlow_Pending(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	p.SetDeviceTokenReplies("authorization_pending", "authorization_pending", "")
	store, err := NewTokenStore(keystore.NewMemory())
	require.NoError(err)
	var observed *CredentialBundle
	f, s := testDeviceFlow(t, p,
		WithTokenStore(store),
		WithObserver(TokenObserverFunc(func(b *CredentialBundle) { observed = b })),
	)

	d, err := f.FetchDeviceCode(context.Background())
	require.NoError(err)

	_, err = f.PollOnce(context.Background(), d)
	require.Error(err)
	assert.True(IsRetryable(err))
	assert.True(errors.Is(err, ErrTokenAuthorizationPending))
	assert.Equal(DevicePolling, f.State())

	b, err := f.FetchAccessToken(context.Background(), d)
	require.NoError(err)
	assert.Equal(0, f.SlowDownMultiplier())
	assert.Equal([]time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, s.waits)
	assert.Same(b, observed)
	res := store.Load()
	require.Equal(LoadFound, res.Status)
	assert.Equal(b, res.Bundle)
}

func TestDeviceFlow_ExpiredToken(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	p.SetDeviceTokenReplies("authorization_pending", "expired_token", "")
	f, _ := testDeviceFlow(t, p)

	d, err := f.FetchDeviceCode(context.Background())
	require.NoError(err)
	b, err := f.FetchAccessToken(context.Background(), d)
	require.Error(err)
	assert.Nil(b)
	assert.Truef(errors.Is(err, ErrTokenExpired), "wanted \"%s\" but got \"%s\"", ErrTokenExpired, err)
	assert.Equal(2, p.DeviceTokenCalls())
	assert.Equal(DeviceExpired, f.State())
}

func TestDeviceFlow_TerminalError(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	p.SetDeviceTokenReplies("access_denied", "")
	f, _ := testDeviceFlow(t, p)

	d, err := f.FetchDeviceCode(context.Background())
	require.NoError(err)
	_, err = f.FetchAccessToken(context.Background(), d)
	require.Error(err)
	var exchangeErr *TokenExchangeError
	require.True(errors.As(err, &exchangeErr))
	assert.Equal("access_denied", exchangeErr.Name)
	assert.Equal(1, p.DeviceTokenCalls())
	assert.Equal(DeviceError, f.State())
}

func TestDeviceFlow_ValidationFailure(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	p.SetCustomAudience("someone-else")
	notified := false
	f, _ := testDeviceFlow(t, p, WithObserver(TokenObserverFunc(func(*CredentialBundle) { notified = true })))

	d, err := f.FetchDeviceCode(context.Background())
	require.NoError(err)
	_, err = f.FetchAccessToken(context.Background(), d)
	assert.Truef(errors.Is(err, ErrTokenValidationFailed), "wanted \"%s\" but got \"%s\"", ErrTokenValidationFailed, err)
	assert.False(notified)
	assert.Equal(DeviceError, f.State())
}

func TestDeviceFlow_Cancel(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	f, err := NewDeviceFlow(testTransport(t, p))
	require.NoError(err)
	d, err := f.FetchDeviceCode(context.Background())
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	b, err := f.FetchAccessToken(ctx, d)
	require.Error(err)
	assert.Nil(b)
	assert.Truef(errors.Is(err, ErrAuthorizationCancelled), "wanted \"%s\" but got \"%s\"", ErrAuthorizationCancelled, err)
	assert.Less(time.Since(start), time.Duration(d.Interval)*time.Second)
	assert.Equal(0, p.DeviceTokenCalls())
	assert.Equal(DeviceCodeIssued, f.State())
}

func TestDeviceFlow_CancelDuringValidation(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	gate, client := newTestGate(p, KeySetPath)
	c, err := p.NewConfig(testRedirectURL)
	require.NoError(err)
	tr, err := NewTransport(c, WithHTTPClient(client))
	require.NoError(err)
	store, err := NewTokenStore(keystore.NewMemory())
	require.NoError(err)
	s := &testSleeper{}
	f, err := NewDeviceFlow(tr, WithSleep(s.sleep), WithTokenStore(store))
	require.NoError(err)

	d, err := f.FetchDeviceCode(context.Background())
	require.NoError(err)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-gate.entered
		cancel()
	}()
	b, err := f.PollOnce(ctx, d)
	require.Error(err)
	assert.Nil(b)
	assert.Truef(errors.Is(err, ErrAuthorizationCancelled), "wanted \"%s\" but got \"%s\"", ErrAuthorizationCancelled, err)
	assert.Equal(1, p.DeviceTokenCalls())
	assert.Equal(DeviceCodeIssued, f.State())
	assert.Equal(LoadNotFound, store.Load().Status)
}

func TestDeviceFlow_ExpiryEnforced(t *testing.T) {
	t.Parallel()
	p := StartTestProvider(t)
	p.SetDeviceTokenReplies("authorization_pending", "authorization_pending", "authorization_pending")

	t.Run("enforced", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		f, s := testDeviceFlow(t, p, WithDeviceCodeExpiryEnforced())
		d, err := f.FetchDeviceCode(context.Background())
		require.NoError(err)
		d.ExpiresAt = time.Now().Add(-time.Second)
		_, err = f.FetchAccessToken(context.Background(), d)
		assert.Truef(errors.Is(err, ErrTokenExpired), "wanted \"%s\" but got \"%s\"", ErrTokenExpired, err)
		assert.Empty(s.waits)
		assert.Equal(DeviceExpired, f.State())
	})
	t.Run("caller-driven", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		f, _ := testDeviceFlow(t, p)
		d, err := f.FetchDeviceCode(context.Background())
		require.NoError(err)
		d.ExpiresAt = time.Now().Add(-time.Second)
		_, err = f.PollOnce(context.Background(), d)
		assert.True(IsRetryable(err))
	})
}

func TestDeviceFlow_PollOnceNil(t *testing.T) {
	t.Parallel()
	p := StartTestProvider(t)
	f, _ := testDeviceFlow(t, p)
	_, err := f.PollOnce(context.Background(), nil)
	assert.True(t, errors.Is(err, ErrNilParameter))
}

func Test_sleepContext(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.NoError(sleepContext(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(sleepContext(ctx, time.Hour), context.Canceled)
}

func TestDeviceFlowState_String(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Equal("idle", DeviceIdle.String())
	assert.Equal("polling", DevicePolling.String())
	assert.Equal("expired", DeviceExpired.String())
}
