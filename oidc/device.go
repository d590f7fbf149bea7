package oidc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultPollInterval is used when the provider declares no usable
	// interval, per RFC 8628 section 3.2.
	DefaultPollInterval = 5

	// slowDownIncrement is added to the poll interval for every slow_down
	// response, per RFC 8628 section 3.5.
	slowDownIncrement = 5 * time.Second
)

// DeviceCode is one device authorization attempt. It's replaced, never
// mutated, when a new code is fetched.
type DeviceCode struct {
	UserCode                string
	VerificationUri         string
	VerificationUriComplete string

	// DeviceCode is the secret used to poll. It's never shown to the user.
	DeviceCode DeviceSecret

	// Interval is the minimum number of seconds between polls.
	Interval int

	ExpiresAt time.Time
}

// Expired reports whether the device code is past its ExpiresAt.
func (d *DeviceCode) Expired(now time.Time) bool {
	return d == nil || now.After(d.ExpiresAt)
}

// DeviceFlowState is the state of a DeviceFlow.
type DeviceFlowState int

const (
	DeviceIdle DeviceFlowState = iota
	DeviceCodeIssued
	DevicePolling
	DeviceComplete
	DeviceExpired
	DeviceError
)

func (s DeviceFlowState) String() string {
	switch s {
	case DeviceCodeIssued:
		return "device-code-issued"
	case DevicePolling:
		return "polling"
	case DeviceComplete:
		return "complete"
	case DeviceExpired:
		return "expired"
	case DeviceError:
		return "error"
	default:
		return "idle"
	}
}

// DeviceFlow drives the RFC 8628 device authorization grant: it fetches a
// device code and polls the device token endpoint until the user approves,
// the code expires or a terminal error occurs.
//
// Polling stops at a code's ExpiresAt only with WithDeviceCodeExpiryEnforced;
// otherwise the caller stops polling by cancelling the context.
type DeviceFlow struct {
	transport     *Transport
	issuer        *issuer
	sleep         func(ctx context.Context, d time.Duration) error
	enforceExpiry bool
	logger        hclog.Logger

	mu                 sync.Mutex
	slowDownMultiplier int
	state              DeviceFlowState
}

// NewDeviceFlow creates a DeviceFlow.
//
// Supported options: WithLogger, WithTokenStore, WithObserver, WithSleep,
// WithDeviceCodeExpiryEnforced
func NewDeviceFlow(t *Transport, opt ...Option) (*DeviceFlow, error) {
	const op = "NewDeviceFlow"
	opts := getFlowOpts(opt...)
	opts.withLogger = opts.withLogger.Named("device")
	iss, err := newIssuer(t, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if opts.withSleep == nil {
		opts.withSleep = sleepContext
	}
	return &DeviceFlow{
		transport:     t,
		issuer:        iss,
		sleep:         opts.withSleep,
		enforceExpiry: opts.withDeviceCodeExpiryEnforced,
		logger:        opts.withLogger,
	}, nil
}

// State returns the flow's current state.
func (f *DeviceFlow) State() DeviceFlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// SlowDownMultiplier returns the number of slow_down responses received since
// the last FetchDeviceCode.
func (f *DeviceFlow) SlowDownMultiplier() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slowDownMultiplier
}

// PollWait returns how long PollOnce will wait before polling d.
func (f *DeviceFlow) PollWait(d *DeviceCode) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollWait(d)
}

func (f *DeviceFlow) pollWait(d *DeviceCode) time.Duration {
	return time.Duration(d.Interval)*time.Second + time.Duration(f.slowDownMultiplier)*slowDownIncrement
}

func (f *DeviceFlow) setState(s DeviceFlowState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = s
}

// FetchDeviceCode requests a new device code and resets the slow down
// multiplier, so a flow can be reused after an expired or failed attempt.
// Provider errors are returned as a *DeviceCodeGenerationError.
func (f *DeviceFlow) FetchDeviceCode(ctx context.Context) (*DeviceCode, error) {
	const op = "DeviceFlow.FetchDeviceCode"
	f.mu.Lock()
	f.slowDownMultiplier = 0
	f.state = DeviceIdle
	f.mu.Unlock()

	resp, err := f.transport.AuthorizeDevice(ctx)
	if err != nil {
		f.setState(DeviceError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	interval := int(resp.Interval)
	if interval < 1 {
		interval = DefaultPollInterval
	}
	d := &DeviceCode{
		UserCode:                resp.UserCode,
		VerificationUri:         resp.VerificationUri,
		VerificationUriComplete: resp.VerificationUriComplete,
		DeviceCode:              resp.DeviceCode,
		Interval:                interval,
		ExpiresAt:               f.transport.config.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	f.setState(DeviceCodeIssued)
	f.logger.Debug("device code issued", "user_code", d.UserCode, "interval", d.Interval, "expires_at", d.ExpiresAt)
	return d, nil
}

// PollOnce waits the current poll interval and then polls once.
//
// ErrTokenAuthorizationPending and ErrTokenSlowDown mean poll again (see
// IsRetryable). ErrTokenExpired means a new device code must be fetched. Any
// other error is terminal for this attempt. A cancelled ctx returns
// ErrAuthorizationCancelled; when cancelled during the wait no request is
// sent and the flow's state is unchanged.
func (f *DeviceFlow) PollOnce(ctx context.Context, d *DeviceCode) (*CredentialBundle, error) {
	const op = "DeviceFlow.PollOnce"
	if d == nil {
		return nil, fmt.Errorf("%s: missing device code: %w", op, ErrNilParameter)
	}
	if f.enforceExpiry && d.Expired(f.transport.config.Now()) {
		f.setState(DeviceExpired)
		return nil, fmt.Errorf("%s: device code expired at %s: %w", op, d.ExpiresAt, ErrTokenExpired)
	}

	f.mu.Lock()
	wait, prev := f.pollWait(d), f.state
	f.mu.Unlock()

	f.logger.Debug("waiting to poll", "wait", wait)
	if err := f.sleep(ctx, wait); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrAuthorizationCancelled)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrAuthorizationCancelled)
	}

	f.setState(DevicePolling)
	resp, err := f.transport.PollDeviceToken(ctx, d.DeviceCode)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		f.setState(prev)
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrAuthorizationCancelled)
	case errors.Is(err, ErrTokenSlowDown):
		f.mu.Lock()
		f.slowDownMultiplier++
		f.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, ErrTokenAuthorizationPending):
		return nil, fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, ErrTokenExpired):
		f.setState(DeviceExpired)
		return nil, fmt.Errorf("%s: %w", op, err)
	default:
		f.setState(DeviceError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	b, err := f.issuer.complete(ctx, resp)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		f.setState(prev)
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrAuthorizationCancelled)
	case errors.Is(err, ErrAuthorizationCancelled):
		f.setState(prev)
		return nil, fmt.Errorf("%s: %w", op, err)
	default:
		f.setState(DeviceError)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f.setState(DeviceComplete)
	return b, nil
}

// FetchAccessToken polls until the device is authorized or a terminal error
// occurs. Pending and slow down replies never reach the caller.
func (f *DeviceFlow) FetchAccessToken(ctx context.Context, d *DeviceCode) (*CredentialBundle, error) {
	const op = "DeviceFlow.FetchAccessToken"
	for {
		b, err := f.PollOnce(ctx, d)
		switch {
		case err == nil:
			return b, nil
		case IsRetryable(err):
			f.logger.Debug("poll again", "reason", err)
			continue
		default:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
}
