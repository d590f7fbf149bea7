package oidc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/capclient/keystore"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Status is the Manager's sign in status.
type Status int

const (
	StatusSignedOut Status = iota
	StatusSigningIn
	StatusAwaitingDevice
	StatusRefreshing
	StatusSignedIn
)

func (s Status) String() string {
	switch s {
	case StatusSigningIn:
		return "signing-in"
	case StatusAwaitingDevice:
		return "awaiting-device"
	case StatusRefreshing:
		return "refreshing"
	case StatusSignedIn:
		return "signed-in"
	default:
		return "signed-out"
	}
}

// State is a snapshot of the Manager's observable state.
type State struct {
	Status Status
	Bundle *CredentialBundle
}

// Manager owns the current credentials and composes the sign in, device,
// refresh and persistence components for the host application. A Manager is
// safe for concurrent use; its state has a single writer at a time.
//
// SignOut wins over flows already running: credentials issued by a flow that
// started before the latest SignOut are discarded and the flow returns
// ErrAuthorizationCancelled.
type Manager struct {
	config    *Config
	transport *Transport
	store     *TokenStore
	authCode  *AuthCodeFlow
	device    *DeviceFlow
	refresh   *RefreshFlow
	observer  TokenObserver
	logger    hclog.Logger

	refreshGroup singleflight.Group

	// commitMu orders credential writes against SignOut. generation counts
	// sign outs.
	commitMu   sync.Mutex
	generation uint64

	mu      sync.RWMutex
	state   State
	subs    map[int]chan State
	nextSub int
}

var _ oauth2.TokenSource = (*Manager)(nil)

// NewManager creates a Manager and restores any persisted credentials. A
// corrupt persisted bundle is logged and deleted.
//
// Supported options: WithLogger, WithKeystore, WithStoreKey, WithHTTPClient,
// WithWebAuthSession, WithObserver, WithSleep, WithDeviceCodeExpiryEnforced
func NewManager(c *Config, opt ...Option) (*Manager, error) {
	const op = "NewManager"
	opts := getManagerOpts(opt...)
	logger := opts.withLogger.Named("manager")

	t, err := NewTransport(c, WithLogger(opts.withLogger), WithHTTPClient(opts.withHTTPClient))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	store, err := NewTokenStore(opts.withKeystore, append([]Option{WithLogger(opts.withLogger)}, opts.withStoreOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m := &Manager{
		config:    c,
		transport: t,
		store:     store,
		observer:  opts.withObserver,
		logger:    logger,
		subs:      map[int]chan State{},
	}
	flowOpts := []Option{
		WithLogger(opts.withLogger),
		withCommit(m.commit),
		WithSleep(opts.withSleep),
	}
	if opts.withDeviceCodeExpiryEnforced {
		flowOpts = append(flowOpts, WithDeviceCodeExpiryEnforced())
	}
	if opts.withWebAuthSession != nil {
		if m.authCode, err = NewAuthCodeFlow(t, opts.withWebAuthSession, flowOpts...); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	if m.device, err = NewDeviceFlow(t, flowOpts...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if m.refresh, err = NewRefreshFlow(t, flowOpts...); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	switch res := store.Load(); res.Status {
	case LoadFound:
		m.state = State{Status: StatusSignedIn, Bundle: res.Bundle}
		logger.Debug("restored credentials")
	case LoadCorrupt:
		logger.Warn("discarding corrupt persisted credentials", "error", res.Err)
		if err := store.Delete(); err != nil {
			logger.Error("unable to delete corrupt credentials", "error", err)
		}
	}
	return m, nil
}

type generationKey struct{}

// flowContext tags ctx with the current sign out generation. Flows must run
// with a tagged ctx for their credentials to be committed.
func (m *Manager) flowContext(ctx context.Context) context.Context {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	return context.WithValue(ctx, generationKey{}, m.generation)
}

// commit runs after a flow has validated b and before the flow returns it. It
// persists b and makes it current unless a SignOut happened since the flow
// started.
func (m *Manager) commit(ctx context.Context, b *CredentialBundle) error {
	const op = "Manager.commit"
	gen, ok := ctx.Value(generationKey{}).(uint64)
	m.commitMu.Lock()
	if !ok || gen != m.generation {
		m.commitMu.Unlock()
		m.logger.Debug("discarding credentials from a flow started before sign out")
		return fmt.Errorf("%s: signed out during the flow: %w", op, ErrAuthorizationCancelled)
	}
	if err := m.store.Save(b); err != nil {
		m.commitMu.Unlock()
		return fmt.Errorf("%s: %w", op, err)
	}
	m.mu.Lock()
	m.state = State{Status: StatusSignedIn, Bundle: b}
	m.broadcastLocked()
	m.mu.Unlock()
	m.commitMu.Unlock()

	if m.observer != nil {
		m.observer.OnTokenUpdate(b)
	}
	return nil
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Status = s
	m.broadcastLocked()
}

// settle returns the status to SignedIn or SignedOut after a flow ended
// without issuing credentials.
func (m *Manager) settle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.state.Bundle != nil:
		m.state.Status = StatusSignedIn
	default:
		m.state.Status = StatusSignedOut
	}
	m.broadcastLocked()
}

func (m *Manager) broadcastLocked() {
	s := m.state
	for _, ch := range m.subs {
		select {
		case ch <- s:
		default:
			// replace the unread state with the latest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// State returns a snapshot of the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Current returns the current credentials or nil when signed out.
func (m *Manager) Current() *CredentialBundle {
	return m.State().Bundle
}

// Subscribe returns a channel receiving every state change. The channel holds
// only the latest unread state. The returned func unsubscribes and closes the
// channel.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan State, 1)
	m.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// DeviceFlow returns the Manager's device flow, for inspecting its state.
func (m *Manager) DeviceFlow() *DeviceFlow { return m.device }

// SignIn runs the interactive authorization code sign in. It requires
// WithWebAuthSession.
func (m *Manager) SignIn(ctx context.Context) (*CredentialBundle, error) {
	const op = "Manager.SignIn"
	if m.authCode == nil {
		return nil, fmt.Errorf("%s: no web auth session configured: %w", op, ErrConfigurationMissing)
	}
	ctx = m.flowContext(ctx)
	m.setStatus(StatusSigningIn)
	b, err := m.authCode.SignIn(ctx)
	if err != nil {
		m.settle()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.logger.Info("signed in", "subject", b.IdToken.Subject)
	return b, nil
}

// StartDeviceSignIn fetches a device code for the user to approve on another
// device. Complete the sign in with CompleteDeviceSignIn.
func (m *Manager) StartDeviceSignIn(ctx context.Context) (*DeviceCode, error) {
	const op = "Manager.StartDeviceSignIn"
	m.setStatus(StatusAwaitingDevice)
	d, err := m.device.FetchDeviceCode(ctx)
	if err != nil {
		m.settle()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// CompleteDeviceSignIn polls until d is approved, expires, ctx is cancelled
// or a terminal error occurs.
func (m *Manager) CompleteDeviceSignIn(ctx context.Context, d *DeviceCode) (*CredentialBundle, error) {
	const op = "Manager.CompleteDeviceSignIn"
	ctx = m.flowContext(ctx)
	m.setStatus(StatusAwaitingDevice)
	b, err := m.device.FetchAccessToken(ctx, d)
	if err != nil {
		m.settle()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	m.logger.Info("signed in with device", "subject", b.IdToken.Subject)
	return b, nil
}

// Refresh replaces the current credentials using their refresh token.
// Concurrent calls share one request. The shared request ignores the
// cancellation of any one caller and is bounded by the HTTP client's
// timeout; a caller whose ctx is done stops waiting with
// ErrAuthorizationCancelled.
func (m *Manager) Refresh(ctx context.Context) (*CredentialBundle, error) {
	const op = "Manager.Refresh"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrAuthorizationCancelled)
	}
	shared := context.WithoutCancel(ctx)
	ch := m.refreshGroup.DoChan("refresh", func() (interface{}, error) {
		fctx := m.flowContext(shared)
		cur := m.Current()
		if cur == nil || cur.RefreshToken == "" {
			return nil, ErrNotSignedIn
		}
		m.setStatus(StatusRefreshing)
		b, err := m.refresh.Refresh(fctx, cur.RefreshToken)
		if err != nil {
			m.settle()
			return nil, err
		}
		return b, nil
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %s: %w", op, ctx.Err(), ErrAuthorizationCancelled)
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%s: %w", op, res.Err)
		}
		return res.Val.(*CredentialBundle), nil
	}
}

// SignOut deletes the persisted credentials and clears the current state.
// Flows still running when SignOut is called can't sign back in.
func (m *Manager) SignOut() error {
	const op = "Manager.SignOut"
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	m.generation++
	if err := m.store.Delete(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m.mu.Lock()
	m.state = State{Status: StatusSignedOut}
	m.broadcastLocked()
	m.mu.Unlock()
	m.logger.Info("signed out")
	return nil
}

// Token implements oauth2.TokenSource. An expired access token is refreshed
// when a usable refresh token exists.
func (m *Manager) Token() (*oauth2.Token, error) {
	const op = "Manager.Token"
	cur := m.Current()
	if cur == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrNotSignedIn)
	}
	now := m.config.Now()
	if !cur.expiredAt(now) {
		return cur.Token(), nil
	}
	if !cur.CanRefresh(now) {
		return nil, fmt.Errorf("%s: access token expired and no usable refresh token: %w", op, ErrTokenExpired)
	}
	b, err := m.Refresh(context.Background())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b.Token(), nil
}

// Client returns an HTTP client that sends the current access token with
// every request, refreshing it through Token when it has expired. Requests go
// through the Manager's HTTP client. The returned client caches a token until
// it expires, so create a new one after SignOut.
func (m *Manager) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(HttpClientContext(ctx, m.transport.client), m)
}

// managerOptions is the set of available options for NewManager
type managerOptions struct {
	withLogger                   hclog.Logger
	withKeystore                 keystore.Keystore
	withStoreOpts                []Option
	withHTTPClient               *http.Client
	withWebAuthSession           WebAuthSession
	withObserver                 TokenObserver
	withSleep                    func(ctx context.Context, d time.Duration) error
	withDeviceCodeExpiryEnforced bool
}

func managerDefaults() managerOptions {
	return managerOptions{
		withLogger: hclog.NewNullLogger(),
		withSleep:  sleepContext,
	}
}

func getManagerOpts(opt ...Option) managerOptions {
	opts := managerDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withKeystore == nil {
		opts.withKeystore = keystore.NewMemory()
	}
	return opts
}
