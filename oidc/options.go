package oidc

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/capclient/keystore"
	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithLogger provides an optional logger for: Transport, TokenStore,
// AuthCodeFlow, DeviceFlow, RefreshFlow and Manager.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *transportOptions:
			v.withLogger = l
		case *tokenStoreOptions:
			v.withLogger = l
		case *flowOptions:
			v.withLogger = l
		case *managerOptions:
			v.withLogger = l
		}
	}
}

// WithHTTPClient provides an optional http client for: Transport and Manager.
// By default one is built from the Config.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *transportOptions:
			v.withHTTPClient = c
		case *managerOptions:
			v.withHTTPClient = c
		}
	}
}

// WithIssuer provides an optional expected issuer for: Config. It defaults to
// the ApiBaseURL.
func WithIssuer(iss string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withIssuer = iss
		}
	}
}

// WithProviderCA provides an optional CA certificate PEM for: Config.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withProviderCA = cert
		}
	}
}

// WithScopes provides optional scopes for: Config. The "openid" scope is
// always requested.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withScopes = append(v.withScopes, scopes...)
		}
	}
}

// WithClientInfo provides the optional SDK and device identifiers sent as
// request headers for: Config.
func WithClientInfo(info ClientInfo) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withClientInfo = info
		}
	}
}

// WithHTTPTimeout provides an optional http client timeout for: Config.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withHTTPTimeout = d
		}
	}
}

// WithExpirationLeeway provides an optional leeway for the id_token exp claim
// for: Config.
func WithExpirationLeeway(leeway int64) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withExpirationLeeway = leeway
		}
	}
}

// WithIssuedAtLeeway provides an optional leeway for the id_token iat claim
// for: Config.
func WithIssuedAtLeeway(leeway int64) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withIssuedAtLeeway = leeway
		}
	}
}

// WithNow provides an optional clock for: Config.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if v, ok := o.(*configOptions); ok {
			v.withNowFunc = now
		}
	}
}

// WithTokenStore provides an optional TokenStore for: AuthCodeFlow, DeviceFlow
// and RefreshFlow. Issued credentials are persisted to it before they are
// returned.
func WithTokenStore(s *TokenStore) Option {
	return func(o interface{}) {
		if v, ok := o.(*flowOptions); ok {
			v.withTokenStore = s
		}
	}
}

// WithObserver provides an optional TokenObserver for: AuthCodeFlow,
// DeviceFlow, RefreshFlow and Manager.
func WithObserver(ob TokenObserver) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *flowOptions:
			v.withObserver = ob
		case *managerOptions:
			v.withObserver = ob
		}
	}
}

// WithSleep provides an optional context aware sleep for: DeviceFlow and
// Manager. It must return the context's error if the context is done before
// the duration elapses.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *flowOptions:
			v.withSleep = sleep
		case *managerOptions:
			v.withSleep = sleep
		}
	}
}

// WithDeviceCodeExpiryEnforced stops device polling with ErrTokenExpired once
// the device code's ExpiresAt has passed, for: DeviceFlow and Manager.
func WithDeviceCodeExpiryEnforced() Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *flowOptions:
			v.withDeviceCodeExpiryEnforced = true
		case *managerOptions:
			v.withDeviceCodeExpiryEnforced = true
		}
	}
}

// WithVerifierLength provides an optional number of random bytes for:
// NewCodeVerifier.
func WithVerifierLength(n int) Option {
	return func(o interface{}) {
		if v, ok := o.(*verifierOptions); ok {
			v.withVerifierLength = n
		}
	}
}

// WithStoreKey provides an optional service and account for: TokenStore and
// Manager.
func WithStoreKey(service, account string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *tokenStoreOptions:
			v.withService, v.withAccount = service, account
		case *managerOptions:
			v.withStoreOpts = append(v.withStoreOpts, WithStoreKey(service, account))
		}
	}
}

// WithKeystore provides an optional Keystore for: Manager. It defaults to an
// in-memory keystore.
func WithKeystore(ks keystore.Keystore) Option {
	return func(o interface{}) {
		if v, ok := o.(*managerOptions); ok {
			v.withKeystore = ks
		}
	}
}

// WithWebAuthSession provides the interactive browser session for: Manager.
func WithWebAuthSession(s WebAuthSession) Option {
	return func(o interface{}) {
		if v, ok := o.(*managerOptions); ok {
			v.withWebAuthSession = s
		}
	}
}
