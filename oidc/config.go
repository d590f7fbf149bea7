package oidc

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/capclient/internal/strutils"
	"github.com/hashicorp/capclient/jwt"
	sdkHttp "github.com/hashicorp/capclient/sdk/http"
	"github.com/hashicorp/go-multierror"
)

// Endpoint paths relative to Config.ApiBaseURL and Config.AuthorizationBaseURL.
const (
	TokenPath           = "/v1/api/token"
	DeviceAuthorizePath = "/v1/api/authorize-device"
	DeviceTokenPath     = "/v1/api/device-token"
	KeySetPath          = "/.well-known/jwks"
	AuthorizePath       = "/authorize"
)

// DefaultHTTPTimeout is the client timeout used when none is configured.
const DefaultHTTPTimeout = 30 * time.Second

// ClientInfo identifies the host application's SDK and device. It's sent with
// every request and is supplied by the host app, never computed here.
type ClientInfo struct {
	SDKName         string
	SDKVersion      string
	Platform        string
	PlatformVersion string
	DeviceModel     string
}

// Config represents the configuration for the identity provider's client.
// Values are already resolved by the host application.
type Config struct {
	// ClientId is the application's client id issued by the provider.
	ClientId string

	// AuthorizationBaseURL is the base of the interactive authorization
	// endpoint (AuthorizePath is appended).
	AuthorizationBaseURL string

	// ApiBaseURL is the base of the token, device and key set endpoints.
	ApiBaseURL string

	// RedirectURL is the registered redirect URI. Its scheme is the callback
	// scheme the web authentication session is bound to.
	RedirectURL string

	// Scopes is the list of additional requested scopes. "openid" is always
	// requested.
	Scopes []string

	// Issuer is the expected id_token issuer. It defaults to ApiBaseURL.
	Issuer string

	// ProviderCA is an optional CA certificate PEM to trust when connecting to
	// the provider.
	ProviderCA string

	ClientInfo ClientInfo

	// ExpirationLeeway and IssuedAtLeeway are passed to the id_token
	// validator, see jwt.WithExpirationLeeway.
	ExpirationLeeway int64
	IssuedAtLeeway   int64

	HTTPTimeout time.Duration

	// NowFunc is a time func that returns the current time.
	NowFunc func() time.Time
}

// NewConfig composes a new config for the identity provider's client.
//
// Supported options: WithIssuer, WithProviderCA, WithScopes, WithClientInfo,
// WithHTTPTimeout, WithExpirationLeeway, WithIssuedAtLeeway, WithNow
func NewConfig(clientId, authorizationBaseURL, apiBaseURL, redirectURL string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ClientId:             clientId,
		AuthorizationBaseURL: strings.TrimSuffix(authorizationBaseURL, "/"),
		ApiBaseURL:           strings.TrimSuffix(apiBaseURL, "/"),
		RedirectURL:          redirectURL,
		Scopes:               opts.withScopes,
		Issuer:               opts.withIssuer,
		ProviderCA:           opts.withProviderCA,
		ClientInfo:           opts.withClientInfo,
		ExpirationLeeway:     opts.withExpirationLeeway,
		IssuedAtLeeway:       opts.withIssuedAtLeeway,
		HTTPTimeout:          opts.withHTTPTimeout,
		NowFunc:              opts.withNowFunc,
	}
	if c.Issuer == "" {
		c.Issuer = c.ApiBaseURL
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// Validate the Config. Every problem found is reported.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientId == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client id is empty: %w", op, ErrConfigurationMissing))
	}
	for _, u := range []struct{ name, value string }{
		{"authorization base URL", c.AuthorizationBaseURL},
		{"API base URL", c.ApiBaseURL},
	} {
		if u.value == "" {
			result = multierror.Append(result, fmt.Errorf("%s: %s is empty: %w", op, u.name, ErrConfigurationMissing))
			continue
		}
		parsed, err := url.Parse(u.value)
		if err != nil || parsed.Host == "" || !strutils.StrListContains([]string{"https", "http"}, parsed.Scheme) {
			result = multierror.Append(result, fmt.Errorf("%s: %s %q is not an http or https URL: %w", op, u.name, u.value, ErrUrlGeneration))
		}
	}
	switch {
	case c.RedirectURL == "":
		result = multierror.Append(result, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrConfigurationMissing))
	default:
		if parsed, err := url.Parse(c.RedirectURL); err != nil || parsed.Scheme == "" {
			result = multierror.Append(result, fmt.Errorf("%s: redirect URL %q has no scheme: %w", op, c.RedirectURL, ErrUrlGeneration))
		}
	}
	if c.Issuer == "" {
		result = multierror.Append(result, fmt.Errorf("%s: issuer is empty: %w", op, ErrConfigurationMissing))
	}
	if c.ProviderCA != "" {
		if ok := x509.NewCertPool().AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			result = multierror.Append(result, fmt.Errorf("%s: %w", op, ErrInvalidCACert))
		}
	}
	if c.ExpirationLeeway < 0 || c.IssuedAtLeeway < 0 {
		result = multierror.Append(result, fmt.Errorf("%s: leeway must not be negative: %w", op, ErrInvalidParameter))
	}
	if c.HTTPTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("%s: http timeout must not be negative: %w", op, ErrInvalidParameter))
	}
	return result.ErrorOrNil()
}

// Now will return the current time which can be overridden by the NowFunc
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now() // fallback to this default
}

// RequestedScopes returns the scopes to request, always led by "openid".
func (c *Config) RequestedScopes() []string {
	return strutils.RemoveDuplicatesStable(append([]string{gooidc.ScopeOpenID}, c.Scopes...), false)
}

// CallbackScheme returns the scheme of the RedirectURL.
func (c *Config) CallbackScheme() string {
	u, err := url.Parse(c.RedirectURL)
	if err != nil {
		return ""
	}
	return u.Scheme
}

// Endpoint URLs built from the configured base URLs.
func (c *Config) AuthorizationEndpoint() string   { return c.AuthorizationBaseURL + AuthorizePath }
func (c *Config) TokenEndpoint() string           { return c.ApiBaseURL + TokenPath }
func (c *Config) DeviceAuthorizeEndpoint() string { return c.ApiBaseURL + DeviceAuthorizePath }
func (c *Config) DeviceTokenEndpoint() string     { return c.ApiBaseURL + DeviceTokenPath }
func (c *Config) KeySetEndpoint() string          { return c.ApiBaseURL + KeySetPath }

// Validator returns an id_token validator for the config's issuer, client id,
// leeways and clock.
func (c *Config) Validator() (*jwt.Validator, error) {
	return jwt.NewValidator(c.Issuer, c.ClientId,
		jwt.WithExpirationLeeway(c.ExpirationLeeway),
		jwt.WithIssuedAtLeeway(c.IssuedAtLeeway),
		jwt.WithNow(c.Now),
	)
}

// HttpClient returns an http.Client for the provider, trusting the optional
// ProviderCA.
func (c *Config) HttpClient() (*http.Client, error) {
	const op = "Config.HttpClient"
	timeout := c.HTTPTimeout
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}
	client, err := sdkHttp.NewClient(c.ProviderCA, timeout)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// HttpClientContext returns a new Context that carries the provided HTTP
// client. This method sets the same context key used by the
// github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the returned
// context works for those packages as well.
func HttpClientContext(ctx context.Context, client *http.Client) context.Context {
	return sdkHttp.ClientContext(ctx, client)
}

// configOptions is the set of available options for NewConfig
type configOptions struct {
	withIssuer           string
	withProviderCA       string
	withScopes           []string
	withClientInfo       ClientInfo
	withHTTPTimeout      time.Duration
	withExpirationLeeway int64
	withIssuedAtLeeway   int64
	withNowFunc          func() time.Time
}

// configDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func configDefaults() configOptions {
	return configOptions{
		withExpirationLeeway: jwt.DefaultExpirationLeeway,
		withIssuedAtLeeway:   jwt.DefaultIssuedAtLeeway,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
