package oidc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/capclient/jwt"
	"github.com/hashicorp/go-hclog"
)

// Request headers identifying the host application.
const (
	HeaderSDKName         = "X-SDK-Name"
	HeaderSDKVersion      = "X-SDK-Version"
	HeaderPlatform        = "X-Device-Platform"
	HeaderPlatformVersion = "X-Device-Platform-Version"
	HeaderDeviceModel     = "X-Device-Model"
)

// Grant types sent to the token endpoints.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
)

// maxResponseSize bounds every response body read.
const maxResponseSize = 1 << 20

// TokenResponse is the decoded body of a successful token, refresh or device
// token response.
type TokenResponse struct {
	IdToken               IdToken      `json:"id_token"`
	AccessToken           AccessToken  `json:"access_token"`
	TokenType             string       `json:"token_type"`
	ExpiresIn             int64        `json:"expires_in"`
	RefreshToken          RefreshToken `json:"refresh_token,omitempty"`
	RefreshTokenExpiresIn int64        `json:"refresh_token_expires_in,omitempty"`
}

// DeviceAuthorizationResponse is the decoded body of a successful device
// authorization response.
type DeviceAuthorizationResponse struct {
	DeviceCode              DeviceSecret `json:"device_code"`
	UserCode                string       `json:"user_code"`
	VerificationUri         string       `json:"verification_uri"`
	VerificationUriComplete string       `json:"verification_uri_complete,omitempty"`
	ExpiresIn               int64        `json:"expires_in"`
	Interval                int64        `json:"interval"`
}

// errorResponse holds the error fields any endpoint may return.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorUri         string `json:"error_uri"`
}

// Transport builds and executes the provider's four request shapes and maps
// responses into typed values or typed errors. Network failures are returned
// unmodified.
type Transport struct {
	config *Config
	client *http.Client
	logger hclog.Logger
}

// NewTransport creates a Transport for the provider described by c.
//
// Supported options: WithLogger, WithHTTPClient
func NewTransport(c *Config, opt ...Option) (*Transport, error) {
	const op = "NewTransport"
	if c == nil {
		return nil, fmt.Errorf("%s: missing config: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts := getTransportOpts(opt...)
	client := opts.withHTTPClient
	if client == nil {
		var err error
		if client, err = c.HttpClient(); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return &Transport{
		config: c,
		client: client,
		logger: opts.withLogger.Named("transport"),
	}, nil
}

// Config returns the transport's Config.
func (t *Transport) Config() *Config { return t.config }

// ExchangeCode exchanges an authorization code and its PKCE verifier for
// tokens.
func (t *Transport) ExchangeCode(ctx context.Context, code string, v CodeVerifier) (*TokenResponse, error) {
	const op = "Transport.ExchangeCode"
	switch {
	case code == "":
		return nil, fmt.Errorf("%s: missing code: %w", op, ErrInvalidParameter)
	case v == nil:
		return nil, fmt.Errorf("%s: missing verifier: %w", op, ErrNilParameter)
	}
	body := map[string]string{
		"grant_type":    GrantTypeAuthorizationCode,
		"client_id":     t.config.ClientId,
		"code":          code,
		"code_verifier": v.Verifier(),
		"redirect_uri":  t.config.RedirectURL,
	}
	return t.token(ctx, op, t.config.TokenEndpoint(), body)
}

// RefreshToken exchanges a refresh token for new tokens.
func (t *Transport) RefreshToken(ctx context.Context, rt RefreshToken) (*TokenResponse, error) {
	const op = "Transport.RefreshToken"
	if rt == "" {
		return nil, fmt.Errorf("%s: missing refresh token: %w", op, ErrInvalidParameter)
	}
	body := map[string]string{
		"grant_type":    GrantTypeRefreshToken,
		"client_id":     t.config.ClientId,
		"refresh_token": string(rt),
	}
	return t.token(ctx, op, t.config.TokenEndpoint(), body)
}

// PollDeviceToken polls the device token endpoint once. RFC 8628 poll
// responses surface as ErrTokenAuthorizationPending, ErrTokenSlowDown and
// ErrTokenExpired.
func (t *Transport) PollDeviceToken(ctx context.Context, deviceCode DeviceSecret) (*TokenResponse, error) {
	const op = "Transport.PollDeviceToken"
	if deviceCode == "" {
		return nil, fmt.Errorf("%s: missing device code: %w", op, ErrInvalidParameter)
	}
	body := map[string]string{
		"grant_type":  GrantTypeDeviceCode,
		"client_id":   t.config.ClientId,
		"device_code": string(deviceCode),
	}
	return t.token(ctx, op, t.config.DeviceTokenEndpoint(), body)
}

// AuthorizeDevice requests a new device code. Provider errors are returned as
// a *DeviceCodeGenerationError.
func (t *Transport) AuthorizeDevice(ctx context.Context) (*DeviceAuthorizationResponse, error) {
	const op = "Transport.AuthorizeDevice"
	body := map[string]interface{}{
		"client_id": t.config.ClientId,
		"scope":     t.config.RequestedScopes(),
	}
	var resp DeviceAuthorizationResponse
	errResp, err := t.do(ctx, http.MethodPost, t.config.DeviceAuthorizeEndpoint(), body, &resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if errResp != nil {
		return nil, &DeviceCodeGenerationError{Name: errResp.Error, Description: errResp.ErrorDescription}
	}
	if resp.DeviceCode == "" || resp.UserCode == "" || resp.VerificationUri == "" {
		return nil, fmt.Errorf("%s: missing device_code, user_code or verification_uri: %w", op, ErrMalformedResponse)
	}
	return &resp, nil
}

// FetchKeySet fetches the provider's current signing keys. Keys are never
// cached.
func (t *Transport) FetchKeySet(ctx context.Context) (*jwt.KeySet, error) {
	const op = "Transport.FetchKeySet"
	var ks jwt.KeySet
	errResp, err := t.do(ctx, http.MethodGet, t.config.KeySetEndpoint(), nil, &ks)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if errResp != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, errResp.Error, ErrInvalidKeySet)
	}
	return &ks, nil
}

func (t *Transport) token(ctx context.Context, op, endpoint string, body interface{}) (*TokenResponse, error) {
	var resp TokenResponse
	errResp, err := t.do(ctx, http.MethodPost, endpoint, body, &resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if errResp != nil {
		return nil, fmt.Errorf("%s: %w", op, tokenError(errResp.Error, errResp.ErrorDescription, errResp.ErrorUri))
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("%s: missing access_token: %w", op, ErrMalformedResponse)
	}
	return &resp, nil
}

// do sends the request and decodes the JSON reply into out. A reply with a
// non-empty "error" field is returned as an *errorResponse instead.
func (t *Transport) do(ctx context.Context, method, endpoint string, body, out interface{}) (*errorResponse, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("unable to encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %s: %w", err, ErrUrlGeneration)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	t.setClientInfo(req.Header)

	t.logger.Debug("sending request", "method", method, "endpoint", endpoint)
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}
	t.logger.Debug("received response", "endpoint", endpoint, "status", resp.StatusCode)

	var errResp errorResponse
	if err := json.Unmarshal(data, &errResp); err != nil {
		return nil, fmt.Errorf("unable to decode response (status %d): %s: %w", resp.StatusCode, err, ErrMalformedResponse)
	}
	if errResp.Error != "" {
		return &errResp, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %w", resp.StatusCode, ErrMalformedResponse)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("unable to decode response: %s: %w", err, ErrMalformedResponse)
	}
	return nil, nil
}

func (t *Transport) setClientInfo(h http.Header) {
	info := t.config.ClientInfo
	for k, v := range map[string]string{
		HeaderSDKName:         info.SDKName,
		HeaderSDKVersion:      info.SDKVersion,
		HeaderPlatform:        info.Platform,
		HeaderPlatformVersion: info.PlatformVersion,
		HeaderDeviceModel:     info.DeviceModel,
	} {
		if v != "" {
			h.Set(k, v)
		}
	}
}

// transportOptions is the set of available options for NewTransport
type transportOptions struct {
	withLogger     hclog.Logger
	withHTTPClient *http.Client
}

func transportDefaults() transportOptions {
	return transportOptions{withLogger: hclog.NewNullLogger()}
}

func getTransportOpts(opt ...Option) transportOptions {
	opts := transportDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
