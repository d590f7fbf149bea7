package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

// WebAuthSession is an interactive, system provided browser session. Start
// presents authURL and returns the callback URL the provider redirected to
// with callbackScheme. A session the user dismisses returns
// ErrAuthorizationCancelled.
type WebAuthSession interface {
	Start(ctx context.Context, authURL string, callbackScheme string) (*url.URL, error)
}

// AuthCodeFlow drives the authorization code with PKCE sign in.
type AuthCodeFlow struct {
	transport *Transport
	session   WebAuthSession
	issuer    *issuer
	logger    hclog.Logger
}

// NewAuthCodeFlow creates an AuthCodeFlow presenting the provider's
// authorization page with session.
//
// Supported options: WithLogger, WithTokenStore, WithObserver
func NewAuthCodeFlow(t *Transport, session WebAuthSession, opt ...Option) (*AuthCodeFlow, error) {
	const op = "NewAuthCodeFlow"
	if session == nil {
		return nil, fmt.Errorf("%s: missing web auth session: %w", op, ErrNilParameter)
	}
	opts := getFlowOpts(opt...)
	opts.withLogger = opts.withLogger.Named("authcode")
	iss, err := newIssuer(t, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &AuthCodeFlow{
		transport: t,
		session:   session,
		issuer:    iss,
		logger:    opts.withLogger,
	}, nil
}

// AuthURL returns the authorization URL for one attempt identified by state
// and bound to the verifier's challenge.
func (f *AuthCodeFlow) AuthURL(state string, v CodeVerifier) (string, error) {
	const op = "AuthCodeFlow.AuthURL"
	switch {
	case state == "":
		return "", fmt.Errorf("%s: missing state: %w", op, ErrInvalidParameter)
	case v == nil:
		return "", fmt.Errorf("%s: missing verifier: %w", op, ErrNilParameter)
	}
	c := f.transport.config
	oauth2Config := oauth2.Config{
		ClientID:    c.ClientId,
		RedirectURL: c.RedirectURL,
		Endpoint:    oauth2.Endpoint{AuthURL: c.AuthorizationEndpoint()},
		Scopes:      c.RequestedScopes(),
	}
	authURL := oauth2Config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", v.Challenge()),
		oauth2.SetAuthURLParam("code_challenge_method", string(v.Method())),
	)
	if _, err := url.Parse(authURL); err != nil {
		return "", fmt.Errorf("%s: %s: %w", op, err, ErrUrlGeneration)
	}
	return authURL, nil
}

// SignIn runs one complete sign in: it presents the authorization page,
// exchanges the returned code, validates the id_token, persists and notifies.
func (f *AuthCodeFlow) SignIn(ctx context.Context) (*CredentialBundle, error) {
	const op = "AuthCodeFlow.SignIn"
	v, err := NewCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	state, err := NewState()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	authURL, err := f.AuthURL(state, v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f.logger.Debug("starting web auth session", "scheme", f.transport.config.CallbackScheme())
	callback, err := f.session.Start(ctx, authURL, f.transport.config.CallbackScheme())
	switch {
	case errors.Is(err, ErrAuthorizationCancelled), errors.Is(err, context.Canceled):
		return nil, fmt.Errorf("%s: %w", op, ErrAuthorizationCancelled)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return f.Complete(ctx, callback, state, v)
}

// Complete handles the provider's redirect to callback for the attempt
// identified by expectedState and v.
func (f *AuthCodeFlow) Complete(ctx context.Context, callback *url.URL, expectedState string, v CodeVerifier) (*CredentialBundle, error) {
	const op = "AuthCodeFlow.Complete"
	if callback == nil {
		return nil, fmt.Errorf("%s: missing callback: %w", op, ErrAuthorizationCallbackDataMissing)
	}
	q := callback.Query()
	if code := q.Get("error"); code != "" {
		return nil, fmt.Errorf("%s: %w", op, &ProviderError{
			Code:        code,
			Description: q.Get("error_description"),
			Uri:         q.Get("error_uri"),
		})
	}
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		return nil, fmt.Errorf("%s: missing code or state: %w", op, ErrAuthorizationCallbackDataMissing)
	}
	if state != expectedState {
		return nil, fmt.Errorf("%s: %w", op, ErrResponseStateInvalid)
	}
	resp, err := f.transport.ExchangeCode(ctx, code, v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b, err := f.issuer.complete(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}
