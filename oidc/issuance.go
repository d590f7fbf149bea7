package oidc

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/capclient/jwt"
	"github.com/hashicorp/go-hclog"
)

// issuer turns a token endpoint reply into a CredentialBundle. The order is
// fixed: validate, persist, notify, return. Nothing is persisted, observed or
// returned unless the id_token is valid. A commit func, when set, replaces
// the persist and notify steps.
type issuer struct {
	transport *Transport
	validator *jwt.Validator
	store     *TokenStore
	observer  TokenObserver
	commit    func(ctx context.Context, b *CredentialBundle) error
	logger    hclog.Logger
}

func newIssuer(t *Transport, opts flowOptions) (*issuer, error) {
	const op = "oidc.newIssuer"
	if t == nil {
		return nil, fmt.Errorf("%s: missing transport: %w", op, ErrNilParameter)
	}
	v, err := t.config.Validator()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create validator: %w", op, err)
	}
	return &issuer{
		transport: t,
		validator: v,
		store:     opts.withTokenStore,
		observer:  opts.withObserver,
		commit:    opts.withCommit,
		logger:    opts.withLogger,
	}, nil
}

func (i *issuer) complete(ctx context.Context, resp *TokenResponse) (*CredentialBundle, error) {
	const op = "oidc.complete"
	if resp == nil {
		return nil, fmt.Errorf("%s: missing token response: %w", op, ErrNilParameter)
	}
	if resp.IdToken == "" {
		return nil, fmt.Errorf("%s: missing id_token: %w", op, ErrMalformedResponse)
	}
	idt, err := jwt.NewIdentityToken(string(resp.IdToken))
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrTokenValidationFailed)
	}
	ks, err := i.transport.FetchKeySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	valid, err := i.validator.Validate(idt, ks)
	switch {
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	case !valid:
		return nil, fmt.Errorf("%s: %w", op, ErrTokenValidationFailed)
	}

	b := &CredentialBundle{
		IdToken:              idt,
		IdTokenRaw:           resp.IdToken,
		AccessToken:          resp.AccessToken,
		TokenType:            resp.TokenType,
		AccessTokenLifetime:  time.Duration(resp.ExpiresIn) * time.Second,
		RefreshToken:         resp.RefreshToken,
		RefreshTokenLifetime: time.Duration(resp.RefreshTokenExpiresIn) * time.Second,
		IssuedAt:             i.transport.config.Now().UTC().Round(0),
	}
	if b.RefreshToken == "" {
		b.RefreshTokenLifetime = 0
	}
	switch {
	case i.commit != nil:
		if err := i.commit(ctx, b); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	default:
		if i.store != nil {
			if err := i.store.Save(b); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		if i.observer != nil {
			i.observer.OnTokenUpdate(b)
		}
	}
	i.logger.Debug("credentials issued", "subject", idt.Subject)
	return b, nil
}

// flowOptions is the set of available options for the AuthCodeFlow,
// DeviceFlow and RefreshFlow.
type flowOptions struct {
	withLogger                   hclog.Logger
	withTokenStore               *TokenStore
	withObserver                 TokenObserver
	withCommit                   func(ctx context.Context, b *CredentialBundle) error
	withSleep                    func(ctx context.Context, d time.Duration) error
	withDeviceCodeExpiryEnforced bool
}

// withCommit hands validated credentials to fn instead of the flow's token
// store and observer. An error from fn fails the flow.
func withCommit(fn func(ctx context.Context, b *CredentialBundle) error) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *flowOptions:
			v.withCommit = fn
		}
	}
}

func flowDefaults() flowOptions {
	return flowOptions{
		withLogger: hclog.NewNullLogger(),
		withSleep:  sleepContext,
	}
}

func getFlowOpts(opt ...Option) flowOptions {
	opts := flowDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
