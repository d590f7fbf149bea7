package oidc

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// RefreshFlow exchanges a refresh token for a new CredentialBundle. Each call
// is a single attempt.
type RefreshFlow struct {
	transport *Transport
	issuer    *issuer
	logger    hclog.Logger
}

// NewRefreshFlow creates a RefreshFlow.
//
// Supported options: WithLogger, WithTokenStore, WithObserver
func NewRefreshFlow(t *Transport, opt ...Option) (*RefreshFlow, error) {
	const op = "NewRefreshFlow"
	opts := getFlowOpts(opt...)
	opts.withLogger = opts.withLogger.Named("refresh")
	iss, err := newIssuer(t, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &RefreshFlow{transport: t, issuer: iss, logger: opts.withLogger}, nil
}

// Refresh returns the bundle issued for rt, replacing the previous one
// wholesale.
func (f *RefreshFlow) Refresh(ctx context.Context, rt RefreshToken) (*CredentialBundle, error) {
	const op = "RefreshFlow.Refresh"
	if rt == "" {
		return nil, fmt.Errorf("%s: missing refresh token: %w", op, ErrInvalidParameter)
	}
	resp, err := f.transport.RefreshToken(ctx, rt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	b, err := f.issuer.complete(ctx, resp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	f.logger.Debug("refreshed credentials")
	return b, nil
}
