// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/capclient/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/skratchdot/open-golang/open"
)

// LoopbackSession is an oidc.WebAuthSession for desktop and CLI hosts. It
// opens the authorization URL in the system browser and listens for the
// provider's redirect on the redirect URL's host and path.
type LoopbackSession struct {
	redirect *url.URL
	openURL  func(string) error
	sFn      SuccessResponseFunc
	eFn      ErrorResponseFunc
	logger   hclog.Logger
}

var _ oidc.WebAuthSession = (*LoopbackSession)(nil)

// NewLoopbackSession creates a LoopbackSession. The redirectURL must be an
// http URL with an explicit port, e.g. http://127.0.0.1:8250/callback.
//
// Supported options: WithOpenURL, WithResponseFuncs, WithLogger
func NewLoopbackSession(redirectURL string, opt ...oidc.Option) (*LoopbackSession, error) {
	const op = "callback.NewLoopbackSession"
	u, err := url.Parse(redirectURL)
	switch {
	case err != nil:
		return nil, fmt.Errorf("%s: %s: %w", op, err, oidc.ErrInvalidParameter)
	case u.Scheme != "http":
		return nil, fmt.Errorf("%s: redirect URL scheme must be http: %w", op, oidc.ErrInvalidParameter)
	case u.Port() == "":
		return nil, fmt.Errorf("%s: redirect URL must have a port: %w", op, oidc.ErrInvalidParameter)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	opts := getLoopbackOpts(opt...)
	return &LoopbackSession{
		redirect: u,
		openURL:  opts.withOpenURL,
		sFn:      opts.withSuccessFn,
		eFn:      opts.withErrorFn,
		logger:   opts.withLogger,
	}, nil
}

// Start implements oidc.WebAuthSession. It returns oidc.ErrAuthorizationCancelled
// when ctx is done before the redirect arrives.
func (s *LoopbackSession) Start(ctx context.Context, authURL string, callbackScheme string) (*url.URL, error) {
	const op = "LoopbackSession.Start"
	if callbackScheme != s.redirect.Scheme {
		return nil, fmt.Errorf("%s: callback scheme %q does not match %q: %w", op, callbackScheme, s.redirect.Scheme, oidc.ErrInvalidParameter)
	}
	l, err := net.Listen("tcp", s.redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to listen on %s: %w", op, s.redirect.Host, err)
	}
	doneCh, handler := RedirectWithChannel(s.redirect, s.sFn, s.eFn)
	mux := http.NewServeMux()
	mux.HandleFunc(s.redirect.Path, handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("callback listener failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Debug("opening browser", "redirect", s.redirect.String())
	if err := s.openURL(authURL); err != nil {
		return nil, fmt.Errorf("%s: unable to open browser: %w", op, err)
	}
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %s: %w", op, ctx.Err(), oidc.ErrAuthorizationCancelled)
	case u := <-doneCh:
		return u, nil
	}
}

// WithOpenURL provides an optional func to present the authorization URL,
// for: NewLoopbackSession. It defaults to the system browser.
func WithOpenURL(fn func(string) error) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*loopbackOptions); ok && fn != nil {
			v.withOpenURL = fn
		}
	}
}

// WithResponseFuncs provides optional browser responses for:
// NewLoopbackSession.
func WithResponseFuncs(sFn SuccessResponseFunc, eFn ErrorResponseFunc) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*loopbackOptions); ok {
			v.withSuccessFn, v.withErrorFn = sFn, eFn
		}
	}
}

// WithLogger provides an optional logger for: NewLoopbackSession.
func WithLogger(l hclog.Logger) oidc.Option {
	return func(o interface{}) {
		if v, ok := o.(*loopbackOptions); ok && l != nil {
			v.withLogger = l
		}
	}
}

type loopbackOptions struct {
	withOpenURL   func(string) error
	withSuccessFn SuccessResponseFunc
	withErrorFn   ErrorResponseFunc
	withLogger    hclog.Logger
}

func loopbackDefaults() loopbackOptions {
	return loopbackOptions{
		withOpenURL: open.Run,
		withLogger:  hclog.NewNullLogger(),
	}
}

func getLoopbackOpts(opt ...oidc.Option) loopbackOptions {
	opts := loopbackDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}
