// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"net/http"
	"net/url"
	"sync"
)

// RedirectWithChannel creates a one-time redirect handler which writes the
// full callback URL to the returned channel. Only the first request is
// reported; the channel is then closed. The authorization code exchange
// itself is left to oidc.AuthCodeFlow.Complete.
//
// The SuccessResponseFunc is used to create a response when the redirect
// carries a code. The ErrorResponseFunc is used when it carries an error.
func RedirectWithChannel(base *url.URL, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (<-chan *url.URL, http.HandlerFunc) {
	if sFn == nil {
		sFn = SuccessResponse
	}
	if eFn == nil {
		eFn = ErrorResponse
	}
	doneCh := make(chan *url.URL, 1)
	var once sync.Once
	return doneCh, func(w http.ResponseWriter, req *http.Request) {
		reqState := req.FormValue("state")
		if err := req.FormValue("error"); err != "" {
			eFn(reqState, &AuthenErrorResponse{
				Error:       err,
				Description: req.FormValue("error_description"),
				Uri:         req.FormValue("error_uri"),
			}, w, req)
		} else {
			sFn(reqState, w, req)
		}

		once.Do(func() {
			u := *base
			u.RawQuery = req.URL.RawQuery
			doneCh <- &u
			close(doneCh)
		})
	}
}
