// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"fmt"
	"html"
	"net/http"
)

// SuccessResponseFunc is used by the callback handler to create a http
// response when the redirect carries an authorization code.
//
// The function state parameter will contain the state that was returned as
// part of the authorization response. The function should use the
// http.ResponseWriter to send back whatever content it wishes to the browser
// that completed the flow.
type SuccessResponseFunc func(state string, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc is used by the callback handler to create a http response
// when the redirect carries an error.
//
// The function receives the state returned as part of the authorization
// response and the parameters of the authorization error response.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse represents Oauth2 error responses.  See:
// https://openid.net/specs/openid-connect-core-1_0.html#AuthError
type AuthenErrorResponse struct {
	Error       string
	Description string
	Uri         string
}

// SuccessResponse is the default SuccessResponseFunc.
func SuccessResponse(_ string, w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, "<!DOCTYPE html><html><body><p>Signed in. You may close this window.</p></body></html>")
}

// ErrorResponse is the default ErrorResponseFunc.
func ErrorResponse(_ string, respErr *AuthenErrorResponse, w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = fmt.Fprintf(w, "<!DOCTYPE html><html><body><p>Sign in failed: %s</p><p>%s</p></body></html>",
		html.EscapeString(respErr.Error), html.EscapeString(respErr.Description))
}
