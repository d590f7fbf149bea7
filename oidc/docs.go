/*
oidc is a package for native and CLI clients signing users in with an OAuth2
authorization server which issues OIDC id_tokens.

Primary types provided by the package

* Config: the client id, the authorization and API base URLs, the redirect URL
and the requested scopes. It also carries the id_token leeways and clock.

* Transport: JSON requests to the token, device authorization and key set
endpoints, with the client's SDK headers.

* CodeVerifier: a PKCE (RFC 7636) verifier and its S256 challenge.

* AuthCodeFlow: the interactive authorization code flow with PKCE, driven by a
WebAuthSession which presents the authorization URL and returns the callback.

* DeviceFlow: the RFC 8628 device authorization flow, including polling with
slow_down backoff.

* RefreshFlow: replaces credentials using a refresh token.

* CredentialBundle: a validated id_token, access_token and refresh_token with
their lifetimes.

* TokenStore: persists one CredentialBundle to a keystore.Keystore.

* Manager: ties the flows and the TokenStore together, tracks the sign in
Status and implements oauth2.TokenSource.

The oidc/callback package

The callback package provides a loopback WebAuthSession for desktop and CLI
hosts, which opens the system browser and receives the redirect on a local
http listener.

Example

* cmd/capclient: a CLI which signs in with either flow.
*/
package oidc
