// capclient provides a collection of related packages which let native and
// CLI applications sign users in with OAuth2 and verify the id_tokens they
// receive.
//
//   - oidc: the authorization code flow with PKCE, the device flow, refresh,
//     credential persistence and the Manager facade.
//   - oidc/callback: a loopback redirect listener for desktop and CLI hosts.
//   - jwt: id_token decoding and validation against an RSA key set.
//   - der: the DER encoding of RSA public keys.
//   - keystore: in-memory and encrypted file credential storage.
package capclient
