/*
Package jwt decodes and validates OIDC identity tokens issued by the first
party identity provider.

Primary types provided by the package:

* IdentityToken: the decoded claims (iss, sub, aud, exp, iat, email) and
header (kid, alg) of a compact serialized JWT. An IdentityToken only exists
for a well formed token carrying every required claim.

* KeySet and Key: the provider's published JSON Web Key Set. Keys carry a
base64url modulus and exponent which are rebuilt into an RSA public key via
their DER encoding (see the der package).

* Validator: checks an IdentityToken's issuer, audience, expiration and
issued-at claims and finally its RS256 signature against a KeySet.
*/
package jwt
