package oidc

import "encoding/json"

const (
	// RedactedAccessToken is the redacted string or json for an oauth access_token.
	RedactedAccessToken = "[REDACTED: access_token]"

	// RedactedIdToken is the redacted string or json for an oidc id_token.
	RedactedIdToken = "[REDACTED: id_token]"

	// RedactedRefreshToken is the redacted string or json for an oauth
	// refresh_token.
	RedactedRefreshToken = "[REDACTED: refresh_token]"

	// RedactedDeviceCode is the redacted string or json for a device_code.
	RedactedDeviceCode = "[REDACTED: device_code]"
)

// AccessToken is an oauth access_token.
type AccessToken string

// String will redact the token.
func (t AccessToken) String() string { return RedactedAccessToken }

// MarshalJSON will redact the token.
func (t AccessToken) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedAccessToken) }

// IdToken is an oidc id_token in its compact serialized form.
type IdToken string

// String will redact the token.
func (t IdToken) String() string { return RedactedIdToken }

// MarshalJSON will redact the token.
func (t IdToken) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedIdToken) }

// RefreshToken is an oauth refresh_token.
type RefreshToken string

// String will redact the token.
func (t RefreshToken) String() string { return RedactedRefreshToken }

// MarshalJSON will redact the token.
func (t RefreshToken) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedRefreshToken) }

// DeviceSecret is the opaque device_code of the device flow. It's never shown
// to the user.
type DeviceSecret string

// String will redact the device code.
func (t DeviceSecret) String() string { return RedactedDeviceCode }

// MarshalJSON will redact the device code.
func (t DeviceSecret) MarshalJSON() ([]byte, error) { return json.Marshal(RedactedDeviceCode) }
