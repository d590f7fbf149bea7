package jwt

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/capclient/der"
)

// Key is a single JSON Web Key as published by the provider's JWKS endpoint.
// Exponent and Modulus are base64url encoded big-endian byte strings.
type Key struct {
	KeyId    string `json:"kid"`
	KeyType  string `json:"kty"`
	Exponent string `json:"e"`
	Modulus  string `json:"n"`
}

// KeySet is an ordered collection of keys. A KeySet is fetched fresh for every
// validation and never cached.
type KeySet struct {
	Keys []Key `json:"keys"`
}

// ParseKeySet decodes a JWKS document.
func ParseKeySet(data []byte) (*KeySet, error) {
	const op = "jwt.ParseKeySet"
	var ks KeySet
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("%s: unable to decode key set: %w", op, err)
	}
	return &ks, nil
}

// Find returns the first key whose id equals keyId.
func (ks *KeySet) Find(keyId string) (*Key, bool) {
	if ks == nil {
		return nil, false
	}
	for i := range ks.Keys {
		if ks.Keys[i].KeyId == keyId {
			return &ks.Keys[i], true
		}
	}
	return nil, false
}

// PublicKey rebuilds the RSA public key from the key's modulus and exponent by
// way of its DER encoding.
func (k *Key) PublicKey() (*rsa.PublicKey, error) {
	const op = "Key.PublicKey"
	if k.KeyType != "" && k.KeyType != "RSA" {
		return nil, fmt.Errorf("%s: unsupported key type %q: %w", op, k.KeyType, ErrMalformedKey)
	}
	n, err := base64.RawURLEncoding.DecodeString(k.Modulus)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to decode modulus: %w", op, ErrMalformedKey)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.Exponent)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to decode exponent: %w", op, ErrMalformedKey)
	}
	encoded, err := der.EncodeRSAPublicKey(n, e)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedKey, err)
	}
	pub, err := der.ParseRSAPublicKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrMalformedKey, err)
	}
	return pub, nil
}
