// Package der encodes the small subset of ASN.1 DER needed to rebuild an RSA
// public key from the raw modulus and exponent published in a JSON Web Key,
// and reads that encoding back into an *rsa.PublicKey.
package der

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

const (
	// TagInteger is the universal ASN.1 INTEGER tag.
	TagInteger byte = 0x02

	// TagSequence is the constructed ASN.1 SEQUENCE tag.
	TagSequence byte = 0x30
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrMalformed        = errors.New("malformed DER")
)

// EncodeLength returns the DER length octets for n. Lengths below 128 use the
// short form (a single byte); everything else uses the long form: 0x80|k
// followed by the k big-endian bytes of n, where k is minimal.
func EncodeLength(n int) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var b []byte
	for v := n; v > 0; v >>= 8 {
		b = append([]byte{byte(v)}, b...)
	}
	return append([]byte{0x80 | byte(len(b))}, b...)
}

// Encode returns the TLV encoding of content under tag.
func Encode(tag byte, content []byte) []byte {
	l := EncodeLength(len(content))
	out := make([]byte, 0, 1+len(l)+len(content))
	out = append(out, tag)
	out = append(out, l...)
	return append(out, content...)
}

// EncodeInteger encodes b, an unsigned big-endian magnitude, as a DER
// INTEGER. Redundant leading zero bytes are dropped and a single 0x00 is
// prepended when the high bit would otherwise make the value negative.
func EncodeInteger(b []byte) []byte {
	for len(b) > 1 && b[0] == 0x00 {
		b = b[1:]
	}
	if len(b) > 0 && b[0]&0x80 != 0 {
		b = append([]byte{0x00}, b...)
	}
	return Encode(TagInteger, b)
}

// EncodeRSAPublicKey returns the PKCS #1 RSAPublicKey structure
//
//	SEQUENCE { modulus INTEGER, publicExponent INTEGER }
//
// for the raw big-endian modulus and exponent.
func EncodeRSAPublicKey(modulus, exponent []byte) ([]byte, error) {
	const op = "der.EncodeRSAPublicKey"
	if len(modulus) == 0 {
		return nil, fmt.Errorf("%s: modulus is empty: %w", op, ErrInvalidParameter)
	}
	if len(exponent) == 0 {
		return nil, fmt.Errorf("%s: exponent is empty: %w", op, ErrInvalidParameter)
	}
	content := append(EncodeInteger(modulus), EncodeInteger(exponent)...)
	return Encode(TagSequence, content), nil
}

// ParseRSAPublicKey reads a PKCS #1 RSAPublicKey structure. Any trailing data,
// non-minimal integer encoding or non-positive value is rejected.
func ParseRSAPublicKey(b []byte) (*rsa.PublicKey, error) {
	const op = "der.ParseRSAPublicKey"
	input := cryptobyte.String(b)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, fmt.Errorf("%s: invalid sequence: %w", op, ErrMalformed)
	}
	n := new(big.Int)
	var e int
	if !seq.ReadASN1Integer(n) {
		return nil, fmt.Errorf("%s: invalid modulus: %w", op, ErrMalformed)
	}
	if !seq.ReadASN1Integer(&e) || !seq.Empty() {
		return nil, fmt.Errorf("%s: invalid exponent: %w", op, ErrMalformed)
	}
	if n.Sign() <= 0 || e <= 1 {
		return nil, fmt.Errorf("%s: modulus and exponent must be positive: %w", op, ErrMalformed)
	}
	return &rsa.PublicKey{N: n, E: e}, nil
}
