package oidc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// ChallengeMethod represents PKCE code challenge methods as defined by RFC
// 7636.
type ChallengeMethod string

const (
	// S256 is the SHA-256 code challenge method.
	S256 ChallengeMethod = "S256"
)

const (
	// DefaultVerifierLength is the default number of random bytes in a
	// verifier (43 base64url characters).
	DefaultVerifierLength = 32

	// MaxVerifierLength keeps the encoded verifier within RFC 7636's 128
	// character limit.
	MaxVerifierLength = 96
)

// CodeVerifier is a PKCE code verifier and its derived challenge.
type CodeVerifier interface {
	// Verifier returns the code verifier (see: RFC 7636)
	Verifier() string

	// Challenge returns the code verifier's code challenge (see: RFC 7636)
	Challenge() string

	// Method returns the code verifier's challenge method (see RFC 7636)
	Method() ChallengeMethod
}

// S256Verifier is a code verifier using the S256 challenge method. It's
// immutable once created and used for a single authorization attempt.
type S256Verifier struct {
	verifier  string
	challenge string
	method    ChallengeMethod
}

// ensure that S256Verifier implements the CodeVerifier interface
var _ CodeVerifier = (*S256Verifier)(nil)

// randReader is the secure random source for verifiers.
var randReader io.Reader = rand.Reader

// NewCodeVerifier creates a new CodeVerifier (*S256Verifier). A failing random
// source returns ErrRandomSource and must be treated as fatal.
//
// Supported options: WithVerifierLength
func NewCodeVerifier(opt ...Option) (*S256Verifier, error) {
	const op = "NewCodeVerifier"
	opts := getVerifierOpts(opt...)
	if opts.withVerifierLength < DefaultVerifierLength || opts.withVerifierLength > MaxVerifierLength {
		return nil, fmt.Errorf("%s: verifier length %d is not between %d and %d: %w", op, opts.withVerifierLength, DefaultVerifierLength, MaxVerifierLength, ErrInvalidParameter)
	}
	data := make([]byte, opts.withVerifierLength)
	if _, err := io.ReadFull(randReader, data); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrRandomSource)
	}
	v := &S256Verifier{
		verifier: base64.RawURLEncoding.EncodeToString(data),
		method:   S256,
	}
	challenge, err := CreateCodeChallenge(v.method, v)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	v.challenge = challenge
	return v, nil
}

func (v *S256Verifier) Verifier() string        { return v.verifier }  // Verifier implements the CodeVerifier.Verifier() interface function.
func (v *S256Verifier) Challenge() string       { return v.challenge } // Challenge implements the CodeVerifier.Challenge() interface function.
func (v *S256Verifier) Method() ChallengeMethod { return v.method }    // Method implements the CodeVerifier.Method() interface function.

// CreateCodeChallenge creates a code challenge from the verifier. Supported
// ChallengeMethods: S256
func CreateCodeChallenge(method ChallengeMethod, v CodeVerifier) (string, error) {
	const op = "CreateCodeChallenge"
	if v == nil {
		return "", fmt.Errorf("%s: missing verifier: %w", op, ErrNilParameter)
	}
	switch method {
	case S256:
		h := sha256.Sum256([]byte(v.Verifier()))
		return base64.RawURLEncoding.EncodeToString(h[:]), nil
	default:
		return "", fmt.Errorf("%s: %s is invalid: %w", op, method, ErrUnsupportedChallengeMethod)
	}
}

// verifierOptions is the set of available options for NewCodeVerifier
type verifierOptions struct {
	withVerifierLength int
}

func verifierDefaults() verifierOptions {
	return verifierOptions{withVerifierLength: DefaultVerifierLength}
}

func getVerifierOpts(opt ...Option) verifierOptions {
	opts := verifierDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
