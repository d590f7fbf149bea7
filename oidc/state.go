package oidc

import (
	"fmt"

	"github.com/hashicorp/capclient/sdk/id"
)

// NewState generates a random anti-CSRF state value for one authorization
// attempt.
func NewState() (string, error) {
	const op = "oidc.NewState"
	s, err := id.New("st")
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate state: %s: %w", op, err, ErrRandomSource)
	}
	return s, nil
}
