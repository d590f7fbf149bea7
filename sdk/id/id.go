package id

import (
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// New generates a random ID with an optional prefix. The ID is suitable for
// an anti-CSRF state value.
func New(optionalPrefix string) (string, error) {
	b, err := uuid.GenerateRandomBytes(16)
	if err != nil {
		return "", fmt.Errorf("unable to generate id: %w", err)
	}
	id, err := uuid.FormatUUID(b)
	if err != nil {
		return "", fmt.Errorf("unable to format id: %w", err)
	}
	switch {
	case optionalPrefix != "":
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	default:
		return id, nil
	}
}
