// Package keystore provides secure storage for small secrets addressed by a
// service and account pair, modeled after a platform keychain.
package keystore

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNotFound         = errors.New("not found")
	ErrDecrypt          = errors.New("unable to decrypt keystore")
)

// Keystore stores opaque secrets by service and account. Delete of a missing
// item is not an error.
type Keystore interface {
	Get(service, account string) ([]byte, error)
	Set(service, account string, data []byte) error
	Delete(service, account string) error
}

func itemKey(op, service, account string) (string, error) {
	switch {
	case strings.TrimSpace(service) == "":
		return "", fmt.Errorf("%s: missing service: %w", op, ErrInvalidParameter)
	case strings.TrimSpace(account) == "":
		return "", fmt.Errorf("%s: missing account: %w", op, ErrInvalidParameter)
	}
	return service + "/" + account, nil
}

// Memory is an in-process Keystore. The zero value is not usable, see
// NewMemory.
type Memory struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ Keystore = (*Memory)(nil)

// NewMemory creates an empty in-memory Keystore.
func NewMemory() *Memory {
	return &Memory{items: map[string][]byte{}}
}

// Get returns a copy of the stored item or ErrNotFound.
func (m *Memory) Get(service, account string) ([]byte, error) {
	const op = "Memory.Get"
	k, err := itemKey(op, service, account)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[k]
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", op, k, ErrNotFound)
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of data, replacing any existing item.
func (m *Memory) Set(service, account string, data []byte) error {
	const op = "Memory.Set"
	k, err := itemKey(op, service, account)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[k] = append([]byte(nil), data...)
	return nil
}

// Delete removes the item.
func (m *Memory) Delete(service, account string) error {
	const op = "Memory.Delete"
	k, err := itemKey(op, service, account)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, k)
	return nil
}
