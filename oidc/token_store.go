package oidc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/capclient/keystore"
	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultStoreService and DefaultStoreAccount address the persisted
	// CredentialBundle in the Keystore.
	DefaultStoreService = "com.hashicorp.capclient"
	DefaultStoreAccount = "credential-bundle"
)

// LoadStatus distinguishes a missing credential from a corrupt one.
type LoadStatus int

const (
	LoadNotFound LoadStatus = iota
	LoadFound
	LoadCorrupt
)

func (s LoadStatus) String() string {
	switch s {
	case LoadFound:
		return "found"
	case LoadCorrupt:
		return "corrupt"
	default:
		return "not found"
	}
}

// LoadResult is the outcome of TokenStore.Load. Bundle is only set when
// Status is LoadFound and Err only when Status is LoadCorrupt.
type LoadResult struct {
	Status LoadStatus
	Bundle *CredentialBundle
	Err    error
}

// TokenStore persists the current CredentialBundle as a single Keystore item.
// Writes are serialized.
type TokenStore struct {
	ks      keystore.Keystore
	service string
	account string
	logger  hclog.Logger

	mu sync.Mutex
}

// NewTokenStore creates a TokenStore backed by ks.
//
// Supported options: WithLogger, WithStoreKey
func NewTokenStore(ks keystore.Keystore, opt ...Option) (*TokenStore, error) {
	const op = "NewTokenStore"
	if ks == nil {
		return nil, fmt.Errorf("%s: missing keystore: %w", op, ErrNilParameter)
	}
	opts := getTokenStoreOpts(opt...)
	if opts.withService == "" || opts.withAccount == "" {
		return nil, fmt.Errorf("%s: missing service or account: %w", op, ErrInvalidParameter)
	}
	return &TokenStore{
		ks:      ks,
		service: opts.withService,
		account: opts.withAccount,
		logger:  opts.withLogger.Named("token-store"),
	}, nil
}

// Save replaces the stored bundle with b.
func (s *TokenStore) Save(b *CredentialBundle) error {
	const op = "TokenStore.Save"
	data, err := marshalBundle(b)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ks.Set(s.service, s.account, data); err != nil {
		s.logger.Error("unable to save credentials", "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Load returns the stored bundle. It never fails: a missing item is
// LoadNotFound and an unreadable or undecodable item is LoadCorrupt.
func (s *TokenStore) Load() LoadResult {
	const op = "TokenStore.Load"
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := s.ks.Get(s.service, s.account)
	switch {
	case errors.Is(err, keystore.ErrNotFound):
		return LoadResult{Status: LoadNotFound}
	case err != nil:
		return LoadResult{Status: LoadCorrupt, Err: fmt.Errorf("%s: %w", op, err)}
	}
	b, err := unmarshalBundle(data)
	if err != nil {
		return LoadResult{Status: LoadCorrupt, Err: fmt.Errorf("%s: %w", op, err)}
	}
	return LoadResult{Status: LoadFound, Bundle: b}
}

// Delete removes the stored bundle. Deleting a missing bundle is not an
// error.
func (s *TokenStore) Delete() error {
	const op = "TokenStore.Delete"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ks.Delete(s.service, s.account); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// tokenStoreOptions is the set of available options for NewTokenStore
type tokenStoreOptions struct {
	withLogger  hclog.Logger
	withService string
	withAccount string
}

func tokenStoreDefaults() tokenStoreOptions {
	return tokenStoreOptions{
		withLogger:  hclog.NewNullLogger(),
		withService: DefaultStoreService,
		withAccount: DefaultStoreAccount,
	}
}

func getTokenStoreOpts(opt ...Option) tokenStoreOptions {
	opts := tokenStoreDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
