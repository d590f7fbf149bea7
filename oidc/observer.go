package oidc

// TokenObserver is notified with every newly issued CredentialBundle, after
// it has been validated and persisted.
type TokenObserver interface {
	OnTokenUpdate(b *CredentialBundle)
}

// TokenObserverFunc adapts a func to a TokenObserver.
type TokenObserverFunc func(b *CredentialBundle)

// OnTokenUpdate implements TokenObserver.
func (f TokenObserverFunc) OnTokenUpdate(b *CredentialBundle) { f(b) }
