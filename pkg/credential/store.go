package credential

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// Store is a secure key/value credential store addressed by service and field.
type Store interface {
	Get(service, field string) (string, error)
	Set(service, field, value string) error
}

// KeyringStore stores credentials in the OS keychain.
type KeyringStore struct{}

var _ Store = KeyringStore{}

// Get implements Store.
func (KeyringStore) Get(service, field string) (string, error) {
	value, err := keyring.Get(service, field)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}

	return value, err
}

// Set implements Store.
func (KeyringStore) Set(service, field, value string) error {
	return keyring.Set(service, field, value)
}
