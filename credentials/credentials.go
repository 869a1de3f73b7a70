// Package credentials stores account secrets in the OS keychain, with an
// environment fallback for headless machines.
package credentials

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const defaultService = "igclient"

// ErrNotFound is returned when no credential is stored for a username.
var ErrNotFound = errors.New("credential not found")

// Store persists passwords keyed by username.
type Store interface {
	Save(username, password string) error
	Load(username string) (string, error)
	Delete(username string) error
}

// KeyringStore keeps passwords in the OS keychain.
type KeyringStore struct {
	Service string
}

// NewKeyringStore returns a keychain store under the default service name.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{Service: defaultService}
}

func (s *KeyringStore) service() string {
	if s.Service != "" {
		return s.Service
	}
	return defaultService
}

func (s *KeyringStore) Save(username, password string) error {
	if err := keyring.Set(s.service(), username, password); err != nil {
		return fmt.Errorf("keyring set: %w", err)
	}
	return nil
}

func (s *KeyringStore) Load(username string) (string, error) {
	password, err := keyring.Get(s.service(), username)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("keyring get: %w", err)
	}
	return password, nil
}

func (s *KeyringStore) Delete(username string) error {
	if err := keyring.Delete(s.service(), username); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("keyring delete: %w", err)
	}
	return nil
}

// EnvStore reads credentials from the environment. Saving and deleting are
// not supported; it exists for CI and containers without a keychain.
type EnvStore struct {
	UsernameVar string
	PasswordVar string
}

// NewEnvStore reads IG_USERNAME / IG_PASSWORD.
func NewEnvStore() *EnvStore {
	return &EnvStore{UsernameVar: "IG_USERNAME", PasswordVar: "IG_PASSWORD"}
}

func (s *EnvStore) Save(string, string) error {
	return errors.New("environment store is read-only")
}

func (s *EnvStore) Load(username string) (string, error) {
	if env := os.Getenv(s.UsernameVar); env != "" && env != username {
		return "", ErrNotFound
	}
	password := os.Getenv(s.PasswordVar)
	if password == "" {
		return "", ErrNotFound
	}
	return password, nil
}

func (s *EnvStore) Delete(string) error {
	return errors.New("environment store is read-only")
}

// Resolve finds a password for username, preferring the environment so
// containers can override the keychain.
func Resolve(username string) (string, error) {
	if password, err := NewEnvStore().Load(username); err == nil {
		return password, nil
	}
	return NewKeyringStore().Load(username)
}
