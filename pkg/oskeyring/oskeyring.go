// Package oskeyring stores the operator's private key in the operating
// system keyring so it never sits in a plaintext file.
package oskeyring

import (
	"errors"
	"fmt"
	"sync"

	keyringlib "github.com/zalando/go-keyring"
)

// serviceName scopes cryptly entries inside the OS keyring.
const serviceName = "cryptly"

// ErrNotFound is returned by Get when no entry exists for the account.
var ErrNotFound = errors.New("no keyring entry for account")

// Service abstracts the OS keyring. The CLI uses the OS-backed
// implementation; tests use Memory.
type Service interface {
	Get(account string) (string, error)
	Set(account, secret string) error
	// Delete is a no-op when the entry does not exist.
	Delete(account string) error
}

// OS is the keyring of the host operating system.
type OS struct{}

func NewOS() *OS {
	return &OS{}
}

func (s *OS) Get(account string) (string, error) {
	secret, err := keyringlib.Get(serviceName, account)
	if err != nil {
		if errors.Is(err, keyringlib.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("reading OS keyring: %w", err)
	}
	return secret, nil
}

func (s *OS) Set(account, secret string) error {
	return keyringlib.Set(serviceName, account, secret)
}

func (s *OS) Delete(account string) error {
	err := keyringlib.Delete(serviceName, account)
	if err != nil && !errors.Is(err, keyringlib.ErrNotFound) {
		return err
	}
	return nil
}

var _ Service = (*OS)(nil)

// Memory is an in-memory Service for tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

func (s *Memory) Get(account string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.entries[account]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (s *Memory) Set(account, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[account] = secret
	return nil
}

func (s *Memory) Delete(account string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, account)
	return nil
}

var _ Service = (*Memory)(nil)
