// Package keychain provides centralized, thread-safe access to the OS
// keychain/credential store for fmscript. The connection URL embeds the
// server password, so it never touches the config file; it lives here.
//
// macOS Keychain and Windows Credential Manager are supported, with a
// /usr/bin/security fallback on macOS where the keyring library cannot open
// the native keychain.
package keychain

import (
	"errors"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

// Global keychain manager instance
var (
	globalManager *Manager
	globalError   error
	mu            sync.Mutex
)

// Manager provides centralized, thread-safe operations for the OS keychain.
type Manager struct {
	mu      sync.RWMutex
	ring    keyring.Keyring
	backend keychainBackend
}

// keychainBackend defines the interface for keychain operations.
type keychainBackend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "fmscript"

// Keys used for storing secrets in the OS keychain.
const (
	KeyConnectionURL = "connection_url"
)

// NewManager creates a new keychain manager with the OS keyring initialized.
func NewManager() (*Manager, error) {
	// Try native security backend first on macOS
	if runtime.GOOS == "darwin" {
		backend, err := newSecurityBackend()
		if err == nil {
			return &Manager{backend: backend}, nil
		}
		// Fall through to keyring library if security command fails
	}

	ring, err := openRing()
	if err != nil {
		return nil, err
	}

	return &Manager{
		ring: ring,
	}, nil
}

// GetManager returns the global keychain manager instance.
// If not initialized, it will be created on first call.
// If initialization fails, it will retry on subsequent calls.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}

	globalManager, globalError = NewManager()
	if globalError != nil {
		return nil, globalError
	}

	return globalManager, nil
}

// openRing opens the OS keyring using native platform backends only.
// Forces use of macOS Keychain or Windows Credential Manager - no file fallback.
func openRing() (keyring.Keyring, error) {
	if runtime.GOOS != "darwin" && runtime.GOOS != "windows" {
		return nil, errors.New("secure storage not supported on this OS (macOS/Windows only)")
	}

	var allowedBackends []keyring.BackendType
	if runtime.GOOS == "darwin" {
		// Try macOS Keychain first, then pass (password store) as fallback.
		// Pass requires the 'pass' utility installed: brew install pass
		allowedBackends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.PassBackend,
		}
	} else if runtime.GOOS == "windows" {
		allowedBackends = []keyring.BackendType{keyring.WinCredBackend}
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowedBackends,
		PassPrefix:      ServiceName,
	}
	if runtime.GOOS == "windows" {
		cfg.WinCredPrefix = ServiceName
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, err
	}

	return ring, nil
}

// SaveConnectionURL stores the connection URL in the OS keychain.
// This method is thread-safe.
func (m *Manager) SaveConnectionURL(rawurl string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		return m.backend.Set(KeyConnectionURL, rawurl)
	}

	return m.ring.Set(keyring.Item{Key: KeyConnectionURL, Data: []byte(rawurl)})
}

// LoadConnectionURL retrieves the connection URL from the keychain.
// This method is thread-safe.
func (m *Manager) LoadConnectionURL() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.backend != nil {
		rawurl, err := m.backend.Get(KeyConnectionURL)
		if err != nil {
			return "", err
		}
		if rawurl == "" {
			return "", errors.New("empty connection URL")
		}
		return rawurl, nil
	}

	it, err := m.ring.Get(KeyConnectionURL)
	if err != nil {
		return "", err
	}
	if len(it.Data) == 0 {
		return "", errors.New("empty connection URL")
	}
	return string(it.Data), nil
}

// ClearConnection removes the stored connection URL from the keychain.
// This method is thread-safe.
func (m *Manager) ClearConnection() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		_ = m.backend.Delete(KeyConnectionURL)
		return nil
	}

	_ = m.ring.Remove(KeyConnectionURL)
	return nil
}
