// Copyright (c) 2025 The pgmulti Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe credential storage for pgmulti.
// Database users and passwords are kept in the OS keychain/credential store, keyed by
// the id of the database target they belong to, and never in the flow file.
//
// macOS Keychain, Windows Credential Manager, the freedesktop Secret Service, KWallet
// and pass are used where available. On hosts without any of those (containers,
// CI), an encrypted file keyring under the XDG state dir is used when
// PGMULTI_KEYRING_PASSWORD is set.
package keychain

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"pgmulti/cli/internal/xdg"

	"github.com/99designs/keyring"
)

// Global keychain manager instance
var (
	globalManager *Manager
	globalError   error
	mu            sync.Mutex
)

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "pgmulti"

// Environment variables consulted by the manager.
const (
	EnvKeyringPassword = "PGMULTI_KEYRING_PASSWORD"
	EnvUser            = "PGMULTI_USER"
	EnvPassword        = "PGMULTI_PASSWORD"
)

// Credentials are the secret half of a database target.
type Credentials struct {
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
}

// HasPassword reports whether a non-empty password is stored.
func (c Credentials) HasPassword() bool { return c.Password != "" }

// IsZero reports whether neither user nor password is set.
func (c Credentials) IsZero() bool { return c.User == "" && c.Password == "" }

// Manager provides centralized, thread-safe operations for the OS keychain.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

// NewManager creates a new keychain manager with the OS keyring initialized.
func NewManager() (*Manager, error) {
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return &Manager{ring: ring}, nil
}

// NewManagerWithRing wraps an already opened keyring, e.g. keyring.NewArrayKeyring in tests.
func NewManagerWithRing(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
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

// openRing opens the OS keyring using the backends available on this platform.
func openRing() (keyring.Keyring, error) {
	var allowedBackends []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		allowedBackends = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		allowedBackends = []keyring.BackendType{keyring.WinCredBackend}
	default:
		allowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
		}
	}

	cfg := keyring.Config{
		ServiceName:             ServiceName,
		AllowedBackends:         allowedBackends,
		PassPrefix:              ServiceName,
		LibSecretCollectionName: ServiceName,
		KWalletAppID:            ServiceName,
		KWalletFolder:           ServiceName,
	}
	if runtime.GOOS == "windows" {
		cfg.WinCredPrefix = ServiceName
	}

	// The file backend is opt-in: it needs a password we must not prompt for.
	if pw := os.Getenv(EnvKeyringPassword); pw != "" {
		dir, err := xdg.KeyringDir()
		if err != nil {
			return nil, err
		}
		cfg.AllowedBackends = append(cfg.AllowedBackends, keyring.FileBackend)
		cfg.FileDir = dir
		cfg.FilePasswordFunc = keyring.FixedStringPrompt(pw)
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("secure storage unavailable (set %s to use the file keyring): %w", EnvKeyringPassword, err)
	}
	return ring, nil
}

func keyFor(id string) string { return "target:" + id }

// Get retrieves the credentials stored for a target id.
// The boolean is false when nothing is stored.
// This method is thread-safe.
func (m *Manager) Get(id string) (Credentials, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.get(id)
}

func (m *Manager) get(id string) (Credentials, bool, error) {
	it, err := m.ring.Get(keyFor(id))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return Credentials{}, false, nil
		}
		return Credentials{}, false, err
	}
	var c Credentials
	if len(it.Data) == 0 {
		return c, false, nil
	}
	if err := json.Unmarshal(it.Data, &c); err != nil {
		return Credentials{}, false, fmt.Errorf("corrupt credentials for %q: %w", id, err)
	}
	return c, true, nil
}

// Set stores credentials for a target id. Storing empty credentials removes the entry.
// This method is thread-safe.
func (m *Manager) Set(id string, c Credentials) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.set(id, c)
}

func (m *Manager) set(id string, c Credentials) error {
	if c.IsZero() {
		return m.remove(id)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return m.ring.Set(keyring.Item{
		Key:         keyFor(id),
		Data:        data,
		Label:       ServiceName + " " + id,
		Description: "pgmulti database credentials",
	})
}

// Delete removes the credentials of a target id; deleting a missing entry is not an error.
// This method is thread-safe.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remove(id)
}

func (m *Manager) remove(id string) error {
	if err := m.ring.Remove(keyFor(id)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Merge applies an admin update to the stored credentials and returns the result.
// A nil or empty user clears the user. A nil password keeps the stored one, an
// empty password clears it, anything else replaces it.
// This method is thread-safe.
func (m *Manager) Merge(id string, user, password *string) (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, _, err := m.get(id)
	if err != nil {
		return Credentials{}, err
	}

	if user == nil || *user == "" {
		c.User = ""
	} else {
		c.User = *user
	}
	if password != nil {
		c.Password = *password
	}

	if err := m.set(id, c); err != nil {
		return Credentials{}, err
	}
	return c, nil
}

// Resolve returns the credentials to connect with for a target id: the stored
// entry if any, otherwise PGMULTI_USER / PGMULTI_PASSWORD from the environment.
// This method is thread-safe.
func (m *Manager) Resolve(id string) (Credentials, error) {
	c, ok, err := m.Get(id)
	if err != nil {
		return Credentials{}, err
	}
	if ok {
		return c, nil
	}
	return FromEnv(), nil
}

// IDs lists the target ids that have stored credentials.
// This method is thread-safe.
func (m *Manager) IDs() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys, err := m.ring.Keys()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, k := range keys {
		if id, ok := strings.CutPrefix(k, "target:"); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// FromEnv reads credentials from PGMULTI_USER and PGMULTI_PASSWORD.
func FromEnv() Credentials {
	return Credentials{
		User:     strings.TrimSpace(os.Getenv(EnvUser)),
		Password: os.Getenv(EnvPassword),
	}
}
