package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"
)

// Account holds the session cookies of one logged-in account
type Account struct {
	Username     string    `json:"username"`
	AuthToken    string    `json:"auth_token"`
	CSRFToken    string    `json:"csrf_token"`
	UserAgent    string    `json:"user_agent,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Validate checks the fields a browser session needs
func (a *Account) Validate() error {
	switch {
	case a == nil || a.Username == "":
		return fmt.Errorf("%w: username is required", ErrInvalidCredentials)
	case a.AuthToken == "":
		return fmt.Errorf("%w: auth_token is required", ErrInvalidCredentials)
	case a.CSRFToken == "":
		return fmt.Errorf("%w: ct0 token is required", ErrInvalidCredentials)
	}
	return nil
}

// CredentialStore stores accounts by username
type CredentialStore interface {
	Store(account *Account) error
	Retrieve(username string) (*Account, error)
	List() ([]*Account, error)
	Delete(username string) error
	Exists(username string) bool
}

// Manager tries its stores in order: the system keychain, an encrypted file,
// then the environment.
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a manager whose encrypted file lives in dir. An empty
// dir means ConfigDir().
func NewManager(dir string) (*Manager, error) {
	var stores []CredentialStore

	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
	}
	fs, err := NewEncryptedFileStore(filepath.Join(dir, "credentials.enc"), "")
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, fs, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over explicit stores
func NewManagerWithStores(stores ...CredentialStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves account in the first store that accepts it
func (m *Manager) Store(account *Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	account.Username = normalizeUsername(account.Username)
	account.LastModified = time.Now()

	var errs []error
	for _, s := range m.stores {
		err := s.Store(account)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return ErrStoreUnavailable
	}
	return fmt.Errorf("failed to store credentials: %w", errors.Join(errs...))
}

// Retrieve returns username's account from the first store holding it
func (m *Manager) Retrieve(username string) (*Account, error) {
	username = normalizeUsername(username)
	for _, s := range m.stores {
		if account, err := s.Retrieve(username); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, username)
}

// Default returns username's account, or when username is empty the
// environment account, or else the most recently saved one.
func (m *Manager) Default(username string) (*Account, error) {
	if username != "" {
		return m.Retrieve(username)
	}
	for _, s := range m.stores {
		if env, ok := s.(*EnvironmentStore); ok {
			if account, err := env.Retrieve(""); err == nil {
				return account, nil
			}
		}
	}
	accounts, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, ErrCredentialsNotFound
	}
	return accounts[0], nil
}

// List merges every store's accounts, keeping the newest copy of each, most
// recent first.
func (m *Manager) List() ([]*Account, error) {
	byName := make(map[string]*Account)
	for _, s := range m.stores {
		accounts, err := s.List()
		if err != nil {
			continue
		}
		for _, a := range accounts {
			if cur, ok := byName[a.Username]; !ok || a.LastModified.After(cur.LastModified) {
				byName[a.Username] = a
			}
		}
	}

	out := make([]*Account, 0, len(byName))
	for _, a := range byName {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastModified.Equal(out[j].LastModified) {
			return out[i].LastModified.After(out[j].LastModified)
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

// Delete removes username from every store
func (m *Manager) Delete(username string) error {
	username = normalizeUsername(username)
	deleted := false
	for _, s := range m.stores {
		if err := s.Delete(username); err == nil {
			deleted = true
		}
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrCredentialsNotFound, username)
	}
	return nil
}

// DeleteAll removes every listed account
func (m *Manager) DeleteAll() (int, error) {
	accounts, err := m.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range accounts {
		if m.Delete(a.Username) == nil {
			n++
		}
	}
	return n, nil
}

// ConfigDir returns the per-user directory for followsweep's private files,
// creating it when missing.
func ConfigDir() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, "Library", "Application Support", "followsweep")
	case "windows":
		dir = filepath.Join(os.Getenv("APPDATA"), "followsweep")
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			dir = filepath.Join(xdg, "followsweep")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dir = filepath.Join(home, ".config", "followsweep")
		}
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// SanitizeAccount returns a copy of account with its tokens masked
func SanitizeAccount(account *Account) *Account {
	if account == nil {
		return nil
	}
	masked := *account
	masked.AuthToken = maskString(account.AuthToken)
	masked.CSRFToken = maskString(account.CSRFToken)
	return &masked
}

// maskString keeps the first and last 4 characters
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

func normalizeUsername(u string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u), "@"))
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
