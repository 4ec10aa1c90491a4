package auth

import (
	"os"
	"time"

	"followsweep/pkg/config"
)

// Environment variables read by EnvironmentStore
const (
	EnvUsername  = config.EnvPrefix + "USERNAME"
	EnvAuthToken = config.EnvPrefix + "AUTH_TOKEN"
	EnvCSRFToken = config.EnvPrefix + "CSRF_TOKEN"
	EnvUserAgent = config.EnvPrefix + "USER_AGENT"
)

// DefaultEnvUsername names the environment account when FOLLOWSWEEP_USERNAME
// is unset
const DefaultEnvUsername = "default"

// EnvironmentStore is a read-only store over environment variables, for
// headless hosts without a keychain.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment account. It answers to any username when
// FOLLOWSWEEP_USERNAME is unset.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	token, csrf := os.Getenv(EnvAuthToken), os.Getenv(EnvCSRFToken)
	if token == "" || csrf == "" {
		return nil, ErrCredentialsNotFound
	}
	name := normalizeUsername(os.Getenv(EnvUsername))
	if name != "" && username != "" && name != username {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = username
	}
	if name == "" {
		name = DefaultEnvUsername
	}
	return &Account{
		Username:     name,
		AuthToken:    token,
		CSRFToken:    csrf,
		UserAgent:    os.Getenv(EnvUserAgent),
		LastModified: time.Time{},
	}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	a, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{a}, nil
}

func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}
