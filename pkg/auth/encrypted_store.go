package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/pbkdf2"

	"followsweep/pkg/config"
)

const (
	saltSize   = 32
	keySize    = 32
	iterations = 100000
	fileFormat = 1
)

// PassphraseEnv overrides the generated file passphrase
const PassphraseEnv = config.EnvPrefix + "PASSPHRASE"

// EncryptedFileStore keeps accounts in one AES-GCM encrypted file keyed by a
// PBKDF2-derived key.
type EncryptedFileStore struct {
	path       string
	passphrase string
	mu         sync.RWMutex
}

// envelope is the file layout; Data decrypts to a username -> Account map
type envelope struct {
	Version  int       `json:"version"`
	Salt     string    `json:"salt"`
	Data     string    `json:"data"`
	Modified time.Time `json:"modified"`
}

// NewEncryptedFileStore opens path. An empty passphrase is read from
// PassphraseEnv, or from a .passphrase file beside path, generating one on
// first use.
func NewEncryptedFileStore(path, passphrase string) (*EncryptedFileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if passphrase == "" {
		var err error
		if passphrase, err = loadPassphrase(filepath.Join(filepath.Dir(path), ".passphrase")); err != nil {
			return nil, fmt.Errorf("failed to get passphrase: %w", err)
		}
	}
	return &EncryptedFileStore{path: path, passphrase: passphrase}, nil
}

func (e *EncryptedFileStore) Store(account *Account) error {
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.load()
	if err != nil {
		return err
	}
	accounts[account.Username] = *account
	return e.save(accounts, salt)
}

func (e *EncryptedFileStore) Retrieve(username string) (*Account, error) {
	if username == "" {
		return nil, ErrInvalidCredentials
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	accounts, _, err := e.load()
	if err != nil {
		return nil, err
	}
	a, ok := accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &a, nil
}

func (e *EncryptedFileStore) List() ([]*Account, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	accounts, _, err := e.load()
	if err != nil {
		return nil, err
	}
	out := make([]*Account, 0, len(accounts))
	for _, a := range accounts {
		a := a
		out = append(out, &a)
	}
	return out, nil
}

func (e *EncryptedFileStore) Delete(username string) error {
	if username == "" {
		return ErrInvalidCredentials
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	accounts, salt, err := e.load()
	if err != nil {
		return err
	}
	if _, ok := accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(accounts, username)
	if len(accounts) == 0 {
		return os.Remove(e.path)
	}
	return e.save(accounts, salt)
}

func (e *EncryptedFileStore) Exists(username string) bool {
	a, err := e.Retrieve(username)
	return err == nil && a != nil
}

// load returns the decrypted accounts and the file's salt. A missing file is
// an empty store with no salt yet.
func (e *EncryptedFileStore) load() (map[string]Account, []byte, error) {
	accounts := make(map[string]Account)
	content, err := os.ReadFile(e.path)
	if os.IsNotExist(err) {
		return accounts, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(content, &env); err != nil {
		return nil, nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode salt: %w", err)
	}
	sealed, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	plain, err := decrypt(sealed, e.key(salt))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	if err := json.Unmarshal(plain, &accounts); err != nil {
		return nil, nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	return accounts, salt, nil
}

func (e *EncryptedFileStore) save(accounts map[string]Account, salt []byte) error {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return fmt.Errorf("failed to generate salt: %w", err)
		}
	}
	plain, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("failed to marshal accounts: %w", err)
	}
	sealed, err := encrypt(plain, e.key(salt))
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	content, err := json.MarshalIndent(envelope{
		Version:  fileFormat,
		Salt:     base64.StdEncoding.EncodeToString(salt),
		Data:     base64.StdEncoding.EncodeToString(sealed),
		Modified: time.Now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}

	tmp := e.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return os.Rename(tmp, e.path)
}

func (e *EncryptedFileStore) key(salt []byte) []byte {
	return pbkdf2.Key([]byte(e.passphrase), salt, iterations, keySize, sha256.New)
}

func loadPassphrase(file string) (string, error) {
	if pass := os.Getenv(PassphraseEnv); pass != "" {
		return pass, nil
	}
	if content, err := os.ReadFile(file); err == nil && len(content) > 0 {
		return string(content), nil
	}

	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	pass := base64.URLEncoding.EncodeToString(b)
	if err := os.WriteFile(file, []byte(pass), 0600); err != nil {
		return "", fmt.Errorf("failed to save passphrase: %w", err)
	}
	return pass, nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
