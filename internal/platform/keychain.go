package platform

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"

	"github.com/mlld-lang/mlld/internal/ports"
)

// FileKeychain implements ports.KeychainProvider as an AES-GCM encrypted
// JSON file on disk, for platforms with no OS keychain daemon available.
// The encryption key is derived with HKDF from a random master key stored
// alongside the secrets file (0600), a derive-key-from-entropy idiom.
type FileKeychain struct {
	mu         sync.Mutex
	secretPath string
	keyPath    string
}

var _ ports.KeychainProvider = (*FileKeychain)(nil)

// NewFileKeychain returns a keychain backed by files under dir.
func NewFileKeychain(dir string) *FileKeychain {
	return &FileKeychain{
		secretPath: filepath.Join(dir, "keychain.enc.json"),
		keyPath:    filepath.Join(dir, "keychain.key"),
	}
}

type keychainEntry struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

func (k *FileKeychain) entryKey(service, account string) string {
	return service + "\x00" + account
}

func (k *FileKeychain) loadAll() (map[string]keychainEntry, error) {
	raw, err := os.ReadFile(k.secretPath)
	if os.IsNotExist(err) {
		return map[string]keychainEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	var entries map[string]keychainEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("platform: corrupt keychain file %s: %w", k.secretPath, err)
	}
	return entries, nil
}

func (k *FileKeychain) saveAll(entries map[string]keychainEntry) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(k.secretPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(k.secretPath, raw, 0o600)
}

func (k *FileKeychain) cipherKey() ([]byte, error) {
	master, err := os.ReadFile(k.keyPath)
	if os.IsNotExist(err) {
		master = make([]byte, 32)
		if _, err := rand.Read(master); err != nil {
			return nil, fmt.Errorf("platform: generating keychain master key: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(k.keyPath), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(k.keyPath, master, 0o600); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	kdf := hkdf.New(sha3.New256, master, nil, []byte("mlld/keychain/v1"))
	key := make([]byte, 32)
	if _, err := kdf.Read(key); err != nil {
		return nil, fmt.Errorf("platform: deriving keychain cipher key: %w", err)
	}
	return key, nil
}

func (k *FileKeychain) gcm() (cipher.AEAD, error) {
	key, err := k.cipherKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Get returns the decrypted secret for service/account, or an error if
// no such entry exists.
func (k *FileKeychain) Get(service, account string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entries, err := k.loadAll()
	if err != nil {
		return "", err
	}
	entry, ok := entries[k.entryKey(service, account)]
	if !ok {
		return "", fmt.Errorf("platform: no keychain entry for %s/%s", service, account)
	}

	gcm, err := k.gcm()
	if err != nil {
		return "", err
	}
	nonce, err := hex.DecodeString(entry.Nonce)
	if err != nil {
		return "", err
	}
	ct, err := hex.DecodeString(entry.Ciphertext)
	if err != nil {
		return "", err
	}
	plain, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("platform: decrypting keychain entry for %s/%s: %w", service, account, err)
	}
	return string(plain), nil
}

// Set encrypts and stores secret for service/account, overwriting any
// existing entry.
func (k *FileKeychain) Set(service, account, secret string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	gcm, err := k.gcm()
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	ct := gcm.Seal(nil, nonce, []byte(secret), nil)

	entries, err := k.loadAll()
	if err != nil {
		return err
	}
	entries[k.entryKey(service, account)] = keychainEntry{
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ct),
	}
	return k.saveAll(entries)
}

// Delete removes the entry for service/account, if present.
func (k *FileKeychain) Delete(service, account string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	entries, err := k.loadAll()
	if err != nil {
		return err
	}
	delete(entries, k.entryKey(service, account))
	return k.saveAll(entries)
}
