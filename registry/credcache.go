package registry

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/lanreach/lanreach/configstore"
)

const (
	credentialsFileName = "credentials.json"
	keyFileName          = "credentials.key"
	keyFileSize          = 32
)

// encryptedEntry is one device's encrypted cached password, as persisted
// to credentials.json (spec.md §6 "credentials.json -- controller
// credential cache (mode 0600 on POSIX; OS key store where available)").
type encryptedEntry struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

type credDocument struct {
	Entries map[string]encryptedEntry `json:"entries"`
}

// CredentialCache stores, per saved device, the cached password needed to
// skip re-prompting on reconnect, and the in-memory session token obtained
// from the last successful handshake (spec.md §4.7 "credential flow on
// connect"). Passwords are encrypted at rest with AES-256-GCM keyed from a
// random file generated alongside the cache (credentials.key, mode 0600);
// there is no OS key-store integration in this implementation, so the key
// file is the only thing standing between an on-disk credentials.json and
// the plaintext passwords it protects -- losing or copying that file
// defeats the encryption, a limitation worth flagging to an operator
// hardening beyond a single trusted workstation.
type CredentialCache struct {
	store *configstore.Store[credDocument]
	key   [32]byte

	mu     sync.Mutex
	tokens map[string]string
}

// OpenCredentialCache opens (or seeds) the credential cache under dir,
// generating credentials.key on first use.
func OpenCredentialCache(dir string) (*CredentialCache, error) {
	key, err := loadOrCreateKey(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, err
	}

	store, err := configstore.Open(filepath.Join(dir, credentialsFileName), credDocument{Entries: map[string]encryptedEntry{}})
	if err != nil {
		return nil, err
	}

	return &CredentialCache{
		store:  store,
		key:    key,
		tokens: make(map[string]string),
	}, nil
}

func loadOrCreateKey(path string) ([32]byte, error) {
	var key [32]byte

	raw, err := os.ReadFile(path)
	if err == nil && len(raw) == keyFileSize {
		copy(key[:], raw)
		return key, nil
	}

	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("registry: generating credential cache key: %w", err)
	}
	if err := os.WriteFile(path, key[:], 0o600); err != nil {
		return key, fmt.Errorf("registry: persisting credential cache key: %w", err)
	}
	return key, nil
}

// deriveAEAD derives a per-call AEAD from the cache's root key via HKDF-
// SHA256, using deviceKey as the HKDF info so that each device's
// ciphertext is bound to its own derived subkey rather than sharing one
// key across every entry.
func (c *CredentialCache) deriveAEAD(deviceKey string) (cipher.AEAD, error) {
	sub := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.key[:], nil, []byte(deviceKey)), sub); err != nil {
		return nil, fmt.Errorf("registry: deriving credential subkey: %w", err)
	}

	block, err := aes.NewCipher(sub)
	if err != nil {
		return nil, fmt.Errorf("registry: building aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Get returns the cached plaintext password for deviceKey, if any.
func (c *CredentialCache) Get(deviceKey string) (password string, ok bool) {
	doc := c.store.Snapshot()
	entry, found := doc.Entries[deviceKey]
	if !found {
		return "", false
	}

	aead, err := c.deriveAEAD(deviceKey)
	if err != nil {
		return "", false
	}
	plain, err := aead.Open(nil, entry.Nonce, entry.Ciphertext, nil)
	if err != nil {
		return "", false
	}
	return string(plain), true
}

// Set caches password for deviceKey, encrypting it at rest.
func (c *CredentialCache) Set(deviceKey, password string) error {
	aead, err := c.deriveAEAD(deviceKey)
	if err != nil {
		return err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("registry: generating nonce: %w", err)
	}
	ciphertext := aead.Seal(nil, nonce, []byte(password), nil)

	return c.store.Mutate(func(doc *credDocument) error {
		doc.Entries[deviceKey] = encryptedEntry{Nonce: nonce, Ciphertext: ciphertext}
		return nil
	})
}

// Clear removes deviceKey's cached password (spec.md §4.7 step 3 "on
// auth_failed, clear the cached credential") and its in-memory token.
func (c *CredentialCache) Clear(deviceKey string) error {
	c.ClearToken(deviceKey)
	return c.store.Mutate(func(doc *credDocument) error {
		delete(doc.Entries, deviceKey)
		return nil
	})
}

// Token returns the in-memory session token cached for deviceKey, if any.
// Tokens are never persisted -- they are cheap to re-obtain and carry
// their own server-side expiry.
func (c *CredentialCache) Token(deviceKey string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tok, ok := c.tokens[deviceKey]
	return tok, ok
}

// SetToken caches the session token obtained from a successful handshake.
func (c *CredentialCache) SetToken(deviceKey, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[deviceKey] = token
}

// ClearToken drops the in-memory token for deviceKey.
func (c *CredentialCache) ClearToken(deviceKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, deviceKey)
}
