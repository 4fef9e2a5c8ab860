package tokenstore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// SecureStore persists tokens encrypted at rest with AES-256-GCM. The key is
// derived from a caller-supplied secret via HKDF-SHA256. Records that fail to
// decrypt (wrong secret, tampering, format drift) are treated as absent
// rather than surfaced as errors.
type SecureStore struct {
	mu   sync.Mutex
	dir  string
	aead cipher.AEAD
}

var _ Store = (*SecureStore)(nil)

const secureStoreSalt = "oauth/tokenstore/secure/v1"

// NewSecureStore creates an encrypted file-backed token store rooted at dir.
func NewSecureStore(dir, secret string) (*SecureStore, error) {
	if secret == "" {
		return nil, fmt.Errorf("secure token store requires a secret")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create token store directory: %w", err)
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(secureStoreSalt), nil)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &SecureStore{dir: dir, aead: aead}, nil
}

func (s *SecureStore) path(clientID string) string {
	sum := sha256.Sum256([]byte(clientID))
	return filepath.Join(s.dir, fmt.Sprintf("%x.tok", sum[:8]))
}

func (s *SecureStore) Get(_ context.Context, clientID string) (*Tokens, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed, err := os.ReadFile(s.path(clientID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, nil
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]

	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(clientID))
	if err != nil {
		// Wrong secret or corrupted record: behave as if nothing is stored.
		return nil, nil
	}

	var tokens Tokens
	if err := json.Unmarshal(plaintext, &tokens); err != nil {
		return nil, nil
	}

	return &tokens, nil
}

func (s *SecureStore) Set(_ context.Context, clientID string, tokens *Tokens) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("failed to encode tokens: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Storage format: [nonce][ciphertext], client id bound as AAD.
	sealed := s.aead.Seal(nonce, nonce, plaintext, []byte(clientID))

	if err := os.WriteFile(s.path(clientID), sealed, 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}

func (s *SecureStore) Clear(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(clientID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

func (s *SecureStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to list token store directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".tok" {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove token file: %w", err)
		}
	}
	return nil
}
