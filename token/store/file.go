package store

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jrsteele09/specranking-client/internal/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const sealedPrefix = "sealed:"

var _ Store = (*FileStore)(nil)

// FileStore keeps the token in a single file, optionally sealed with XChaCha20-Poly1305.
type FileStore struct {
	path    string
	key     string
	sealKey []byte
	mu      sync.Mutex
}

type FileOption func(*FileStore) error

// WithEncryptionKey seals the token at rest using a hex encoded 32 byte key.
func WithEncryptionKey(hexKey string) FileOption {
	return func(s *FileStore) error {
		if hexKey == "" {
			return nil
		}
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			return fmt.Errorf("invalid encryption key: %w", err)
		}
		if len(key) != chacha20poly1305.KeySize {
			return fmt.Errorf("invalid encryption key: want %d bytes, got %d", chacha20poly1305.KeySize, len(key))
		}
		s.sealKey = key
		return nil
	}
}

// NewFileStore creates a file backed store. key identifies the token and binds sealed content to it.
func NewFileStore(path, key string, options ...FileOption) (*FileStore, error) {
	s := &FileStore{path: path, key: key}
	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("store.NewFileStore: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store.NewFileStore mkdir: %w", err)
	}
	return s, nil
}

func (s *FileStore) Get(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", errors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("FileStore.Get: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", errors.ErrNotFound
	}
	if !strings.HasPrefix(content, sealedPrefix) {
		if s.sealKey != nil {
			return "", fmt.Errorf("FileStore.Get: token stored unsealed while a key is configured")
		}
		return content, nil
	}
	return s.open(strings.TrimPrefix(content, sealedPrefix))
}

func (s *FileStore) Set(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content := token
	if s.sealKey != nil {
		sealed, err := s.seal(token)
		if err != nil {
			return err
		}
		content = sealedPrefix + sealed
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*")
	if err != nil {
		return fmt.Errorf("FileStore.Set: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("FileStore.Set write: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("FileStore.Set chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("FileStore.Set close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("FileStore.Set rename: %w", err)
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("FileStore.Delete: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) seal(token string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.sealKey)
	if err != nil {
		return "", fmt.Errorf("FileStore.seal: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(token)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("FileStore.seal rand.Read: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(token), []byte(s.key))
	return base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (s *FileStore) open(encoded string) (string, error) {
	if s.sealKey == nil {
		return "", fmt.Errorf("FileStore.open: token is sealed but no key is configured")
	}
	sealed, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("FileStore.open decode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.sealKey)
	if err != nil {
		return "", fmt.Errorf("FileStore.open: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return "", fmt.Errorf("FileStore.open: sealed token too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, []byte(s.key))
	if err != nil {
		return "", fmt.Errorf("FileStore.open: %w", err)
	}
	return string(plain), nil
}
