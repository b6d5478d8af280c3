package flash

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// SealedStore encrypts values with AES-256-GCM before they reach the inner
// store. Handed-off records carry patient details, which must not sit in
// Redis in the clear. The store key is bound as additional data, so a value
// cannot be replayed under another key.
type SealedStore struct {
	inner Store
	aead  cipher.AEAD
}

// NewSealedStore wraps inner with the given 32-byte key.
func NewSealedStore(inner Store, key []byte) (*SealedStore, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("flash seal: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("flash seal: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("flash seal: create GCM: %w", err)
	}
	return &SealedStore{inner: inner, aead: aead}, nil
}

// ParseKey decodes a hex-encoded 32-byte key.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("flash key is not hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("flash key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (s *SealedStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("flash seal: generate nonce: %w", err)
	}
	return s.inner.Put(ctx, key, s.aead.Seal(nonce, nonce, value, []byte(key)), ttl)
}

// Take returns the decrypted value. A value that fails to open is treated
// as a miss; it has been removed from the inner store either way.
func (s *SealedStore) Take(ctx context.Context, key string) ([]byte, error) {
	data, err := s.inner.Take(ctx, key)
	if err != nil {
		return nil, err
	}
	n := s.aead.NonceSize()
	if len(data) < n {
		return nil, ErrMiss
	}
	plain, err := s.aead.Open(nil, data[:n], data[n:], []byte(key))
	if err != nil {
		return nil, ErrMiss
	}
	return plain, nil
}
