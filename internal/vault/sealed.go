package vault

import (
	"context"
	"fmt"

	"github.com/biofugitive/fieldcache/pkg/kv"
)

// SealedStore encrypts values before they reach the wrapped store and
// decrypts them on the way back. Keys are stored in clear.
type SealedStore struct {
	next      kv.Store
	masterKey []byte
}

// Seal wraps next. masterKey must be 32 bytes (AES-256).
func Seal(next kv.Store, masterKey []byte) (*SealedStore, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("vault key must be 32 bytes, got %d", len(masterKey))
	}
	return &SealedStore{next: next, masterKey: masterKey}, nil
}

func (s *SealedStore) Get(ctx context.Context, key string) (string, error) {
	ciphertext, err := s.next.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return Decrypt(ciphertext, s.masterKey)
}

func (s *SealedStore) Set(ctx context.Context, key, plaintext string) error {
	ciphertext, err := Encrypt(plaintext, s.masterKey)
	if err != nil {
		return err
	}
	return s.next.Set(ctx, key, ciphertext)
}

func (s *SealedStore) Remove(ctx context.Context, key string) error {
	return s.next.Remove(ctx, key)
}
