package tasks

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"fashionstudio/models"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

var (
	ErrNoKeySecret  = errors.New("worker.keysecret is not set")
	ErrSealedKeyBad = errors.New("sealed key cannot be opened")
)

// KeySealer encrypts caller keys before they are written into a task payload.
// The api and the worker must share the same secret.
type KeySealer struct {
	key [32]byte
}

func NewKeySealer(secret string) (*KeySealer, error) {
	if secret == "" {
		return nil, ErrNoKeySecret
	}
	return &KeySealer{key: sha256.Sum256([]byte(secret))}, nil
}

// Seal returns nonce || box.
func (s *KeySealer) Seal(key models.ApiKey) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(key), &nonce, &s.key), nil
}

func (s *KeySealer) Open(sealed []byte) (models.ApiKey, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrSealedKeyBad
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrSealedKeyBad
	}
	return models.ApiKey(plain), nil
}
