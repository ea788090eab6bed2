// Package apikey provides API key issuance and verification for
// machine clients such as runtime agents.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"cellar/api/internal/store"
)

const keyPrefix = "ck"

// ErrInvalidKey is returned for malformed, unknown or revoked keys.
var ErrInvalidKey = errors.New("invalid api key")

// KeyStore defines the storage interface for API keys.
type KeyStore interface {
	InsertAPIKey(ctx context.Context, key store.APIKey) error
	GetAPIKey(ctx context.Context, id string) (store.APIKey, error)
	TouchAPIKey(ctx context.Context, id string) error
	DeleteAPIKey(ctx context.Context, id string) error
}

type Service struct {
	store KeyStore
}

func NewService(store KeyStore) *Service {
	return &Service{store: store}
}

// Issue creates a new key and returns its plaintext form. The secret
// is stored only as a bcrypt hash, so the plaintext is shown once.
func (s *Service) Issue(ctx context.Context, name string) (string, store.APIKey, error) {
	if name == "" {
		return "", store.APIKey{}, errors.New("key name is required")
	}

	id, err := randomHex(8)
	if err != nil {
		return "", store.APIKey{}, fmt.Errorf("generate key id: %w", err)
	}
	secret, err := randomHex(24)
	if err != nil {
		return "", store.APIKey{}, fmt.Errorf("generate key secret: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", store.APIKey{}, fmt.Errorf("hash key secret: %w", err)
	}

	key := store.APIKey{
		ID:         id,
		Name:       name,
		SecretHash: string(hash),
	}
	if err := s.store.InsertAPIKey(ctx, key); err != nil {
		return "", store.APIKey{}, fmt.Errorf("store api key: %w", err)
	}

	plaintext := strings.Join([]string{keyPrefix, id, secret}, "_")
	return plaintext, key, nil
}

// Verify checks a plaintext key and returns its record.
func (s *Service) Verify(ctx context.Context, plaintext string) (store.APIKey, error) {
	parts := strings.SplitN(plaintext, "_", 3)
	if len(parts) != 3 || parts[0] != keyPrefix || parts[1] == "" || parts[2] == "" {
		return store.APIKey{}, ErrInvalidKey
	}

	key, err := s.store.GetAPIKey(ctx, parts[1])
	if err != nil {
		return store.APIKey{}, ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(parts[2])); err != nil {
		return store.APIKey{}, ErrInvalidKey
	}

	// Usage tracking is best effort.
	_ = s.store.TouchAPIKey(ctx, key.ID)
	return key, nil
}

// Bootstrap registers a preconfigured plaintext key, typically supplied
// through the environment so deployments start with a working credential.
// An already registered id is left untouched.
func (s *Service) Bootstrap(ctx context.Context, plaintext string) error {
	parts := strings.SplitN(plaintext, "_", 3)
	if len(parts) != 3 || parts[0] != keyPrefix || parts[1] == "" || parts[2] == "" {
		return ErrInvalidKey
	}
	if _, err := s.store.GetAPIKey(ctx, parts[1]); err == nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(parts[2]), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed key: %w", err)
	}
	key := store.APIKey{
		ID:         parts[1],
		Name:       "bootstrap",
		SecretHash: string(hash),
	}
	if err := s.store.InsertAPIKey(ctx, key); err != nil {
		return fmt.Errorf("store seed key: %w", err)
	}
	return nil
}

// Revoke deletes a key by id.
func (s *Service) Revoke(ctx context.Context, id string) error {
	if err := s.store.DeleteAPIKey(ctx, id); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
