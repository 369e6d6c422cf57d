package repository

import (
	"context"
	"sync"

	pkgerrors "codearena/pkg/errors"
)

// CredentialKey is the well-known storage key of the cached bearer token.
const CredentialKey = "sb-access-token"

// TokenStore persists the single credential slot.
type TokenStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// CredentialReader is the read-only view handed to every component except the
// session controller. Callers must read at call time and never keep the value
// across a network round trip.
type CredentialReader interface {
	Credential() string
}

// TokenCache holds the live credential in memory and writes it through to a store.
type TokenCache struct {
	mu    sync.RWMutex
	value string
	store TokenStore
}

func NewTokenCache(store TokenStore) *TokenCache {
	if store == nil {
		store = NewMemoryStore()
	}
	return &TokenCache{store: store}
}

func (c *TokenCache) Credential() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the credential. The in-memory value is updated even when the
// store write fails, so readers in this process always see the latest token.
func (c *TokenCache) Set(ctx context.Context, token string) error {
	c.mu.Lock()
	c.value = token
	c.mu.Unlock()
	if err := c.store.Save(ctx, token); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.TokenStorageFailure, "save credential failed: %v", err)
	}
	return nil
}

func (c *TokenCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.value = ""
	c.mu.Unlock()
	if err := c.store.Clear(ctx); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.TokenStorageFailure, "clear credential failed: %v", err)
	}
	return nil
}

// Persisted reads the token left by a previous process, if any.
func (c *TokenCache) Persisted(ctx context.Context) (string, error) {
	token, err := c.store.Load(ctx)
	if err != nil {
		return "", pkgerrors.Wrapf(err, pkgerrors.TokenStorageFailure, "load credential failed: %v", err)
	}
	return token, nil
}

// MemoryStore keeps nothing beyond the process lifetime.
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryStore) Save(_ context.Context, token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	return s.Save(context.Background(), "")
}
