package repository

import (
	"context"
	"time"

	"codearena/internal/common/cache"
)

// RedisStore shares the credential slot through Redis, e.g. between a REPL
// and scripts running on the same machine.
type RedisStore struct {
	kv      cache.KV
	key     string
	ttl     time.Duration
	timeout time.Duration
}

func NewRedisStore(kv cache.KV, prefix string, ttl, timeout time.Duration) *RedisStore {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisStore{kv: kv, key: prefix + CredentialKey, ttl: ttl, timeout: timeout}
}

func (s *RedisStore) Load(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.kv.Get(ctx, s.key)
}

func (s *RedisStore) Save(ctx context.Context, token string) error {
	if token == "" {
		return s.Clear(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.kv.Set(ctx, s.key, token, s.ttl)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.kv.Del(ctx, s.key)
}
