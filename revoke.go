package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker remembers token ids that must no longer be accepted. Entries only
// need to live as long as the token they block.
type Revoker interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// noopRevoker keeps tokens stateless: logout only discards them client side.
type noopRevoker struct{}

func (noopRevoker) Revoke(context.Context, string, time.Duration) error { return nil }
func (noopRevoker) IsRevoked(context.Context, string) (bool, error)     { return false, nil }

type memoryRevoker struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func newMemoryRevoker() *memoryRevoker {
	return &memoryRevoker{entries: map[string]time.Time{}, now: time.Now}
}

func (r *memoryRevoker) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, exp := range r.entries {
		if !now.Before(exp) {
			delete(r.entries, k)
		}
	}
	r.entries[jti] = now.Add(ttl)
	return nil
}

func (r *memoryRevoker) IsRevoked(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exp, ok := r.entries[jti]
	return ok && r.now().Before(exp), nil
}

const revokedKeyPrefix = "revoked:"

type redisRevoker struct {
	client *redis.Client
}

func newRedisRevoker(ctx context.Context, addr, password string, db int) (*redisRevoker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisRevoker{client: rdb}, nil
}

func (r *redisRevoker) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKeyPrefix+jti, 1, ttl).Err()
}

func (r *redisRevoker) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := r.client.Get(ctx, revokedKeyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *redisRevoker) close() error { return r.client.Close() }

// NewRevoker builds the backend named by REVOCATION_BACKEND.
func NewRevoker(ctx context.Context, backend, redisAddr, redisPassword string, redisDB int) (Revoker, error) {
	switch backend {
	case "", "none":
		return noopRevoker{}, nil
	case "memory":
		return newMemoryRevoker(), nil
	case "redis":
		return newRedisRevoker(ctx, redisAddr, redisPassword, redisDB)
	default:
		return nil, fmt.Errorf("unsupported revocation backend: %s", backend)
	}
}
