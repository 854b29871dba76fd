package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// LogoutFlags remembers recent logouts so that a refresh already in flight
// cannot bring the identity back.
type LogoutFlags interface {
	Set(ctx context.Context, sessionID string, ttl time.Duration) error
	IsSet(ctx context.Context, sessionID string) (bool, error)
	Clear(ctx context.Context, sessionID string) error
}

type MemoryLogoutFlags struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryLogoutFlags() *MemoryLogoutFlags {
	return &MemoryLogoutFlags{expires: make(map[string]time.Time), now: time.Now}
}

func (f *MemoryLogoutFlags) Set(_ context.Context, sessionID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[sessionID] = f.now().Add(ttl)
	return nil
}

func (f *MemoryLogoutFlags) IsSet(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	until, ok := f.expires[sessionID]
	if !ok {
		return false, nil
	}
	if !f.now().Before(until) {
		delete(f.expires, sessionID)
		return false, nil
	}
	return true, nil
}

func (f *MemoryLogoutFlags) Clear(_ context.Context, sessionID string) error {
	f.mu.Lock()
	delete(f.expires, sessionID)
	f.mu.Unlock()
	return nil
}

const logoutKeyPrefix = "finfix:logout:"

// RedisLogoutFlags stores flags as expiring keys so every BFF replica sees
// them.
type RedisLogoutFlags struct {
	client redis.UniversalClient
}

func NewRedisLogoutFlags(client redis.UniversalClient) *RedisLogoutFlags {
	return &RedisLogoutFlags{client: client}
}

// NewRedisClient connects and pings the server.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func logoutKey(sessionID string) string { return logoutKeyPrefix + sessionID }

func (f *RedisLogoutFlags) Set(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := f.client.Set(ctx, logoutKey(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("set logout flag: %w", err)
	}
	return nil
}

func (f *RedisLogoutFlags) IsSet(ctx context.Context, sessionID string) (bool, error) {
	err := f.client.Get(ctx, logoutKey(sessionID)).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("read logout flag: %w", err)
	}
}

func (f *RedisLogoutFlags) Clear(ctx context.Context, sessionID string) error {
	if err := f.client.Del(ctx, logoutKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear logout flag: %w", err)
	}
	return nil
}
