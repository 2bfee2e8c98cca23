package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chenjf2025/BookQuoteApp/internal/model"
)

const (
	// sessionCachePrefix is the Redis key prefix for verified sessions.
	sessionCachePrefix = "auth:sess:"
	// SessionCacheTTL bounds how long a verified session skips the database.
	SessionCacheTTL = 5 * time.Minute
)

// cachedSession is the JSON shape stored in Redis.
type cachedSession struct {
	AccountID string    `json:"account_id"`
	Username  string    `json:"username"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GetSession returns the cached auth context for a token digest.
// Returns ErrCacheMiss when absent or unreadable.
func (c *Cache) GetSession(ctx context.Context, tokenHash string) (*model.AuthContext, error) {
	data, err := c.client.Get(ctx, sessionCachePrefix+tokenHash).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var cached cachedSession
	if err := json.Unmarshal(data, &cached); err != nil {
		// Corrupted entry, treat as miss
		return nil, ErrCacheMiss
	}

	return &model.AuthContext{
		AccountID: cached.AccountID,
		Username:  cached.Username,
		SessionID: cached.SessionID,
		ExpiresAt: cached.ExpiresAt,
	}, nil
}

// SetSession caches a verified session. The entry never outlives the
// session itself.
func (c *Cache) SetSession(ctx context.Context, tokenHash string, auth *model.AuthContext) error {
	ttl := sessionTTL(auth.ExpiresAt, time.Now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(cachedSession{
		AccountID: auth.AccountID,
		Username:  auth.Username,
		SessionID: auth.SessionID,
		ExpiresAt: auth.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return c.client.Set(ctx, sessionCachePrefix+tokenHash, data, ttl).Err()
}

// DeleteSession removes a cached session. Used on logout.
func (c *Cache) DeleteSession(ctx context.Context, tokenHash string) error {
	return c.client.Del(ctx, sessionCachePrefix+tokenHash).Err()
}

func sessionTTL(expiresAt, now time.Time) time.Duration {
	remaining := expiresAt.Sub(now)
	if remaining < SessionCacheTTL {
		return remaining
	}
	return SessionCacheTTL
}
