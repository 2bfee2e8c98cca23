package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const searchKeyPrefix = "search:"

// ErrCacheMiss is returned when a key is not cached.
var ErrCacheMiss = errors.New("cache miss")

// GetSearch returns the cached context text for a book title key.
func (c *Cache) GetSearch(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, searchKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrCacheMiss
		}
		return "", fmt.Errorf("redis get search: %w", err)
	}
	return val, nil
}

// SetSearch stores context text for ttl.
func (c *Cache) SetSearch(ctx context.Context, key, text string, ttl time.Duration) error {
	if err := c.client.Set(ctx, searchKeyPrefix+key, text, ttl).Err(); err != nil {
		return fmt.Errorf("redis set search: %w", err)
	}
	return nil
}
