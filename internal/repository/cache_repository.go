package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/smart-edu-api/pkg/errors"
)

// CacheRepository wraps Redis for JSON value caching and for the
// set-if-absent markers the reminder sweep uses for deduplication.
type CacheRepository struct {
	client *redis.Client
}

// NewCacheRepository constructs a new cache repository.
func NewCacheRepository(client *redis.Client) *CacheRepository {
	return &CacheRepository{client: client}
}

// GetJSON loads a cached value into dest. Returns ErrCacheMiss when the
// key is absent.
func (r *CacheRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return appErrors.ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("cache decode %s: %w", key, err)
	}
	return nil
}

// SetJSON stores a value as JSON with a TTL.
func (r *CacheRepository) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes cached keys, ignoring those that do not exist.
func (r *CacheRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// SetNX sets a marker key only if absent, returning whether this call
// claimed it.
func (r *CacheRepository) SetNX(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache setnx %s: %w", key, err)
	}
	return ok, nil
}
