package maps

import (
	"context"
	"encoding/json"
	"time"

	"fractionax_search/platform/logger"

	"github.com/redis/go-redis/v9"
)

const (
	suggestionKeyPrefix = "maps:suggest:"
	detailsKeyPrefix    = "maps:place:"
	defaultCacheTTL     = 24 * time.Hour
)

// Cache stores upstream answers. Misses and failures are indistinguishable to
// callers: a broken cache only costs an upstream call.
type Cache interface {
	GetSuggestions(ctx context.Context, query string) ([]Suggestion, bool)
	SetSuggestions(ctx context.Context, query string, suggestions []Suggestion)
	GetDetails(ctx context.Context, placeID string) (PlaceDetails, bool)
	SetDetails(ctx context.Context, placeID string, details PlaceDetails)
}

// RedisCache is a Cache backed by Redis string keys holding JSON.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl, log: log}
}

// NewRedisCacheFromURL parses a redis:// URL and connects lazily.
func NewRedisCacheFromURL(redisURL string, ttl time.Duration, log *logger.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisCache(redis.NewClient(opt), ttl, log), nil
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) GetSuggestions(ctx context.Context, query string) ([]Suggestion, bool) {
	var suggestions []Suggestion
	if !c.get(ctx, suggestionKeyPrefix+query, &suggestions) {
		return nil, false
	}
	return suggestions, true
}

func (c *RedisCache) SetSuggestions(ctx context.Context, query string, suggestions []Suggestion) {
	c.set(ctx, suggestionKeyPrefix+query, suggestions)
}

func (c *RedisCache) GetDetails(ctx context.Context, placeID string) (PlaceDetails, bool) {
	var details PlaceDetails
	if !c.get(ctx, detailsKeyPrefix+placeID, &details) {
		return PlaceDetails{}, false
	}
	return details, true
}

func (c *RedisCache) SetDetails(ctx context.Context, placeID string, details PlaceDetails) {
	c.set(ctx, detailsKeyPrefix+placeID, details)
}

func (c *RedisCache) get(ctx context.Context, key string, out interface{}) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("maps cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Warn("maps cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *RedisCache) set(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.Warn("maps cache write failed", "key", key, "error", err)
	}
}

var _ Cache = (*RedisCache)(nil)
