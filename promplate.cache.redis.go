package promplate

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCacheConfig configures RedisCache.
type RedisCacheConfig struct {
	// Addr is the Redis server address. Ignored when a client is supplied.
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces the cache keys. Default: "promplate:completion:"
	KeyPrefix string

	// TTL is the expiry of each entry. Default: 10 minutes.
	TTL time.Duration
}

// RedisCache is a CompletionCache shared between processes through Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owned  bool
}

// NewRedisCache connects a cache to the server at config.Addr.
func NewRedisCache(config RedisCacheConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	c := NewRedisCacheFromClient(client, config)
	c.owned = true
	return c
}

// NewRedisCacheFromClient creates a cache on an existing client. Close leaves the client open.
func NewRedisCacheFromClient(client *redis.Client, config RedisCacheConfig) *RedisCache {
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultRedisKeyPrefix
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheTTL
	}
	return &RedisCache{client: client, prefix: config.KeyPrefix, ttl: config.TTL}
}

func (c *RedisCache) key(key string) string {
	return c.prefix + key
}

// Get returns the cached completion for key.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	text, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, NewCacheError(err)
	}
	return text, true, nil
}

// Set stores a completion with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key, text string) error {
	if err := c.client.Set(ctx, c.key(key), text, c.ttl).Err(); err != nil {
		return NewCacheError(err)
	}
	return nil
}

// Invalidate removes one entry.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return NewCacheError(err)
	}
	return nil
}

// Close closes the client when the cache created it.
func (c *RedisCache) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}
