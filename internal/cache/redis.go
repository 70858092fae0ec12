package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "underwriter:"

// RedisCache implements domain.Cache on Redis.
// It is the shared cache and the L2 of TwoPhaseCache.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get returns nil, nil when the key is absent.
func (c *RedisCache) Get(ctx context.Context, namespace string, key string) ([]byte, error) {
	if err := requireNamespace(namespace); err != nil {
		return nil, err
	}

	val, err := c.client.Get(ctx, redisKey(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// TTL returns the time left before key expires: zero when the key is absent,
// negative when it never expires.
func (c *RedisCache) TTL(ctx context.Context, namespace string, key string) (time.Duration, error) {
	if err := requireNamespace(namespace); err != nil {
		return 0, err
	}

	d, err := c.client.PTTL(ctx, redisKey(namespace, key)).Result()
	if err != nil {
		return 0, err
	}
	switch d {
	case -2:
		return 0, nil
	case -1:
		return -1, nil
	}
	return d, nil
}

// Set stores value with ttl.
func (c *RedisCache) Set(ctx context.Context, namespace string, key string, value []byte, ttl time.Duration) error {
	if err := requireNamespace(namespace); err != nil {
		return err
	}
	return c.client.Set(ctx, redisKey(namespace, key), value, ttl).Err()
}

// Delete removes a key.
func (c *RedisCache) Delete(ctx context.Context, namespace string, key string) error {
	if err := requireNamespace(namespace); err != nil {
		return err
	}
	return c.client.Del(ctx, redisKey(namespace, key)).Err()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func redisKey(namespace, key string) string {
	return redisKeyPrefix + makeKey(namespace, key)
}
