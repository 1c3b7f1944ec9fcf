package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/ekaya-dq/pkg/config"
	"github.com/ekaya-inc/ekaya-dq/pkg/models"
)

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "ekaya-dq:snapshot:"

// NewRedisClient creates a Redis client for the snapshot cache and verifies
// the connection. Returns nil if the cache is disabled.
func NewRedisClient(ctx context.Context, cfg *config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisSnapshotCache stores integration results as JSON strings.
type RedisSnapshotCache struct {
	client *redis.Client
}

// NewRedisSnapshotCache wraps an existing client.
func NewRedisSnapshotCache(client *redis.Client) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client}
}

var _ SnapshotCache = (*RedisSnapshotCache)(nil)

func (c *RedisSnapshotCache) Get(ctx context.Context, key string) (*models.IntegrationResult, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var result models.IntegrationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("decode cached snapshot %s: %w", key, err)
	}
	return &result, true, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, key string, result *models.IntegrationResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
