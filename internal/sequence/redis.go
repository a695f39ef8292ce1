package sequence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "centrallog:seq:"

// RedisAllocator stores each sequence as a Redis integer and allocates with INCR.
type RedisAllocator struct {
	client *redis.Client
	prefix string
}

// NewRedisAllocator connects to the Redis instance at redisURL.
func NewRedisAllocator(ctx context.Context, redisURL string) (*RedisAllocator, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisAllocatorFromClient(client, ""), nil
}

// NewRedisAllocatorFromClient wraps an existing client. An empty prefix
// selects the default key prefix.
func NewRedisAllocatorFromClient(client *redis.Client, prefix string) *RedisAllocator {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisAllocator{client: client, prefix: prefix}
}

func (a *RedisAllocator) Next(ctx context.Context, name string) (int64, error) {
	v, err := a.client.Incr(ctx, a.prefix+name).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s id: %w", name, err)
	}
	return v, nil
}

// Close closes the underlying client.
func (a *RedisAllocator) Close() error {
	return a.client.Close()
}
