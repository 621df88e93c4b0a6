package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/orgchat/orgchat/internal/types"
)

// RedisCounters implements CounterStore on Redis INCR. The first increment
// of a key yields 1, so user numbering starts at 1 without seeding.
type RedisCounters struct {
	client *redis.Client
	prefix string
}

func NewRedisCounters(redisURL string) (*RedisCounters, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	return NewRedisCountersWithClient(redis.NewClient(opts)), nil
}

// NewRedisCountersWithClient creates a counter store from an existing
// Redis client.
func NewRedisCountersWithClient(client *redis.Client) *RedisCounters {
	return &RedisCounters{
		client: client,
		prefix: "user-counter:",
	}
}

func (s *RedisCounters) key(role types.Role) string {
	return s.prefix + string(role)
}

func (s *RedisCounters) NextUserNumber(ctx context.Context, role types.Role) (int64, error) {
	n, err := s.client.Incr(ctx, s.key(role)).Result()
	if err != nil {
		return 0, fmt.Errorf("increment %s counter: %w", role, err)
	}
	return n, nil
}

func (s *RedisCounters) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisCounters) Close() error {
	return s.client.Close()
}
