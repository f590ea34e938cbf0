package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/erpsync/internal/core/retry"
)

// Client wraps the Redis connection used by the search index.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client. The initial ping is retried with policy.
func NewClient(ctx context.Context, cfg Config, policy retry.Policy) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	err = retry.Do(ctx, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, retry.WithPolicy(policy))
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Health checks if Redis is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func docKey(entity, id string) string {
	return fmt.Sprintf("search:%s:doc:%s", entity, id)
}

func termsKey(entity, id string) string {
	return fmt.Sprintf("search:%s:terms:%s", entity, id)
}

func termKey(entity, token string) string {
	return fmt.Sprintf("search:%s:term:%s", entity, token)
}
