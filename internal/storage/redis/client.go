package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/whitechapel007/chat-app-pern/internal/storage"
)

type Client struct {
	cli *redis.Client
}

var _ storage.TokenStore = (*Client)(nil)

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Revoke помечает токен отозванным по ключу revoked:{jti} до конца его срока жизни.
func (c *Client) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return c.cli.Set(ctx, "revoked:"+tokenID, 1, ttl).Err()
}

func (c *Client) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := c.cli.Exists(ctx, "revoked:"+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CheckLoginRateLimit считает попытки по login_limit:{key}: не более LoginRateLimitMax за окно.
func (c *Client) CheckLoginRateLimit(ctx context.Context, key string) (bool, error) {
	k := "login_limit:" + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		c.cli.Expire(ctx, k, storage.LoginRateLimitWindow)
	}
	return n <= int64(storage.LoginRateLimitMax), nil
}

// FlushDB очищает текущую БД Redis (для тестов).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
