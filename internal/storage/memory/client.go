package memory

import (
	"context"
	"sync"
	"time"

	"github.com/whitechapel007/chat-app-pern/internal/storage"
)

type Client struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	limit   map[string][]time.Time
	window  time.Duration
	max     int
}

var _ storage.TokenStore = (*Client)(nil)

func New() *Client {
	return &Client{
		revoked: make(map[string]time.Time),
		limit:   make(map[string][]time.Time),
		window:  storage.LoginRateLimitWindow,
		max:     storage.LoginRateLimitMax,
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for id, exp := range c.revoked {
		if now.After(exp) {
			delete(c.revoked, id)
		}
	}
	c.revoked[tokenID] = now.Add(ttl)
	return nil
}

func (c *Client) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.revoked[tokenID]
	return ok && time.Now().Before(exp), nil
}

func (c *Client) CheckLoginRateLimit(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	cut := now.Add(-c.window)
	var kept []time.Time
	for _, t := range c.limit[key] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= c.max {
		c.limit[key] = kept
		return false, nil
	}
	c.limit[key] = append(kept, now)
	return true, nil
}
