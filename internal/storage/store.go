// Package storage — эфемерные данные авторизации: отозванные токены и лимит попыток входа.
package storage

import (
	"context"
	"time"
)

const (
	LoginRateLimitWindow = 15 * time.Minute
	LoginRateLimitMax    = 10
)

// TokenStore хранит отозванные токены (до истечения их срока) и счётчики попыток входа.
// Реализации: redis.Client, memory.Client (если REDIS_URL не задан).
type TokenStore interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
	CheckLoginRateLimit(ctx context.Context, key string) (allowed bool, err error)
	Close() error
}
