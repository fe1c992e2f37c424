package startup

import (
	"context"
	"time"

	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/storage"
	"github.com/whitechapel007/chat-app-pern/internal/storage/memory"
	redisstorage "github.com/whitechapel007/chat-app-pern/internal/storage/redis"
)

// ConnectRedisWithRetry подключается к Redis с повторами.
func ConnectRedisWithRetry(ctx context.Context, redisURL string, maxWait time.Duration) (*redisstorage.Client, error) {
	var client *redisstorage.Client
	err := withRetry(ctx, "redis connect", maxWait, 2*time.Second, func(ctx context.Context) error {
		connCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		c, err := redisstorage.New(connCtx, redisURL)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	return client, err
}

// OpenTokenStore — Redis, если задан URL, иначе хранилище в памяти (один экземпляр сервиса).
func OpenTokenStore(ctx context.Context, redisURL string, maxWait time.Duration) (storage.TokenStore, error) {
	if redisURL == "" {
		logger.Info("REDIS_URL not set, token revocation kept in memory")
		return memory.New(), nil
	}
	return ConnectRedisWithRetry(ctx, redisURL, maxWait)
}
