package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/whitechapel007/chat-app-pern/internal/logger"
)

const maxBackoff = 30 * time.Second

// withRetry повторяет fn с экспоненциальной паузой, пока не истечёт maxWait.
func withRetry(ctx context.Context, what string, maxWait, backoff time.Duration, fn func(ctx context.Context) error) error {
	deadline := time.Now().Add(maxWait)
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%s (gave up after %v): %w", what, maxWait, err)
		}
		logger.Errorf("%s failed, retry in %v: %v", what, backoff, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", what, ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
