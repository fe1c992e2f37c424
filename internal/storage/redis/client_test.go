package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whitechapel007/chat-app-pern/internal/storage"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	c, err := New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRevoke(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	jti := uuid.NewString()

	revoked, err := c.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, c.Revoke(ctx, jti, time.Minute))
	revoked, err = c.IsRevoked(ctx, jti)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestLoginRateLimit(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := uuid.NewString()
	for i := 0; i < storage.LoginRateLimitMax; i++ {
		ok, err := c.CheckLoginRateLimit(ctx, key)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := c.CheckLoginRateLimit(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}
