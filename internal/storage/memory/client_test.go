package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whitechapel007/chat-app-pern/internal/storage"
)

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	c := New()

	revoked, err := c.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, c.Revoke(ctx, "jti-1", time.Hour))
	revoked, err = c.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	require.NoError(t, c.Revoke(ctx, "expired", 0))
	revoked, err = c.IsRevoked(ctx, "expired")
	require.NoError(t, err)
	assert.False(t, revoked, "already expired tokens need no entry")
}

func TestRevokeExpires(t *testing.T) {
	ctx := context.Background()
	c := New()
	require.NoError(t, c.Revoke(ctx, "short", 10*time.Millisecond))
	assert.Eventually(t, func() bool {
		revoked, _ := c.IsRevoked(ctx, "short")
		return !revoked
	}, time.Second, 5*time.Millisecond)
}

func TestLoginRateLimit(t *testing.T) {
	ctx := context.Background()
	c := New()
	for i := 0; i < storage.LoginRateLimitMax; i++ {
		ok, err := c.CheckLoginRateLimit(ctx, "alice")
		require.NoError(t, err)
		require.True(t, ok, "attempt %d", i+1)
	}
	ok, err := c.CheckLoginRateLimit(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.CheckLoginRateLimit(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, ok, "limits are per key")
}
