package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type status struct {
	Connected bool   `json:"connected"`
	Message   string `json:"message"`
}

func TestLocalCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(16, time.Minute)

	var got status
	assert.ErrorIs(t, c.Get(ctx, "app-1", &got), ErrMiss)

	require.NoError(t, c.Set(ctx, "app-1", status{Connected: true, Message: "CLI connected successfully"}, time.Minute))
	require.NoError(t, c.Get(ctx, "app-1", &got))
	assert.True(t, got.Connected)
	assert.Equal(t, "CLI connected successfully", got.Message)

	require.NoError(t, c.Delete(ctx, "app-1"))
	assert.ErrorIs(t, c.Get(ctx, "app-1", &got), ErrMiss)
}

func TestLocalCacheExpires(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCache(16, 20*time.Millisecond)
	require.NoError(t, c.Set(ctx, "k", status{Connected: true}, 0))

	assert.Eventually(t, func() bool {
		var got status
		return c.Get(ctx, "k", &got) == ErrMiss
	}, time.Second, 10*time.Millisecond)
}

func TestLocalCacheImplementsCache(t *testing.T) {
	var _ Cache = NewLocalCache(1, time.Second)
	var _ Cache = (*RedisCache)(nil)
}
