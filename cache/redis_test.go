package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/inventory"
)

func TestRedis_RoundTrip(t *testing.T) {
	addr := os.Getenv("STOCKBOOK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STOCKBOOK_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(ctx).Err())

	c := NewRedis(rdb)
	id := inventory.ProductID("cache-test-" + time.Now().Format("150405.000000"))
	defer c.Invalidate(ctx, id)

	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, id, balance("4.5", "10", "5.5"), time.Minute))
	got, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("4.5").Equal(got.Balance))
	assert.True(t, decimal.RequireFromString("5.5").Equal(got.TotalOut))

	ttl, err := rdb.TTL(ctx, balanceKey(id)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, c.Invalidate(ctx, id))
	_, ok, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_InvalidateNothing(t *testing.T) {
	c := NewRedis(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}))
	assert.NoError(t, c.Invalidate(context.Background()))
}
