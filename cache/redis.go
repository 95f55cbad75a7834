package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/stockbook/inventory"
)

// Redis stores balances as JSON under stock:balance:<product id>.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func balanceKey(id inventory.ProductID) string {
	return "stock:balance:" + string(id)
}

func (c *Redis) Get(ctx context.Context, id inventory.ProductID) (*inventory.Balance, bool, error) {
	val, err := c.client.Get(ctx, balanceKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var b inventory.Balance
	if err := json.Unmarshal([]byte(val), &b); err != nil {
		return nil, false, err
	}
	return &b, true, nil
}

func (c *Redis) Set(ctx context.Context, id inventory.ProductID, b inventory.Balance, ttl time.Duration) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, balanceKey(id), payload, ttl).Err()
}

func (c *Redis) Invalidate(ctx context.Context, ids ...inventory.ProductID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = balanceKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}
