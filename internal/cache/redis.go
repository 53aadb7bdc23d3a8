package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"splitledger/internal/models"
)

// RedisCache keeps pair balances in Redis under "balance:<low>:<high>".
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(addr, password string) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:            addr,
		Password:        password,
		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 2 * time.Second,
	})
	return &RedisCache{client: client}
}

// Ping verifies connectivity at startup. A failure here is worth surfacing
// once; failures after startup are the caller's to swallow.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func balanceKey(userA, userB string) string {
	low, high := models.PairKey(userA, userB)
	return fmt.Sprintf("balance:%s:%s", low, high)
}

func (c *RedisCache) GetBalance(ctx context.Context, userA, userB string) (int64, bool, error) {
	raw, err := c.client.Get(ctx, balanceKey(userA, userB)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// Unparseable entry: treat as a miss and drop it.
		_ = c.client.Del(ctx, balanceKey(userA, userB)).Err()
		return 0, false, nil
	}
	return value, true, nil
}

func (c *RedisCache) SetBalance(ctx context.Context, userA, userB string, netAmount int64, ttl time.Duration) error {
	return c.client.Set(ctx, balanceKey(userA, userB), strconv.FormatInt(netAmount, 10), ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, userA, userB string) error {
	return c.client.Del(ctx, balanceKey(userA, userB)).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
