package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const maxJitter = 5 * time.Minute

// RedisCache keeps JSON-encoded orders with a jittered TTL.
type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewRedisCache wraps client. A non-positive ttl uses 15 minutes.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisCache{client: client, baseTTL: ttl}
}

// Dial connects to addr and verifies the connection.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisCache(client, ttl), nil
}

func (r *RedisCache) Get(ctx context.Context, orderID string) (model.Order, error) {
	data, err := r.client.Get(ctx, cacheKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Order{}, ErrCacheMiss
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("redis get failed: %w", err)
	}
	var o model.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return model.Order{}, fmt.Errorf("unmarshal order failed: %w", err)
	}
	return o, nil
}

func (r *RedisCache) Set(ctx context.Context, o model.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("marshal order failed: %w", err)
	}
	ttl := r.baseTTL + rand.N(maxJitter)
	if err := r.client.Set(ctx, cacheKey(o.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Close() error { return r.client.Close() }

func cacheKey(orderID string) string {
	return fmt.Sprintf("order:%s", orderID)
}
