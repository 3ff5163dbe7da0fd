package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, time.Minute), mr
}

func sampleOrder() model.Order {
	return model.Order{
		ID:       "o-1",
		OwnerRef: "alice",
		Status:   model.OrderReserved,
		LineItems: []model.OrderLineItem{
			{ProductRef: "P", ProductName: "Widget", Quantity: 2, UnitPriceAtPurchase: decimal.RequireFromString("19.99")},
		},
		TotalAmount: decimal.RequireFromString("39.98"),
		CreatedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRedisCache_Miss(t *testing.T) {
	c, _ := setupRedis(t)
	_, err := c.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_SetThenGet(t *testing.T) {
	c, mr := setupRedis(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, sampleOrder()))

	got, err := c.Get(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerRef)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("39.98")))
	assert.True(t, got.LineItems[0].UnitPriceAtPurchase.Equal(decimal.RequireFromString("19.99")))

	ttl := mr.TTL("order:o-1")
	assert.GreaterOrEqual(t, ttl, time.Minute)
	assert.Less(t, ttl, time.Minute+maxJitter)
}

func TestRedisCache_Expires(t *testing.T) {
	c, mr := setupRedis(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, sampleOrder()))
	mr.FastForward(time.Minute + maxJitter)
	_, err := c.Get(ctx, "o-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_ServerDown(t *testing.T) {
	c, mr := setupRedis(t)
	mr.Close()
	_, err := c.Get(context.Background(), "o-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := Dial(context.Background(), mr.Addr(), 0)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, c.baseTTL)
	require.NoError(t, c.Close())

	mr.Close()
	_, err = Dial(context.Background(), mr.Addr(), 0)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	var c OrderCache = Noop{}
	require.NoError(t, c.Set(context.Background(), sampleOrder()))
	_, err := c.Get(context.Background(), "o-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
