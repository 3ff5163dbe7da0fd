package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fairyhunter13/order-checkout-service/internal/cache"
	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/fairyhunter13/order-checkout-service/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = model.Requester{Ref: "alice", Role: model.RoleCustomer}
	bob   = model.Requester{Ref: "bob", Role: model.RoleCustomer}
	admin = model.Requester{Ref: "root", Role: model.RoleAdmin}
)

func ledgerWith(t *testing.T, orders ...model.Order) *store.Memory {
	t.Helper()
	m := store.NewMemory()
	for _, o := range orders {
		err := m.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			_, err := tx.CreateOrder(ctx, o)
			return err
		})
		require.NoError(t, err)
	}
	return m
}

func order(id, owner string, minute int) model.Order {
	return model.Order{
		ID:          id,
		OwnerRef:    owner,
		Status:      model.OrderReserved,
		TotalAmount: decimal.NewFromInt(10),
		CreatedAt:   time.Date(2025, 1, 1, 0, minute, 0, 0, time.UTC),
	}
}

func TestGetOrder_OwnerAndAdmin(t *testing.T) {
	q := NewQuery(ledgerWith(t, order("o1", "alice", 0)), nil, nil)

	got, err := q.GetOrder(context.Background(), "o1", alice)
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ID)

	got, err = q.GetOrder(context.Background(), "o1", admin)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.OwnerRef)
}

func TestGetOrder_AccessDeniedHidesContent(t *testing.T) {
	q := NewQuery(ledgerWith(t, order("o1", "alice", 0)), nil, nil)
	got, err := q.GetOrder(context.Background(), "o1", bob)
	require.ErrorIs(t, err, model.ErrAccessDenied)
	assert.Empty(t, got.ID)
	assert.Empty(t, got.OwnerRef)
}

func TestGetOrder_NotFound(t *testing.T) {
	q := NewQuery(ledgerWith(t), nil, nil)
	_, err := q.GetOrder(context.Background(), "missing", admin)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestListOwnOrders(t *testing.T) {
	q := NewQuery(ledgerWith(t, order("o1", "alice", 0), order("o2", "bob", 1), order("o3", "alice", 2)), nil, nil)
	got, err := q.ListOwnOrders(context.Background(), alice, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "o3", got[0].ID)
	assert.Equal(t, "o1", got[1].ID)

	_, err = q.ListOwnOrders(context.Background(), model.Requester{}, 10)
	assert.ErrorIs(t, err, model.ErrAccessDenied)
}

func TestListAllOrders_AdminOnly(t *testing.T) {
	q := NewQuery(ledgerWith(t, order("o1", "alice", 0), order("o2", "bob", 1)), nil, nil)
	_, err := q.ListAllOrders(context.Background(), alice, 10)
	require.ErrorIs(t, err, model.ErrAccessDenied)

	got, err := q.ListAllOrders(context.Background(), admin, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// countingReader counts ledger reads.
type countingReader struct {
	store.OrderReader
	gets int
}

func (r *countingReader) GetOrder(ctx context.Context, id string) (model.Order, error) {
	r.gets++
	return r.OrderReader.GetOrder(ctx, id)
}

func TestGetOrder_ReadThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	reader := &countingReader{OrderReader: ledgerWith(t, order("o1", "alice", 0))}
	metrics := obs.NewMetrics()
	q := NewQuery(reader, cache.NewRedisCache(client, time.Minute), metrics)

	for i := 0; i < 3; i++ {
		_, err := q.GetOrder(context.Background(), "o1", alice)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, reader.gets)
	assert.True(t, mr.Exists("order:o1"))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit")))

	// a cached order is still guarded
	_, err := q.GetOrder(context.Background(), "o1", bob)
	assert.ErrorIs(t, err, model.ErrAccessDenied)
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (model.Order, error) {
	return model.Order{}, errors.New("connection refused")
}
func (brokenCache) Set(context.Context, model.Order) error { return errors.New("connection refused") }
func (brokenCache) Close() error                          { return nil }

func TestGetOrder_CacheFailureFallsThrough(t *testing.T) {
	q := NewQuery(ledgerWith(t, order("o1", "alice", 0)), brokenCache{}, nil)
	got, err := q.GetOrder(context.Background(), "o1", alice)
	require.NoError(t, err)
	assert.Equal(t, "o1", got.ID)
}
