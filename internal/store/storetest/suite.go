// Package storetest holds the behaviour every store.Backend must share.
// Backend packages call Run from their own tests with a factory that
// returns an empty backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/checkout"
	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty backend for one subtest.
type Factory func(t *testing.T) store.Backend

// Address is a complete shipping address for fixtures.
var Address = model.ShippingAddress{
	Line1:      "1 Main St",
	City:       "Springfield",
	State:      "IL",
	PostalCode: "62701",
	Country:    "US",
}

// Seed upserts an active product.
func Seed(t *testing.T, b store.Backend, id, price string, stock int64) model.Product {
	t.Helper()
	p, err := b.UpsertProduct(context.Background(), model.Product{
		ID:     id,
		Name:   "Product " + id,
		SKU:    "SKU-" + id,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Status: model.ProductActive,
	})
	require.NoError(t, err)
	return p
}

func stockOf(t *testing.T, b store.Backend, id string) int64 {
	t.Helper()
	p, err := b.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Second) }
}

// Run executes the shared backend behaviour against newBackend.
func Run(t *testing.T, newBackend Factory) {
	t.Run("PlaceOrderCommitsOrderAndStock", func(t *testing.T) {
		b := newBackend(t)
		Seed(t, b, "p1", "19.99", 10)
		Seed(t, b, "p2", "5.00", 3)
		ctx := context.Background()

		eng := checkout.New(b)
		order, err := eng.PlaceOrder(ctx, "user-1", []model.CartLine{
			{ProductRef: "p1", Quantity: 2},
			{ProductRef: "p2", Quantity: 1},
		}, Address)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("44.98").Equal(order.TotalAmount), "total %s", order.TotalAmount)
		assert.Equal(t, int64(8), stockOf(t, b, "p1"))
		assert.Equal(t, int64(2), stockOf(t, b, "p2"))

		got, err := b.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, "user-1", got.OwnerRef)
		assert.Equal(t, model.OrderReserved, got.Status)
		require.Len(t, got.LineItems, 2)
		assert.Equal(t, "p1", got.LineItems[0].ProductRef)
		assert.True(t, decimal.RequireFromString("19.99").Equal(got.LineItems[0].UnitPriceAtPurchase))
		assert.True(t, order.TotalAmount.Equal(got.TotalAmount))
		assert.Equal(t, Address, got.ShippingAddress)
	})

	t.Run("InsufficientStockWritesNothing", func(t *testing.T) {
		b := newBackend(t)
		Seed(t, b, "p1", "10.00", 5)
		Seed(t, b, "p2", "3.00", 1)
		ctx := context.Background()

		_, err := checkout.New(b).PlaceOrder(ctx, "user-1", []model.CartLine{
			{ProductRef: "p1", Quantity: 2},
			{ProductRef: "p2", Quantity: 4},
		}, Address)
		var ise *model.InsufficientStockError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, "p2", ise.ProductRef)
		assert.Equal(t, int64(4), ise.Requested)
		assert.Equal(t, int64(1), ise.Available)

		assert.Equal(t, int64(5), stockOf(t, b, "p1"))
		assert.Equal(t, int64(1), stockOf(t, b, "p2"))
		orders, err := b.ListOrdersByOwner(ctx, "user-1", 0)
		require.NoError(t, err)
		assert.Empty(t, orders)
	})

	t.Run("InvalidAndInactiveProducts", func(t *testing.T) {
		b := newBackend(t)
		Seed(t, b, "p1", "1.00", 5)
		ctx := context.Background()
		_, err := b.UpsertProduct(ctx, model.Product{ID: "gone", Name: "Gone", Price: decimal.NewFromInt(1), Stock: 5, Status: model.ProductInactive})
		require.NoError(t, err)

		_, err = checkout.New(b).PlaceOrder(ctx, "user-1", []model.CartLine{
			{ProductRef: "p1", Quantity: 1},
			{ProductRef: "gone", Quantity: 1},
		}, Address)
		var ipe *model.InvalidProductError
		require.ErrorAs(t, err, &ipe)
		assert.Equal(t, "gone", ipe.ProductRef)
		assert.Equal(t, int64(5), stockOf(t, b, "p1"))
	})

	t.Run("RollbackDiscardsWrites", func(t *testing.T) {
		b := newBackend(t)
		Seed(t, b, "p1", "1.00", 5)
		ctx := context.Background()
		boom := errors.New("boom")

		err := b.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.DecrementStock(ctx, "p1", 3); err != nil {
				return err
			}
			if _, err := tx.CreateOrder(ctx, model.Order{
				ID: "rolled-back", OwnerRef: "user-1", Status: model.OrderReserved,
				ShippingAddress: Address, CreatedAt: time.Now().UTC(),
			}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, int64(5), stockOf(t, b, "p1"))
		_, err = b.GetOrder(ctx, "rolled-back")
		assert.ErrorIs(t, err, store.ErrOrderNotFound)
	})

	t.Run("GuardedDecrement", func(t *testing.T) {
		b := newBackend(t)
		Seed(t, b, "p1", "1.00", 2)
		ctx := context.Background()

		err := b.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.DecrementStock(ctx, "p1", 3)
		})
		require.ErrorIs(t, err, store.ErrStockGuard)
		assert.Equal(t, int64(2), stockOf(t, b, "p1"))

		for _, qty := range []int64{0, -5} {
			err = b.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
				return tx.DecrementStock(ctx, "p1", qty)
			})
			require.ErrorIs(t, err, store.ErrBadQuantity, "qty %d", qty)
		}
		assert.Equal(t, int64(2), stockOf(t, b, "p1"))
	})

	t.Run("PriceSnapshotSurvivesCatalogChange", func(t *testing.T) {
		b := newBackend(t)
		Seed(t, b, "p1", "100.00", 5)
		ctx := context.Background()

		order, err := checkout.New(b).PlaceOrder(ctx, "user-1", []model.CartLine{{ProductRef: "p1", Quantity: 1}}, Address)
		require.NoError(t, err)
		Seed(t, b, "p1", "150.00", 4)

		got, err := b.GetOrder(ctx, order.ID)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("100").Equal(got.LineItems[0].UnitPriceAtPurchase))
		assert.True(t, decimal.RequireFromString("100").Equal(got.TotalAmount))
	})

	t.Run("ConcurrentCheckoutsNeverOversell", func(t *testing.T) {
		b := newBackend(t)
		const stock, buyers = 5, 20
		Seed(t, b, "hot", "9.99", stock)
		ctx := context.Background()
		// Default attempt budget: losers must see InsufficientStock, not exhaust retries.
		eng := checkout.New(b, checkout.WithBackoff(2*time.Millisecond))

		var (
			wg       sync.WaitGroup
			placed   atomic.Int64
			rejected atomic.Int64
			failed   atomic.Int64
		)
		for i := 0; i < buyers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := eng.PlaceOrder(ctx, fmt.Sprintf("buyer-%d", i), []model.CartLine{{ProductRef: "hot", Quantity: 1}}, Address)
				switch {
				case err == nil:
					placed.Add(1)
				case errors.Is(err, model.ErrInsufficientStock):
					rejected.Add(1)
				case errors.Is(err, model.ErrTransactionFailed):
					failed.Add(1)
					t.Errorf("buyer-%d: %v", i, err)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int64(stock), placed.Load())
		assert.Equal(t, int64(buyers-stock), rejected.Load())
		assert.Zero(t, failed.Load())
		assert.Zero(t, stockOf(t, b, "hot"))

		all, err := b.ListOrders(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, stock)
	})

	t.Run("ListsAreNewestFirst", func(t *testing.T) {
		b := newBackend(t)
		Seed(t, b, "p1", "1.00", 100)
		ctx := context.Background()
		eng := checkout.New(b, checkout.WithClock(steppingClock()))

		var mine []string
		for i := 0; i < 3; i++ {
			o, err := eng.PlaceOrder(ctx, "owner-a", []model.CartLine{{ProductRef: "p1", Quantity: 1}}, Address)
			require.NoError(t, err)
			mine = append(mine, o.ID)
			_, err = eng.PlaceOrder(ctx, "owner-b", []model.CartLine{{ProductRef: "p1", Quantity: 1}}, Address)
			require.NoError(t, err)
		}

		got, err := b.ListOrdersByOwner(ctx, "owner-a", 0)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, mine[2], got[0].ID)
		assert.Equal(t, mine[0], got[2].ID)

		page, err := b.ListOrders(ctx, 4)
		require.NoError(t, err)
		require.Len(t, page, 4)
		for i := 1; i < len(page); i++ {
			assert.False(t, page[i].CreatedAt.After(page[i-1].CreatedAt), "not newest first at %d", i)
		}
	})

	t.Run("LookupsReportMissing", func(t *testing.T) {
		b := newBackend(t)
		ctx := context.Background()
		_, err := b.GetOrder(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrOrderNotFound)
		_, err = b.GetProduct(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrProductNotFound)
		require.NoError(t, b.Ping(ctx))
	})
}
