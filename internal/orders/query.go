// Package orders serves the order read path with owner/admin access checks.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/fairyhunter13/order-checkout-service/internal/cache"
	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/fairyhunter13/order-checkout-service/internal/store"
)

// Query reads orders through an optional cache.
type Query struct {
	reader  store.OrderReader
	cache   cache.OrderCache
	metrics *obs.Metrics
}

// NewQuery returns a Query. A nil cache disables caching.
func NewQuery(reader store.OrderReader, c cache.OrderCache, m *obs.Metrics) *Query {
	if c == nil {
		c = cache.Noop{}
	}
	return &Query{reader: reader, cache: c, metrics: m}
}

// GetOrder returns the order when the requester owns it or is an admin.
func (q *Query) GetOrder(ctx context.Context, orderID string, who model.Requester) (model.Order, error) {
	o, err := q.load(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if !who.CanRead(o) {
		obs.Logger.Warn("order_access_denied", "order_id", orderID, "requester_id", who.Ref)
		return model.Order{}, &model.AccessDeniedError{Resource: "order " + orderID}
	}
	return o, nil
}

// ListOwnOrders returns the requester's orders, newest first.
func (q *Query) ListOwnOrders(ctx context.Context, who model.Requester, limit int) ([]model.Order, error) {
	if who.Ref == "" {
		return nil, &model.AccessDeniedError{Resource: "orders"}
	}
	out, err := q.reader.ListOrdersByOwner(ctx, who.Ref, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders of %s: %w", who.Ref, err)
	}
	return out, nil
}

// ListAllOrders returns every order, newest first. Admin only.
func (q *Query) ListAllOrders(ctx context.Context, who model.Requester, limit int) ([]model.Order, error) {
	if !who.Privileged() {
		return nil, &model.AccessDeniedError{Resource: "orders"}
	}
	out, err := q.reader.ListOrders(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

func (q *Query) load(ctx context.Context, orderID string) (model.Order, error) {
	o, err := q.cache.Get(ctx, orderID)
	switch {
	case err == nil:
		q.metrics.IncCache("hit")
		return o, nil
	case errors.Is(err, cache.ErrCacheMiss):
		q.metrics.IncCache("miss")
	default:
		q.metrics.IncCache("error")
		obs.Logger.Warn("order_cache_get_failed", "order_id", orderID, "error", err.Error())
	}

	o, err = q.reader.GetOrder(ctx, orderID)
	if errors.Is(err, store.ErrOrderNotFound) {
		return model.Order{}, &model.NotFoundError{Resource: "order", ID: orderID}
	}
	if err != nil {
		return model.Order{}, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if err := q.cache.Set(ctx, o); err != nil {
		obs.Logger.Warn("order_cache_set_failed", "order_id", orderID, "error", err.Error())
	}
	return o, nil
}
