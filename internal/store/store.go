// Package store defines the storage ports used by checkout and the
// in-memory backend.
package store

import (
	"context"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
)

// Catalog is the product side of a transaction.
type Catalog interface {
	// FindByIDs returns the products that exist for ids, in no particular order.
	FindByIDs(ctx context.Context, ids []string) ([]model.Product, error)
	// DecrementStock removes qty units, or returns ErrStockGuard when fewer remain.
	DecrementStock(ctx context.Context, productID string, qty int64) error
}

// Ledger is the order side of a transaction.
type Ledger interface {
	CreateOrder(ctx context.Context, o model.Order) (model.Order, error)
}

// Tx groups the operations that commit together.
type Tx interface {
	Catalog
	Ledger
}

// TxRunner executes fn as one atomic unit. Every write made through tx is
// applied if and only if fn returns nil. The error from fn is returned as is.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// OrderReader serves the read path.
type OrderReader interface {
	GetOrder(ctx context.Context, id string) (model.Order, error)
	// ListOrdersByOwner returns the owner's orders, newest first.
	ListOrdersByOwner(ctx context.Context, ownerRef string, limit int) ([]model.Order, error)
	// ListOrders returns all orders, newest first.
	ListOrders(ctx context.Context, limit int) ([]model.Order, error)
}

// CatalogAdmin seeds and adjusts products outside of checkout.
type CatalogAdmin interface {
	UpsertProduct(ctx context.Context, p model.Product) (model.Product, error)
	GetProduct(ctx context.Context, id string) (model.Product, error)
}

// Backend is a complete storage implementation.
type Backend interface {
	TxRunner
	OrderReader
	CatalogAdmin
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
