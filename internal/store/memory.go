package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
)

// Memory is a Backend held in process memory. Transactions are serialized by
// a single mutex and their writes are staged until fn returns nil.
type Memory struct {
	mu       sync.RWMutex
	products map[string]model.Product
	orders   map[string]model.Order
	// order ids in commit order
	log []string
}

var _ Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		products: make(map[string]model.Product),
		orders:   make(map[string]model.Order),
	}
}

// WithinTx implements TxRunner.
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tx := &memTx{m: m, stock: make(map[string]int64)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.apply()
	return nil
}

type memTx struct {
	m      *Memory
	stock  map[string]int64
	orders []model.Order
}

func (tx *memTx) currentStock(id string) (int64, bool) {
	if s, ok := tx.stock[id]; ok {
		return s, true
	}
	p, ok := tx.m.products[id]
	return p.Stock, ok
}

func (tx *memTx) FindByIDs(_ context.Context, ids []string) ([]model.Product, error) {
	out := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		p, ok := tx.m.products[id]
		if !ok {
			continue
		}
		p.Stock, _ = tx.currentStock(id)
		out = append(out, p)
	}
	return out, nil
}

func (tx *memTx) DecrementStock(_ context.Context, productID string, qty int64) error {
	if qty <= 0 {
		return ErrBadQuantity
	}
	cur, ok := tx.currentStock(productID)
	if !ok {
		return ErrProductNotFound
	}
	if cur < qty {
		return ErrStockGuard
	}
	tx.stock[productID] = cur - qty
	return nil
}

func (tx *memTx) CreateOrder(_ context.Context, o model.Order) (model.Order, error) {
	if _, exists := tx.m.orders[o.ID]; exists {
		return model.Order{}, ErrDuplicateOrder
	}
	for _, staged := range tx.orders {
		if staged.ID == o.ID {
			return model.Order{}, ErrDuplicateOrder
		}
	}
	o = cloneOrder(o)
	tx.orders = append(tx.orders, o)
	return cloneOrder(o), nil
}

func (tx *memTx) apply() {
	for id, s := range tx.stock {
		p := tx.m.products[id]
		p.Stock = s
		tx.m.products[id] = p
	}
	for _, o := range tx.orders {
		tx.m.orders[o.ID] = o
		tx.m.log = append(tx.m.log, o.ID)
	}
}

func (m *Memory) GetOrder(_ context.Context, id string) (model.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return model.Order{}, ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (m *Memory) ListOrdersByOwner(_ context.Context, ownerRef string, limit int) ([]model.Order, error) {
	return m.list(limit, func(o model.Order) bool { return o.OwnerRef == ownerRef }), nil
}

func (m *Memory) ListOrders(_ context.Context, limit int) ([]model.Order, error) {
	return m.list(limit, func(model.Order) bool { return true }), nil
}

func (m *Memory) list(limit int, keep func(model.Order) bool) []model.Order {
	limit = NormalizeLimit(limit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Order, 0)
	for i := len(m.log) - 1; i >= 0 && len(out) < limit; i-- {
		o := m.orders[m.log[i]]
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	// commit order already approximates recency; CreatedAt is authoritative
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *Memory) UpsertProduct(_ context.Context, p model.Product) (model.Product, error) {
	if p.Status == "" {
		p.Status = model.ProductActive
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
	return p, nil
}

func (m *Memory) GetProduct(_ context.Context, id string) (model.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return model.Product{}, ErrProductNotFound
	}
	return p, nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close(context.Context) error { return nil }

func cloneOrder(o model.Order) model.Order {
	items := make([]model.OrderLineItem, len(o.LineItems))
	copy(items, o.LineItems)
	o.LineItems = items
	return o
}
