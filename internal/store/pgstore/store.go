// Package pgstore implements the store ports on PostgreSQL. Checkout locks
// the cart's product rows with SELECT ... FOR UPDATE in id order and applies
// guarded decrements, so concurrent buyers serialize per product.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/fairyhunter13/order-checkout-service/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// lockTimeout bounds how long a checkout waits on another buyer's row locks.
const lockTimeout = "2s"

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a store.Backend backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Backend = (*Store)(nil)

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// Open migrates the schema, connects a pool and pings it.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if err := RunMigrations(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	obs.Logger.Info("store_opened", "backend", "postgres")
	return New(pool), nil
}

// WithinTx runs fn in a read committed transaction. Rows read through the
// transaction's catalog are locked until commit.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classify(err)
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, "SET LOCAL lock_timeout = '"+lockTimeout+"'"); err != nil {
		return classify(err)
	}
	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

type pgTx struct{ tx pgx.Tx }

const selectProducts = `SELECT id, name, sku, price::text, stock, status FROM products`

func (t *pgTx) FindByIDs(ctx context.Context, ids []string) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := t.tx.Query(ctx, selectProducts+` WHERE id = ANY($1) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int64) error {
	if qty <= 0 {
		return store.ErrBadQuantity
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE products SET stock = stock - $2, updated_at = now()
		 WHERE id = $1 AND status = 'active' AND $2 > 0 AND stock >= $2`,
		productID, qty,
	)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrStockGuard
	}
	return nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o model.Order) (model.Order, error) {
	a := o.ShippingAddress
	_, err := t.tx.Exec(ctx,
		`INSERT INTO orders (id, owner_ref, status, total_amount,
		   ship_line1, ship_line2, ship_city, ship_state, ship_postal, ship_country, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.OwnerRef, string(o.Status), o.TotalAmount.String(),
		a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country, o.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Order{}, store.ErrDuplicateOrder
		}
		return model.Order{}, classify(err)
	}
	for i, li := range o.LineItems {
		_, err := t.tx.Exec(ctx,
			`INSERT INTO order_items (order_id, position, product_ref, product_name, sku, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, i, li.ProductRef, li.ProductName, li.SKU, li.Quantity, li.UnitPriceAtPurchase.String(),
		)
		if err != nil {
			return model.Order{}, classify(err)
		}
	}
	return o, nil
}

const selectOrders = `SELECT id, owner_ref, status, total_amount::text,
	ship_line1, ship_line2, ship_city, ship_state, ship_postal, ship_country, created_at
	FROM orders`

func (s *Store) GetOrder(ctx context.Context, id string) (model.Order, error) {
	orders, err := s.queryOrders(ctx, selectOrders+` WHERE id = $1`, id)
	if err != nil {
		return model.Order{}, err
	}
	if len(orders) == 0 {
		return model.Order{}, store.ErrOrderNotFound
	}
	return orders[0], nil
}

func (s *Store) ListOrdersByOwner(ctx context.Context, ownerRef string, limit int) ([]model.Order, error) {
	return s.queryOrders(ctx,
		selectOrders+` WHERE owner_ref = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		ownerRef, store.NormalizeLimit(limit))
}

func (s *Store) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	return s.queryOrders(ctx,
		selectOrders+` ORDER BY created_at DESC, id DESC LIMIT $1`,
		store.NormalizeLimit(limit))
}

func (s *Store) queryOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var (
		out []model.Order
		ids []string
	)
	for rows.Next() {
		var (
			o      model.Order
			status string
			total  string
			a      model.ShippingAddress
		)
		if err := rows.Scan(&o.ID, &o.OwnerRef, &status, &total,
			&a.Line1, &a.Line2, &a.City, &a.State, &a.PostalCode, &a.Country, &o.CreatedAt); err != nil {
			return nil, classify(err)
		}
		o.Status = model.OrderStatus(status)
		o.ShippingAddress = a
		o.CreatedAt = o.CreatedAt.UTC()
		if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("order %s total: %w", o.ID, err)
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	if len(out) == 0 {
		return out, nil
	}
	items, err := loadItems(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].LineItems = items[out[i].ID]
		if out[i].LineItems == nil {
			out[i].LineItems = []model.OrderLineItem{}
		}
	}
	return out, nil
}

func loadItems(ctx context.Context, q querier, orderIDs []string) (map[string][]model.OrderLineItem, error) {
	rows, err := q.Query(ctx,
		`SELECT order_id, product_ref, product_name, sku, quantity, unit_price::text
		 FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`,
		orderIDs)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	items := make(map[string][]model.OrderLineItem, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			li      model.OrderLineItem
			price   string
		)
		if err := rows.Scan(&orderID, &li.ProductRef, &li.ProductName, &li.SKU, &li.Quantity, &price); err != nil {
			return nil, classify(err)
		}
		if li.UnitPriceAtPurchase, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("order %s item price: %w", orderID, err)
		}
		items[orderID] = append(items[orderID], li)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return items, nil
}

func (s *Store) UpsertProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if p.Status == "" {
		p.Status = model.ProductActive
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO products (id, name, sku, price, stock, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, sku = EXCLUDED.sku, price = EXCLUDED.price,
		   stock = EXCLUDED.stock, status = EXCLUDED.status, updated_at = now()
		 RETURNING id, name, sku, price::text, stock, status`,
		p.ID, p.Name, p.SKU, p.Price.String(), p.Stock, string(p.Status),
	)
	return scanProduct(row)
}

func (s *Store) GetProduct(ctx context.Context, id string) (model.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, selectProducts+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Product{}, store.ErrProductNotFound
	}
	return p, err
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

func scanProduct(row pgx.Row) (model.Product, error) {
	var (
		p      model.Product
		price  string
		status string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.SKU, &price, &p.Stock, &status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Product{}, err
		}
		return model.Product{}, classify(err)
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return model.Product{}, fmt.Errorf("product %s price: %w", p.ID, err)
	}
	p.Price = d
	p.Status = model.ProductStatus(status)
	return p, nil
}

// Postgres error codes treated as transient contention.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// classify maps driver errors onto the store sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %s (%s)", store.ErrConflict, pgErr.Message, pgErr.Code)
		}
		return err
	}
	if pgconn.Timeout(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return err
}
