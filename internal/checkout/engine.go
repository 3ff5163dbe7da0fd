// Package checkout turns a cart into a persisted order. Validation, pricing,
// stock decrements and the order insert run inside one store transaction, and
// the whole sequence is retried on transient store failures.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/fairyhunter13/order-checkout-service/internal/store"
	"github.com/google/uuid"
)

const maxBackoff = time.Second

// Engine places orders against a TxRunner.
type Engine struct {
	runner      store.TxRunner
	metrics     *obs.Metrics
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
	newID       func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxAttempts bounds how many times the transaction is run. Values below 1 mean 1.
func WithMaxAttempts(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.maxAttempts = n
	}
}

// WithBackoff sets the base delay between attempts.
func WithBackoff(d time.Duration) Option {
	return func(e *Engine) { e.backoff = d }
}

func WithMetrics(m *obs.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func New(runner store.TxRunner, opts ...Option) *Engine {
	e := &Engine{
		runner:      runner,
		maxAttempts: 3,
		backoff:     25 * time.Millisecond,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PlaceOrder validates the cart, prices it from the catalog and records the
// order together with the stock decrements. Errors match the kinds in model:
// ErrEmptyCart, ErrValidation, ErrInvalidProduct, ErrInsufficientStock and
// ErrTransactionFailed. On any error nothing has been written.
func (e *Engine) PlaceOrder(ctx context.Context, ownerRef string, lines []model.CartLine, addr model.ShippingAddress) (model.Order, error) {
	started := time.Now()
	if len(lines) == 0 {
		e.metrics.ObserveCheckout("empty_cart", started)
		return model.Order{}, model.ErrEmptyCart
	}
	if err := validateInput(ownerRef, lines, addr); err != nil {
		e.metrics.ObserveCheckout("validation_error", started)
		return model.Order{}, err
	}
	want, err := newDemand(lines)
	if err != nil {
		e.metrics.ObserveCheckout("validation_error", started)
		return model.Order{}, err
	}

	var (
		lastErr  error
		attempts int
	)
	for attempts = 1; attempts <= e.maxAttempts; attempts++ {
		order, err := e.attempt(ctx, ownerRef, lines, addr, want)
		if err == nil {
			e.metrics.ObserveCheckout("success", started)
			obs.Logger.Info("order_placed",
				"order_id", order.ID,
				"owner_id", order.OwnerRef,
				"line_count", len(order.LineItems),
				"total_amount", order.TotalAmount.String(),
				"attempts", attempts,
			)
			return order, nil
		}
		if outcome, ok := rejection(err); ok {
			e.metrics.ObserveCheckout(outcome, started)
			obs.Logger.Info("checkout_rejected", "owner_id", ownerRef, "reason", outcome, "error", err.Error())
			return model.Order{}, err
		}
		lastErr = err
		if !store.Retryable(err) || attempts == e.maxAttempts {
			break
		}
		e.metrics.IncCheckoutRetry()
		obs.Logger.Warn("checkout_retry", "owner_id", ownerRef, "attempt", attempts, "error", err.Error())
		if werr := e.wait(ctx, attempts); werr != nil {
			lastErr = werr
			break
		}
	}
	e.metrics.ObserveCheckout("transaction_failed", started)
	obs.Logger.Error("checkout_failed", "owner_id", ownerRef, "attempts", attempts, "error", lastErr.Error())
	return model.Order{}, &model.TransactionFailedError{Attempts: attempts, Err: lastErr}
}

// attempt runs one validate+commit sequence.
func (e *Engine) attempt(ctx context.Context, ownerRef string, lines []model.CartLine, addr model.ShippingAddress, want demand) (model.Order, error) {
	var placed model.Order
	err := e.runner.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		found, err := tx.FindByIDs(ctx, want.ids)
		if err != nil {
			return err
		}
		catalog := make(map[string]model.Product, len(found))
		for _, p := range found {
			if p.Orderable() {
				catalog[p.ID] = p
			}
		}
		if err := want.check(catalog); err != nil {
			return err
		}
		order := e.price(ownerRef, lines, addr, catalog)
		for _, id := range want.ids {
			if err := tx.DecrementStock(ctx, id, want.qty[id]); err != nil {
				if errors.Is(err, store.ErrProductNotFound) {
					return fmt.Errorf("%w: product %s vanished: %v", store.ErrConflict, id, err)
				}
				return err
			}
		}
		placed, err = tx.CreateOrder(ctx, order)
		return err
	})
	if err != nil {
		return model.Order{}, err
	}
	return placed, nil
}

// price snapshots catalog prices into line items in cart order.
func (e *Engine) price(ownerRef string, lines []model.CartLine, addr model.ShippingAddress, catalog map[string]model.Product) model.Order {
	order := model.Order{
		ID:              e.newID(),
		OwnerRef:        ownerRef,
		Status:          model.OrderReserved,
		LineItems:       make([]model.OrderLineItem, 0, len(lines)),
		ShippingAddress: addr,
		CreatedAt:       e.now(),
	}
	for _, l := range lines {
		p := catalog[l.ProductRef]
		li := model.OrderLineItem{
			ProductRef:          p.ID,
			ProductName:         p.Name,
			SKU:                 p.SKU,
			Quantity:            l.Quantity,
			UnitPriceAtPurchase: p.Price,
		}
		order.LineItems = append(order.LineItems, li)
		order.TotalAmount = order.TotalAmount.Add(li.Subtotal())
	}
	return order
}

func (e *Engine) wait(ctx context.Context, attempt int) error {
	if e.backoff <= 0 {
		return ctx.Err()
	}
	d := e.backoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	d += rand.N(e.backoff)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// rejection classifies business errors that end a checkout without retry.
func rejection(err error) (string, bool) {
	switch {
	case errors.Is(err, model.ErrInvalidProduct):
		return "invalid_product", true
	case errors.Is(err, model.ErrInsufficientStock):
		return "insufficient_stock", true
	case errors.Is(err, model.ErrValidation):
		return "validation_error", true
	}
	return "", false
}
