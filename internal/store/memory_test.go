package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/shopspring/decimal"
)

func seed(t *testing.T, m *Memory, id string, price int64, stock int64) {
	t.Helper()
	if _, err := m.UpsertProduct(context.Background(), model.Product{ID: id, Name: id, Price: decimal.NewFromInt(price), Stock: stock}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestMemoryCommitAppliesAllWrites(t *testing.T) {
	m := NewMemory()
	seed(t, m, "p1", 10, 5)
	ctx := context.Background()
	err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.DecrementStock(ctx, "p1", 2); err != nil {
			return err
		}
		_, err := tx.CreateOrder(ctx, model.Order{ID: "o1", OwnerRef: "u1"})
		return err
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	p, _ := m.GetProduct(ctx, "p1")
	if p.Stock != 3 {
		t.Fatalf("expected stock 3, got %d", p.Stock)
	}
	if _, err := m.GetOrder(ctx, "o1"); err != nil {
		t.Fatalf("order not visible: %v", err)
	}
}

func TestMemoryRollbackDiscardsStagedWrites(t *testing.T) {
	m := NewMemory()
	seed(t, m, "p1", 10, 5)
	ctx := context.Background()
	boom := errors.New("boom")
	err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.DecrementStock(ctx, "p1", 5); err != nil {
			return err
		}
		if _, err := tx.CreateOrder(ctx, model.Order{ID: "o1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error returned unchanged, got %v", err)
	}
	p, _ := m.GetProduct(ctx, "p1")
	if p.Stock != 5 {
		t.Fatalf("expected stock untouched, got %d", p.Stock)
	}
	if _, err := m.GetOrder(ctx, "o1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected no order, got %v", err)
	}
}

func TestMemoryStockGuard(t *testing.T) {
	m := NewMemory()
	seed(t, m, "p1", 10, 1)
	ctx := context.Background()
	err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.DecrementStock(ctx, "p1", 1); err != nil {
			return err
		}
		return tx.DecrementStock(ctx, "p1", 1)
	})
	if !errors.Is(err, ErrStockGuard) {
		t.Fatalf("expected stock guard, got %v", err)
	}
}

func TestMemoryFindSeesStagedStock(t *testing.T) {
	m := NewMemory()
	seed(t, m, "p1", 10, 4)
	ctx := context.Background()
	_ = m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		_ = tx.DecrementStock(ctx, "p1", 3)
		ps, _ := tx.FindByIDs(ctx, []string{"p1", "missing"})
		if len(ps) != 1 || ps[0].Stock != 1 {
			t.Fatalf("unexpected products: %+v", ps)
		}
		return errors.New("abort")
	})
}

func TestMemoryDuplicateOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	create := func() error {
		return m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.CreateOrder(ctx, model.Order{ID: "dup"})
			return err
		})
	}
	if err := create(); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := create(); !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestMemoryListNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, owner := range []string{"a", "b", "a"} {
		o := model.Order{ID: string(rune('x' + i)), OwnerRef: owner, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			_, err := tx.CreateOrder(ctx, o)
			return err
		}); err != nil {
			t.Fatal(err)
		}
	}
	own, _ := m.ListOrdersByOwner(ctx, "a", 0)
	if len(own) != 2 || own[0].ID != "z" || own[1].ID != "x" {
		t.Fatalf("unexpected owner listing: %+v", own)
	}
	all, _ := m.ListOrders(ctx, 2)
	if len(all) != 2 || all[0].ID != "z" {
		t.Fatalf("unexpected listing: %+v", all)
	}
}

func TestMemoryConcurrentDecrements(t *testing.T) {
	m := NewMemory()
	seed(t, m, "p3", 1, 50)
	ctx := context.Background()
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
				return tx.DecrementStock(ctx, "p3", 1)
			})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	p, _ := m.GetProduct(ctx, "p3")
	if ok != 50 || p.Stock != 0 {
		t.Fatalf("expected 50 successes and stock 0, got %d and %d", ok, p.Stock)
	}
}

func TestMemoryCanceledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.WithinTx(ctx, func(context.Context, Tx) error { return nil })
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
