package mongostore

import (
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"
)

// productLocks serializes transactions of this process per product id.
// MongoDB aborts a transaction on write conflict instead of waiting for it.
type productLocks struct {
	mu    sync.Mutex
	locks map[string]*productLock
}

type productLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newProductLocks() *productLocks {
	return &productLocks{locks: make(map[string]*productLock)}
}

// acquire locks ids in sorted order and returns the ids it now holds.
// On error nothing stays locked.
func (p *productLocks) acquire(ctx context.Context, ids []string) ([]string, error) {
	sorted := slices.Compact(slices.Sorted(slices.Values(ids)))
	held := make([]string, 0, len(sorted))
	for _, id := range sorted {
		l := p.ref(id)
		if err := l.sem.Acquire(ctx, 1); err != nil {
			p.unref(id)
			p.release(held)
			return nil, err
		}
		held = append(held, id)
	}
	return held, nil
}

func (p *productLocks) release(ids []string) {
	for _, id := range ids {
		p.mu.Lock()
		l := p.locks[id]
		p.mu.Unlock()
		l.sem.Release(1)
		p.unref(id)
	}
}

func (p *productLocks) ref(id string) *productLock {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[id]
	if !ok {
		l = &productLock{sem: semaphore.NewWeighted(1)}
		p.locks[id] = l
	}
	l.refs++
	return l
}

func (p *productLocks) unref(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l := p.locks[id]
	if l.refs--; l.refs == 0 {
		delete(p.locks, id)
	}
}
