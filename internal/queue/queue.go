// Package queue relays committed orders to a Publisher through an
// unbounded in-memory backlog drained by a worker pool.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
)

// Queue is a buffered event queue with a background broker that moves the
// backlog into a bounded output channel. Enqueue never blocks.
type Queue struct {
	mu           sync.Mutex
	backlog      []model.OrderPlaced
	notify       chan struct{}
	out          chan model.OrderPlaced
	shuttingDown atomic.Bool

	enqueued atomic.Uint64
	settled  atomic.Uint64
}

// New creates a Queue with a buffered output channel.
func New(outBuffer int) *Queue {
	if outBuffer <= 0 {
		outBuffer = 64
	}
	return &Queue{
		notify: make(chan struct{}, 1),
		out:    make(chan model.OrderPlaced, outBuffer),
	}
}

// Start runs the broker loop until ctx is done.
func (q *Queue) Start(ctx context.Context) {
	go q.broker(ctx)
}

func (q *Queue) broker(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		q.flushOnce()
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

func (q *Queue) flushOnce() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.backlog) > 0 && len(q.out) < cap(q.out) {
		q.out <- q.backlog[0]
		q.backlog = q.backlog[1:]
	}
}

// Enqueue appends ev to the backlog. It returns false once intake is closed.
func (q *Queue) Enqueue(ev model.OrderPlaced) bool {
	if q.shuttingDown.Load() {
		return false
	}
	q.enqueued.Add(1)
	q.push(ev)
	return true
}

// requeue puts an event back for another attempt. It bypasses the intake
// check so events accepted before shutdown still get their retries.
func (q *Queue) requeue(ev model.OrderPlaced) { q.push(ev) }

func (q *Queue) push(ev model.OrderPlaced) {
	q.mu.Lock()
	q.backlog = append(q.backlog, ev)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Out exposes the output channel.
func (q *Queue) Out() <-chan model.OrderPlaced { return q.out }

// BacklogSize returns events not yet moved to the output channel.
func (q *Queue) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Depth returns backlog plus buffered output items.
func (q *Queue) Depth() int {
	q.mu.Lock()
	bl := len(q.backlog)
	q.mu.Unlock()
	return bl + len(q.out)
}

// MarkSettled records an event that was published or given up on.
func (q *Queue) MarkSettled() { q.settled.Add(1) }

// Settled reports whether every accepted event has been settled.
func (q *Queue) Settled() bool { return q.enqueued.Load() == q.settled.Load() }

// Counters returns accepted and settled totals.
func (q *Queue) Counters() (enqueued, settled uint64) {
	return q.enqueued.Load(), q.settled.Load()
}

// CloseIntake disallows future enqueues.
func (q *Queue) CloseIntake() { q.shuttingDown.Store(true) }

// IsShuttingDown reports if intake has been closed.
func (q *Queue) IsShuttingDown() bool { return q.shuttingDown.Load() }
