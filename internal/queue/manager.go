package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/events"
	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
)

// Settings configure a Manager.
type Settings struct {
	Workers     int
	MaxAttempts int
	// PublishTimeout bounds a single Publish call.
	PublishTimeout time.Duration
	// RetryDelay is waited before a failed event is handed back to the queue.
	RetryDelay time.Duration
}

// Manager runs the workers that publish queued order events.
type Manager struct {
	set     Settings
	q       *Queue
	pub     events.Publisher
	metrics *obs.Metrics
	seq     Sequencer

	cancel context.CancelFunc
	wg     sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
	retried   atomic.Uint64
}

// NewManager constructs a Manager over q publishing through pub.
func NewManager(set Settings, q *Queue, pub events.Publisher, m *obs.Metrics) *Manager {
	if set.Workers < 1 {
		set.Workers = 1
	}
	if set.MaxAttempts < 1 {
		set.MaxAttempts = 1
	}
	if set.PublishTimeout <= 0 {
		set.PublishTimeout = 5 * time.Second
	}
	if set.RetryDelay <= 0 {
		set.RetryDelay = 100 * time.Millisecond
	}
	return &Manager{set: set, q: q, pub: pub, metrics: m}
}

// Start launches the broker and workers.
func (m *Manager) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.q.Start(ctx)
	for i := 0; i < m.set.Workers; i++ {
		m.wg.Add(1)
		go m.worker(ctx)
	}
	obs.Logger.Info("relay_started", "worker_count", m.set.Workers)
}

// Stop cancels the workers and waits for them to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.q.Out():
			m.deliver(ctx, ev)
		}
	}
}

func (m *Manager) deliver(ctx context.Context, ev model.OrderPlaced) {
	ev.Attempts++
	pctx, cancel := context.WithTimeout(ctx, m.set.PublishTimeout)
	err := m.pub.Publish(pctx, ev)
	cancel()
	if err == nil {
		m.published.Add(1)
		m.metrics.IncRelay("published")
		m.q.MarkSettled()
		return
	}
	if ev.Attempts >= m.set.MaxAttempts {
		m.dropped.Add(1)
		m.metrics.IncRelay("dropped")
		m.q.MarkSettled()
		obs.Logger.Error("order_event_dropped", "order_id", ev.OrderID, "sequence", ev.Sequence, "attempts", ev.Attempts, "error", err.Error())
		return
	}
	m.retried.Add(1)
	m.metrics.IncRelay("retried")
	obs.Logger.Warn("order_event_retry", "order_id", ev.OrderID, "attempts", ev.Attempts, "error", err.Error())
	select {
	case <-ctx.Done():
		m.q.MarkSettled()
		return
	case <-time.After(m.set.RetryDelay):
	}
	m.q.requeue(ev)
}

// Enqueue stamps ev with the next sequence number and queues it.
func (m *Manager) Enqueue(ev model.OrderPlaced) bool {
	ev.Sequence = m.seq.Next()
	return m.q.Enqueue(ev)
}

// WorkerCount returns the number of workers.
func (m *Manager) WorkerCount() int { return m.set.Workers }

// IsShuttingDown reports whether new enqueues are rejected.
func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake disallows future enqueues.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// Stats is a point-in-time snapshot of relay counters.
type Stats struct {
	Enqueued    uint64 `json:"events_enqueued"`
	Published   uint64 `json:"events_published"`
	Retried     uint64 `json:"events_retried"`
	Dropped     uint64 `json:"events_dropped"`
	BacklogSize int    `json:"backlog_size"`
	QueueDepth  int    `json:"queue_depth"`
	WorkerCount int    `json:"worker_count"`
}

func (m *Manager) Stats() Stats {
	enq, _ := m.q.Counters()
	return Stats{
		Enqueued:    enq,
		Published:   m.published.Load(),
		Retried:     m.retried.Load(),
		Dropped:     m.dropped.Load(),
		BacklogSize: m.q.BacklogSize(),
		QueueDepth:  m.q.Depth(),
		WorkerCount: m.set.Workers,
	}
}

// DrainUntil blocks until every accepted event is settled or ctx is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		if m.q.Settled() && m.q.Depth() == 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}
