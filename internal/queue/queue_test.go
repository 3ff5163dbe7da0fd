package queue

import (
	"context"
	"testing"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
)

func TestQueueNonBlockingEnqueue(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	for i := 0; i < 1000; i++ {
		if ok := q.Enqueue(model.OrderPlaced{OrderID: "x"}); !ok {
			t.Fatalf("enqueue failed at %d", i)
		}
	}
	if q.Depth() == 0 {
		t.Fatalf("expected depth > 0")
	}
	if q.Settled() {
		t.Fatalf("nothing has been settled yet")
	}
}

func TestQueueShutdownIntake(t *testing.T) {
	q := New(1)
	q.CloseIntake()
	if !q.IsShuttingDown() {
		t.Fatalf("expected shutting down true")
	}
	if ok := q.Enqueue(model.OrderPlaced{OrderID: "x"}); ok {
		t.Fatalf("expected enqueue false when shutting down")
	}
	if enq, _ := q.Counters(); enq != 0 {
		t.Fatalf("rejected event counted: %d", enq)
	}
}

func TestQueueRequeueIgnoresClosedIntake(t *testing.T) {
	q := New(4)
	q.Enqueue(model.OrderPlaced{OrderID: "x"})
	q.CloseIntake()
	q.requeue(model.OrderPlaced{OrderID: "x", Attempts: 1})
	if q.BacklogSize() != 2 {
		t.Fatalf("expected requeued event in backlog, got %d", q.BacklogSize())
	}
}

func TestSequencerMonotonic(t *testing.T) {
	var s Sequencer
	if s.Next() != 1 || s.Next() != 2 {
		t.Fatalf("expected 1, 2")
	}
}
