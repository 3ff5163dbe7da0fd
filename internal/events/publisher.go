// Package events publishes order events to downstream consumers.
package events

import (
	"context"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
)

// Publisher delivers one event. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev model.OrderPlaced) error
	Close() error
}

// LogPublisher writes events to the service log. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, ev model.OrderPlaced) error {
	obs.Logger.Info("order_event",
		"sequence", ev.Sequence,
		"order_id", ev.OrderID,
		"owner_id", ev.OwnerRef,
		"total_amount", ev.TotalAmount.String(),
	)
	return nil
}

func (LogPublisher) Close() error { return nil }
