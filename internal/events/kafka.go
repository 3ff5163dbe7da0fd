package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fairyhunter13/order-checkout-service/internal/model"
	"github.com/fairyhunter13/order-checkout-service/internal/obs"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker/v2"
)

const eventTypeOrderPlaced = "order.placed"

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BreakerSettings tune the circuit breaker around the broker.
type BreakerSettings struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// KafkaPublisher writes events keyed by order id, behind a circuit breaker so
// an unreachable broker fails fast instead of tying up relay workers.
type KafkaPublisher struct {
	w  messageWriter
	cb *gobreaker.CircuitBreaker[struct{}]
}

// NewKafkaPublisher builds a writer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, bs BreakerSettings) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, bs)
}

func newKafkaPublisher(w messageWriter, bs BreakerSettings) *KafkaPublisher {
	if bs.MaxFailures == 0 {
		bs.MaxFailures = 5
	}
	if bs.OpenTimeout <= 0 {
		bs.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "kafka-order-events",
		Timeout: bs.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= bs.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			obs.Logger.Warn("breaker_state_change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &KafkaPublisher{w: w, cb: cb}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev model.OrderPlaced) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventTypeOrderPlaced)},
		},
	}
	_, err = p.cb.Execute(func() (struct{}, error) {
		return struct{}{}, p.w.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("publish order %s: %w", ev.OrderID, err)
	}
	return nil
}

// State reports the breaker state.
func (p *KafkaPublisher) State() gobreaker.State { return p.cb.State() }

func (p *KafkaPublisher) Close() error { return p.w.Close() }
